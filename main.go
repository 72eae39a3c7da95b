// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"hapsync/cmd"
	"hapsync/internal/log"
	"hapsync/pkg/build"
)

// main runs the CLI under a context cancelled by SIGINT or SIGTERM.
func main() {
	// Missing ldflags leave the development defaults in place.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		log.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
