// SPDX-License-Identifier: MIT

// Package cmd wires the hapsync command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hapsync/internal/config"
	"hapsync/internal/log"
	"hapsync/pkg/build"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	verbose    bool
}

// loadConfig reads the config file and applies the log flags on top of it.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	g.applyLogLevel(cfg.LogLevel)
	return cfg, nil
}

func (g *globalOptions) applyLogLevel(fromConfig string) {
	name := fromConfig
	if g.logLevel != "" {
		name = g.logLevel
	}
	if g.verbose {
		name = "debug"
	}
	level, ok := log.ParseLevel(name)
	if !ok {
		log.Warnf("unknown log level %q, using info", name)
		level = log.LevelInfo
	}
	log.SetLevel(level)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to the YAML config file. Defaults to hapsync.yaml or config.yaml when present")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newAnalyzeCommand(opts),
		newDevicesCommand(opts),
	)
	return rootCmd
}

// Execute runs the CLI until ctx is cancelled or the command returns.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", build.GetBuildFlags().Name, err)
	}
	return nil
}
