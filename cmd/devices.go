// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hapsync/internal/audio"
	"hapsync/internal/tui"
)

func newDevicesCommand(g *globalOptions) *cobra.Command {
	var pick bool
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio output devices usable by the shaker driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			g.applyLogLevel("")
			if err := audio.Initialize(); err != nil {
				return fmt.Errorf("portaudio: %w", err)
			}
			defer audio.Terminate()

			out := cmd.OutOrStdout()
			if !pick {
				return audio.ListDevices(out)
			}
			sel, ok, err := tui.PickDevice()
			if err != nil || !ok {
				return err
			}
			return printShakerConfig(out, sel)
		},
	}
	devicesCmd.Flags().BoolVar(&pick, "pick", false,
		"Choose the shaker device interactively and print the matching config")
	return devicesCmd
}

// printShakerConfig prints the haptic section for a picked device.
func printShakerConfig(w io.Writer, sel tui.Selection) error {
	_, err := fmt.Fprintf(w, "haptic:\n  driver: shaker\n  shaker_device: %d\n  shaker_frequency: %g\n",
		sel.Device.ID, sel.Frequency)
	return err
}
