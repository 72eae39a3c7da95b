// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hapsync/internal/analysis"
	"hapsync/internal/audio"
	"hapsync/internal/config"
	"hapsync/internal/haptic"
	"hapsync/internal/log"
	"hapsync/internal/orchestrator"
	"hapsync/internal/server"
	"hapsync/internal/source"
	"hapsync/internal/stream"
	"hapsync/internal/transport"
	"hapsync/pkg/build"
)

type serveOptions struct {
	listen string
	driver string
	target string
}

func newServeCommand(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the player bridge and drive the haptic device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.listen, "listen", "",
		"Override server.listen_address")
	serveCmd.Flags().StringVar(&opts.driver, "driver", "",
		"Override haptic.driver (udp, websocket, shaker, log)")
	serveCmd.Flags().StringVar(&opts.target, "target", "",
		"Override haptic.udp_target_address")
	return serveCmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.listen != "" {
		cfg.Server.ListenAddress = o.listen
	}
	if o.driver != "" {
		cfg.Haptic.Driver = o.driver
	}
	if o.target != "" {
		cfg.Haptic.UDPTargetAddress = o.target
	}
}

func runServe(cmd *cobra.Command, g *globalOptions, opts *serveOptions) error {
	ctx := cmd.Context()
	settings := config.NewSettingsStore(config.DefaultSyncSettings())

	var cfg *config.Config
	if g.configPath != "" {
		hc, err := config.NewHotConfig(g.configPath, settings)
		if err != nil {
			return err
		}
		cfg = hc.Get()
		g.applyLogLevel(cfg.LogLevel)
		hc.OnReload(func(c *config.Config) { g.applyLogLevel(c.LogLevel) })
		if err := hc.Watch(ctx); err != nil {
			log.Warnf("config hot reload disabled: %v", err)
		}
	} else {
		var err error
		if cfg, err = g.loadConfig(); err != nil {
			return err
		}
		if err := settings.Store(cfg.Sync); err != nil {
			return err
		}
	}
	copied := *cfg
	opts.apply(&copied)

	info := build.GetBuildFlags()
	log.Infof("%s %s (%s) starting, haptic driver %s", info.Name, info.Version, info.Commit, copied.Haptic.Driver)

	a, err := newApp(&copied, settings)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.srv.Run(ctx)
}

// app is the assembled serve graph.
type app struct {
	orch      *orchestrator.Orchestrator
	srv       *server.Server
	hapticHub *transport.Hub
	portaudio bool
}

// newApp opens the haptic device and wires the orchestrator behind the
// HTTP server. Nothing listens until srv.Run.
func newApp(cfg *config.Config, settings *config.SettingsStore) (*app, error) {
	a := &app{}

	if cfg.Haptic.Driver == config.DriverWebSocket {
		a.hapticHub = transport.NewHub(transport.HubOptions{
			Name:           "haptic",
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})
	}
	if cfg.Haptic.Driver == config.DriverShaker {
		if err := audio.Initialize(); err != nil {
			return nil, fmt.Errorf("portaudio: %w", err)
		}
		a.portaudio = true
	}

	dev, err := haptic.Open(cfg.Haptic, a.hapticHub)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open haptic device: %w", err)
	}
	dispatcher := haptic.NewDispatcher(dev, haptic.DispatcherOptions{})

	analyzer, err := analysis.NewAnalyzer(analysis.ParamsFromConfig(cfg.Analysis))
	if err != nil {
		dispatcher.Close()
		a.Close()
		return nil, err
	}
	mux := source.NewMux(cfg.Analysis.SampleRate, cfg.Stream.FFmpegBin, cfg.Stream.FFprobeBin,
		build.GetBuildFlags().UserAgent())

	a.orch = orchestrator.New(orchestrator.Options{
		Settings: settings,
		Haptics:  dispatcher,
		NewStream: func() orchestrator.Stream {
			return stream.New(mux, stream.Options{
				SegmentDuration:     cfg.Stream.SegmentDuration,
				BufferAhead:         cfg.Stream.BufferAhead,
				FirstSegmentTimeout: cfg.Stream.FirstSegmentTimeout,
				EventBuffer:         cfg.Stream.EventBuffer,
				Analyzer:            stream.NewSessionAnalyzer(analyzer, settings),
			})
		},
		PipelineLatency:    time.Duration(cfg.Pipeline.LatencyMS) * time.Millisecond,
		NotificationBuffer: cfg.Stream.EventBuffer,
	})

	a.srv = server.New(server.Options{
		Config:    cfg.Server,
		Player:    a.orch,
		HapticHub: a.hapticHub,
		Debug:     cfg.Debug,
	})
	return a, nil
}

// Close disposes the orchestrator, which closes the haptic device, then
// releases the hubs and PortAudio.
func (a *app) Close() error {
	var errs []error
	if a.orch != nil {
		a.orch.Dispose()
	}
	if a.srv != nil {
		errs = append(errs, a.srv.Hub().Close())
	}
	if a.hapticHub != nil {
		errs = append(errs, a.hapticHub.Close())
	}
	if a.portaudio {
		errs = append(errs, audio.Terminate())
		a.portaudio = false
	}
	return errors.Join(errs...)
}
