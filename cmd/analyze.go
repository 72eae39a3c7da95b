// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"hapsync/internal/analysis"
	"hapsync/internal/audio"
	"hapsync/internal/config"
	"hapsync/internal/log"
	"hapsync/internal/source"
	"hapsync/internal/stream"
	"hapsync/pkg/build"
)

type analyzeOptions struct {
	output    string
	preview   string
	frequency float64
	quiet     bool
}

func newAnalyzeCommand(g *globalOptions) *cobra.Command {
	opts := &analyzeOptions{}
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file-or-url>",
		Short: "Analyze a whole media file offline and write its intensity timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), g, opts, args[0])
		},
	}
	analyzeCmd.Flags().StringVarP(&opts.output, "output", "o", "",
		"CSV output file. Defaults to stdout")
	analyzeCmd.Flags().StringVarP(&opts.preview, "preview", "p", "",
		"Also render the intensity envelope as a WAV file")
	analyzeCmd.Flags().Float64Var(&opts.frequency, "preview-frequency", audio.DefaultEnvelopeOptions().Frequency,
		"Carrier frequency of the WAV preview in Hz")
	analyzeCmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false,
		"Hide the progress bar")
	return analyzeCmd
}

// frameTrack is the concatenated analysis of a whole file.
type frameTrack struct {
	Times         []float64
	Intensity     []float64
	Accent        []float64
	FrameDuration float64
}

func runAnalyze(ctx context.Context, g *globalOptions, opts *analyzeOptions, url string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	analyzer, err := analysis.NewAnalyzer(analysis.ParamsFromConfig(cfg.Analysis))
	if err != nil {
		return err
	}
	settings := config.NewSettingsStore(cfg.Sync)

	mux := source.NewMux(cfg.Analysis.SampleRate, cfg.Stream.FFmpegBin, cfg.Stream.FFprobeBin,
		build.GetBuildFlags().UserAgent())
	src, err := mux.Open(ctx, url)
	if err != nil {
		return fmt.Errorf("open %s: %w", source.Redact(url), err)
	}
	defer src.Close()

	segDur := cfg.Stream.SegmentDuration.Seconds()
	var progress func(done int)
	var p *mpb.Progress
	if !opts.quiet {
		var bar *mpb.Bar
		p, bar = newProgressBar(src.Duration(), segDur)
		progress = func(done int) {
			if src.Duration() <= 0 {
				bar.SetTotal(int64(done+1), false)
			}
			bar.Increment()
		}
		defer func() {
			bar.SetTotal(-1, true)
			p.Wait()
		}()
	}

	track, err := analyzeSource(ctx, src, stream.NewSessionAnalyzer(analyzer, settings), segDur, progress)
	if err != nil {
		return err
	}
	log.Infof("analyzed %s: %d frames over %.1fs", source.Redact(url), len(track.Intensity), track.end())

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := writeCSV(out, track); err != nil {
		return err
	}

	if opts.preview != "" {
		envOpts := audio.DefaultEnvelopeOptions()
		envOpts.Frequency = opts.frequency
		if err := audio.ExportEnvelope(opts.preview, track.Intensity, track.FrameDuration, envOpts); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		log.Infof("preview written to %s", opts.preview)
	}
	return nil
}

func newProgressBar(duration, segDur float64) (*mpb.Progress, *mpb.Bar) {
	total := int64(0)
	if duration > 0 {
		total = int64(math.Ceil(duration / segDur))
	}
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	bar := p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name("Analyzing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	return p, bar
}

// analyzeSource reads src segment by segment until io.EOF, threading the
// analyzer state across segments the way a live session does.
func analyzeSource(ctx context.Context, src source.Source, an stream.SegmentAnalyzer, segDur float64, progress func(done int)) (frameTrack, error) {
	track := frameTrack{FrameDuration: an.FrameDuration()}
	rate := float64(src.SampleRate())
	for idx := 0; ; idx++ {
		start := float64(idx) * segDur
		samples, err := src.ReadSegment(ctx, start, segDur)
		if errors.Is(err, io.EOF) {
			if idx == 0 {
				return track, fmt.Errorf("%w: no audio", stream.ErrDecode)
			}
			return track, nil
		}
		if err != nil {
			return track, fmt.Errorf("segment %d: %w", idx, err)
		}

		out := an.AnalyzeSegment(start, samples, idx == 0)
		for i, v := range out.Intensity {
			track.Times = append(track.Times, start+float64(i)*track.FrameDuration)
			track.Intensity = append(track.Intensity, v)
			if i < len(out.Accent) {
				track.Accent = append(track.Accent, out.Accent[i])
			} else {
				track.Accent = append(track.Accent, 0)
			}
		}
		if progress != nil {
			progress(idx)
		}
		if float64(len(samples)) < segDur*rate {
			return track, nil
		}
	}
}

func (t frameTrack) end() float64 {
	if len(t.Times) == 0 {
		return 0
	}
	return t.Times[len(t.Times)-1] + t.FrameDuration
}

// writeCSV writes one row per frame: time in seconds, intensity, accent.
func writeCSV(w io.Writer, t frameTrack) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "intensity", "accent"}); err != nil {
		return err
	}
	for i := range t.Intensity {
		row := []string{
			strconv.FormatFloat(t.Times[i], 'f', 4, 64),
			strconv.FormatFloat(t.Intensity[i], 'f', 4, 64),
			strconv.FormatFloat(t.Accent[i], 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
