// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hapsync/internal/analysis"
	"hapsync/internal/audio"
	"hapsync/internal/config"
	"hapsync/internal/source"
	"hapsync/internal/stream"
	"hapsync/internal/tui"
	"hapsync/pkg/utils"
)

func newSessionAnalyzer(t *testing.T) *stream.SessionAnalyzer {
	t.Helper()
	a, err := analysis.NewAnalyzer(analysis.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	return stream.NewSessionAnalyzer(a, config.NewSettingsStore(config.DefaultSyncSettings()))
}

func TestAnalyzeSourceSegments(t *testing.T) {
	const rate = 44100
	src := &source.Static{Samples: utils.SineWave(50*rate, rate, 60, 0.8), Rate: rate}

	var calls []int
	track, err := analyzeSource(context.Background(), src, newSessionAnalyzer(t), 20, func(done int) {
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 3 {
		t.Errorf("progress calls = %v, want 3 segments", calls)
	}
	if len(track.Intensity) == 0 || len(track.Intensity) != len(track.Times) || len(track.Accent) != len(track.Times) {
		t.Fatalf("lengths: times %d intensity %d accent %d", len(track.Times), len(track.Intensity), len(track.Accent))
	}
	for i := 1; i < len(track.Times); i++ {
		if track.Times[i] <= track.Times[i-1] {
			t.Fatalf("times not increasing at %d: %g <= %g", i, track.Times[i], track.Times[i-1])
		}
	}
	for i, v := range track.Intensity {
		if v < 0 || v > 1 {
			t.Fatalf("intensity[%d] = %g out of range", i, v)
		}
	}
	if end := track.end(); end < 45 || end > 50.5 {
		t.Errorf("end = %g", end)
	}
}

func TestAnalyzeSourceEmpty(t *testing.T) {
	src := &source.Static{Rate: 44100}
	_, err := analyzeSource(context.Background(), src, newSessionAnalyzer(t), 20, nil)
	if !errors.Is(err, stream.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestWriteCSV(t *testing.T) {
	track := frameTrack{
		Times:     []float64{0, 0.0116},
		Intensity: []float64{0.1, 0.25},
		Accent:    []float64{0, 0.5},
	}
	var buf bytes.Buffer
	if err := writeCSV(&buf, track); err != nil {
		t.Fatal(err)
	}
	want := "time,intensity,accent\n0.0000,0.1000,0.0000\n0.0116,0.2500,0.5000\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.wav")
	envelope := []float64{0.2, 0.4, 0.6, 0.8, 1, 0.8, 0.6, 0.4}
	if err := audio.ExportEnvelope(input, envelope, 0.5, audio.DefaultEnvelopeOptions()); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.csv")
	preview := filepath.Join(dir, "preview.wav")

	root := NewRootCommand()
	root.SetArgs([]string{"analyze", "--quiet", "-o", out, "--preview", preview, input})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) < 100 || strings.Join(rows[0], ",") != "time,intensity,accent" {
		t.Errorf("csv has %d rows, header %v", len(rows), rows[0])
	}
	if info, err := os.Stat(preview); err != nil || info.Size() <= 44 {
		t.Errorf("preview: %v", err)
	}
}

func TestAnalyzeCommandArgs(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"analyze"})
	root.SetErr(&bytes.Buffer{})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("expected an argument error")
	}
}

func TestServeOptionsApply(t *testing.T) {
	cfg := config.Default()
	opts := serveOptions{listen: "0.0.0.0:9000", driver: "log"}
	opts.apply(&cfg)
	if cfg.Server.ListenAddress != "0.0.0.0:9000" || cfg.Haptic.Driver != "log" {
		t.Errorf("config = %+v %+v", cfg.Server, cfg.Haptic)
	}
	if cfg.Haptic.UDPTargetAddress != config.Default().Haptic.UDPTargetAddress {
		t.Error("empty flag overrode the target")
	}
}

func TestNewAppLogDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Haptic.Driver = config.DriverLog
	settings := config.NewSettingsStore(cfg.Sync)

	a, err := newApp(&cfg, settings)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}

	// The log device is always connected, so a non-media URL is the reason
	// the session is skipped.
	req := httptest.NewRequest(http.MethodPost, "/api/video", strings.NewReader(`{"url":"https://example.com/article"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"skipped"`) {
		t.Errorf("video = %d %s", rec.Code, rec.Body)
	}
	if got := a.orch.Status().State.String(); got != "idle" {
		t.Errorf("state = %s", got)
	}
}

func TestNewAppUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Haptic.Driver = "telepathy"
	if _, err := newApp(&cfg, config.NewSettingsStore(cfg.Sync)); err == nil {
		t.Error("expected an error for an unknown driver")
	}
}

func TestPrintShakerConfig(t *testing.T) {
	var buf bytes.Buffer
	sel := tui.Selection{Device: audio.Device{ID: 4, Name: "USB"}, Frequency: 45}
	if err := printShakerConfig(&buf, sel); err != nil {
		t.Fatal(err)
	}
	want := "haptic:\n  driver: shaker\n  shaker_device: 4\n  shaker_frequency: 45\n"
	if buf.String() != want {
		t.Errorf("got\n%s", buf.String())
	}
}
