// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

const testSampleRate = 48000

func peak(buf []float32) float64 {
	var p float64
	for _, s := range buf {
		p = max(p, math.Abs(float64(s)))
	}
	return p
}

func TestOscillatorSilence(t *testing.T) {
	osc := newOscillator(45, testSampleRate)
	out := make([]float32, 512)
	osc.render(out, 0)
	if p := peak(out); p != 0 {
		t.Errorf("silent render peak = %g", p)
	}
}

func TestOscillatorGlidesToTarget(t *testing.T) {
	osc := newOscillator(45, testSampleRate)
	out := make([]float32, testSampleRate/10)
	osc.render(out, 0.8)

	// First samples are still gliding up from zero.
	if p := peak(out[:10]); p > 0.1 {
		t.Errorf("initial peak = %g, expected a glide", p)
	}
	if p := peak(out[len(out)/2:]); math.Abs(p-0.8) > 0.02 {
		t.Errorf("settled peak = %g, want ~0.8", p)
	}

	osc.render(out, 2)
	if p := peak(out); p > 1.0001 {
		t.Errorf("target above 1 should clamp, peak = %g", p)
	}
}

func TestOscillatorNoAllocs(t *testing.T) {
	osc := newOscillator(45, testSampleRate)
	out := make([]float32, 256)
	allocs := testing.AllocsPerRun(100, func() {
		osc.render(out, 0.5)
	})
	if allocs > 0 {
		t.Errorf("render allocated %.1f times", allocs)
	}
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0},
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0},
	}
	s := newShaker(ShakerOptions{Frequency: 45}, testSampleRate)
	for _, tt := range tests {
		s.SetGateThreshold(tt.input)
		if got := s.GetGateThreshold(); math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("SetGateThreshold(%g): got %.3f, want %.3f", tt.input, got, tt.expected)
		}
	}
}

func TestShakerGate(t *testing.T) {
	s := newShaker(ShakerOptions{Frequency: 45, Gate: 0.1}, testSampleRate)
	if !s.gateEnabled.Load() {
		t.Fatal("gate should be enabled when a threshold is configured")
	}

	tests := []struct {
		desc    string
		enabled bool
		v       float64
		want    float64
	}{
		{"enabled/below", true, 0.05, 0},
		{"enabled/at", true, 0.1, 0},
		{"enabled/above", true, 0.5, 0.5},
		{"disabled/below", false, 0.05, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if tt.enabled {
				s.EnableGate()
			} else {
				s.DisableGate()
			}
			if got := s.gated(tt.v); got != tt.want {
				t.Errorf("gated(%g) = %g, want %g", tt.v, got, tt.want)
			}
		})
	}
}

func TestShakerProcess(t *testing.T) {
	s := newShaker(ShakerOptions{Frequency: 45, Gate: 0.1}, testSampleRate)
	out := make([]float32, 4800)

	s.SetIntensity(0.05)
	s.process(out)
	if p := peak(out); p != 0 {
		t.Errorf("gated intensity produced output, peak = %g", p)
	}

	s.SetIntensity(0.6)
	s.process(out)
	if p := peak(out[2400:]); math.Abs(p-0.6) > 0.02 {
		t.Errorf("peak = %g, want ~0.6", p)
	}

	s.SetIntensity(math.NaN())
	if s.Intensity() != 0 {
		t.Errorf("NaN intensity = %g", s.Intensity())
	}
	s.SetIntensity(7)
	if s.Intensity() != 1 {
		t.Errorf("clamped intensity = %g", s.Intensity())
	}

	if err := s.Stop(); err != nil {
		t.Errorf("stop without stream: %v", err)
	}
	if s.Running() {
		t.Error("shaker should not be running")
	}
	if err := s.Start(); err == nil {
		t.Error("start without device should fail")
	}
}

func stubDevices(t *testing.T, infos []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) {
	t.Helper()
	origDevices, origDefault := paDevicesFunc, paDefaultOutputFunc
	t.Cleanup(func() { paDevicesFunc, paDefaultOutputFunc = origDevices, origDefault })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, nil }
	paDefaultOutputFunc = func() (*portaudio.DeviceInfo, error) {
		if def == nil {
			return nil, errors.New("no default")
		}
		return def, nil
	}
}

var fakeDevices = []*portaudio.DeviceInfo{
	{Name: "Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
	{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100,
		DefaultLowOutputLatency: 5 * time.Millisecond, DefaultHighOutputLatency: 40 * time.Millisecond,
		HostApi: &portaudio.HostApiInfo{Name: "ALSA"}},
	{Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 96000},
}

func TestHostDevices(t *testing.T) {
	stubDevices(t, fakeDevices, fakeDevices[1])

	all, err := HostDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("devices = %d", len(all))
	}
	for i, d := range all {
		if d.ID != i {
			t.Errorf("device ID mismatch: got %d, want %d", d.ID, i)
		}
	}
	if all[0].Kind() != "Input" || all[1].Kind() != "Output" || all[2].Kind() != "Input/Output" {
		t.Errorf("kinds = %s %s %s", all[0].Kind(), all[1].Kind(), all[2].Kind())
	}
	if all[1].HostAPI != "ALSA" {
		t.Errorf("host api = %q", all[1].HostAPI)
	}

	outs, err := OutputDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 || outs[0].Name != "Speakers" || outs[1].ID != 2 {
		t.Errorf("outputs = %+v", outs)
	}
}

func TestOutputDeviceInfo(t *testing.T) {
	stubDevices(t, fakeDevices, fakeDevices[1])

	if info, err := outputDeviceInfo(DefaultDeviceID); err != nil || info.Name != "Speakers" {
		t.Errorf("default = %v, %v", info, err)
	}
	if info, err := outputDeviceInfo(2); err != nil || info.Name != "Interface" {
		t.Errorf("id 2 = %v, %v", info, err)
	}

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"negative", -2, "invalid device ID"},
		{"too high", 10, "invalid device ID"},
		{"input only", 0, "does not support output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := outputDeviceInfo(tt.id)
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("err = %v, want substring %q", err, tt.substr)
			}
		})
	}

	stubDevices(t, fakeDevices, nil)
	if _, err := outputDeviceInfo(DefaultDeviceID); err == nil {
		t.Error("expected error without a default device")
	}
}

func TestNewShaker(t *testing.T) {
	stubDevices(t, fakeDevices, fakeDevices[1])

	s, err := NewShaker(ShakerOptions{DeviceID: DefaultDeviceID, Frequency: 40, LowLatency: true})
	if err != nil {
		t.Fatal(err)
	}
	if s.sampleRate != 44100 || s.Latency() != 5*time.Millisecond {
		t.Errorf("rate = %g latency = %s", s.sampleRate, s.Latency())
	}
	if s.opts.FramesPerBuffer != 256 {
		t.Errorf("frames per buffer = %d", s.opts.FramesPerBuffer)
	}
	if _, err := NewShaker(ShakerOptions{Frequency: 0}); err == nil {
		t.Error("expected frequency error")
	}
}

func TestListDevices(t *testing.T) {
	stubDevices(t, fakeDevices, nil)
	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"[0] Mic (Input)", "[1] Speakers (Output)", "Host API: ALSA", "44100 Hz"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestExportEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envelope.wav")
	intensity := []float64{0, 0, 1, 1, 0.5}
	const frame = 0.1
	opts := DefaultEnvelopeOptions()

	if err := ExportEnvelope(path, intensity, frame, opts); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if int(d.SampleRate) != opts.SampleRate || d.NumChans != 1 {
		t.Errorf("format = %d Hz, %d ch", d.SampleRate, d.NumChans)
	}
	perFrame := int(frame * float64(opts.SampleRate))
	if len(buf.Data) != len(intensity)*perFrame {
		t.Fatalf("samples = %d, want %d", len(buf.Data), len(intensity)*perFrame)
	}

	// framePeak measures the second half of frame k, after the glide settles.
	framePeak := func(k int) float64 {
		var p int
		for _, s := range buf.Data[k*perFrame+perFrame/2 : (k+1)*perFrame] {
			if s < 0 {
				s = -s
			}
			p = max(p, s)
		}
		return float64(p) / 32767
	}
	if p := framePeak(0); p != 0 {
		t.Errorf("silent frame peak = %g", p)
	}
	if p := framePeak(3); p < 0.95 {
		t.Errorf("full intensity frame peak = %g", p)
	}
	if p := framePeak(4); p < 0.45 || p > 0.55 {
		t.Errorf("half intensity frame should settle near 0.5, peak = %g", p)
	}
}

func TestWriteEnvelopeRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := ExportEnvelope(path, []float64{1}, 0, DefaultEnvelopeOptions()); err == nil {
		t.Error("expected frame duration error")
	}
	opts := DefaultEnvelopeOptions()
	opts.BitDepth = 8
	if err := ExportEnvelope(path, []float64{1}, 0.1, opts); err == nil {
		t.Error("expected bit depth error")
	}
	if err := ExportEnvelope(filepath.Join(t.TempDir(), "missing", "x.wav"), nil, 0.1, DefaultEnvelopeOptions()); err == nil {
		t.Error("expected create error")
	}
}
