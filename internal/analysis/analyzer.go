// SPDX-License-Identifier: MIT

// Package analysis turns PCM audio into a per-frame haptic intensity
// signal. The Analyzer owns only scratch buffers; all running state lives in
// an explicit State value threaded through Analyze.
package analysis

import (
	"fmt"
	"math"
	"sync"

	"hapsync/internal/config"
	"hapsync/internal/log"
	"hapsync/pkg/bitint"
)

// Params configures framing.
type Params struct {
	SampleRate int
	FrameSize  int
	HopSize    int
	Window     string
}

// DefaultParams returns 44.1 kHz, 2048-sample Hann frames with a 512 hop.
func DefaultParams() Params {
	return Params{
		SampleRate: config.DefaultSampleRate,
		FrameSize:  config.DefaultFrameSize,
		HopSize:    config.DefaultHopSize,
		Window:     config.DefaultWindow,
	}
}

// ParamsFromConfig maps the analysis config section onto Params.
func ParamsFromConfig(c config.AnalysisConfig) Params {
	return Params{
		SampleRate: c.SampleRate,
		FrameSize:  c.FrameSize,
		HopSize:    c.HopSize,
		Window:     c.Window,
	}
}

// Output holds one value per analysis frame in each channel.
type Output struct {
	Intensity []float64 // final intensity within [MinIntensity, MaxIntensity]
	Accent    []float64 // voice spike pulse, 0 when idle
	Drop      []float64 // bass-drop pulse before combination
}

// Len returns the number of frames.
func (o Output) Len() int { return len(o.Intensity) }

// Analyzer computes intensities from PCM. Calls are serialized internally.
type Analyzer struct {
	mu     sync.Mutex
	params Params
	spec   *spectrum
	bins   bandBins
	mono   []float64
}

// NewAnalyzer validates p and allocates the FFT workspace.
func NewAnalyzer(p Params) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(p.FrameSize) {
		return nil, fmt.Errorf("frame size must be a power of 2, got %d", p.FrameSize)
	}
	if p.HopSize <= 0 || p.HopSize > p.FrameSize {
		return nil, fmt.Errorf("hop size must be within (0, %d], got %d", p.FrameSize, p.HopSize)
	}
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	w, err := ParseWindowFunc(p.Window)
	if err != nil {
		return nil, err
	}

	spec := newSpectrum(p.FrameSize, float64(p.SampleRate), w)
	log.Debugf("analysis: frame %d, hop %d (%.0f%% overlap), %d Hz, window %s",
		p.FrameSize, p.HopSize, bitint.Overlap(p.FrameSize, p.HopSize)*100, p.SampleRate, w)

	return &Analyzer{
		params: p,
		spec:   spec,
		bins:   newBandBins(spec),
	}, nil
}

// Params returns the framing the analyzer was built with.
func (a *Analyzer) Params() Params { return a.params }

// FrameCount returns the number of frames produced for n mono samples.
func (a *Analyzer) FrameCount(n int) int {
	return FrameCount(n, a.params.FrameSize, a.params.HopSize)
}

// FrameDuration is the time step between consecutive output values, in seconds.
func (a *Analyzer) FrameDuration() float64 {
	return float64(a.params.HopSize) / float64(a.params.SampleRate)
}

// FrameCount returns 0 if n < frame, else 1 + (n-frame)/hop.
func FrameCount(n, frame, hop int) int {
	if n < frame || hop <= 0 {
		return 0
	}
	return 1 + (n-frame)/hop
}

// Analyze runs the intensity model over samples, interleaved with the given
// channel count, starting from st. It returns the per-frame output and the
// state after the last frame. Input shorter than one frame yields an empty
// Output and st unchanged.
func (a *Analyzer) Analyze(samples []float32, channels int, st State, s config.SyncSettings) (Output, State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.mono = downmix(a.mono[:0], samples, channels)
	n := a.FrameCount(len(a.mono))
	if n == 0 {
		return Output{}, st
	}

	out := Output{
		Intensity: make([]float64, n),
		Accent:    make([]float64, n),
		Drop:      make([]float64, n),
	}
	frame, hop := a.params.FrameSize, a.params.HopSize
	for i := range n {
		power := a.spec.compute(a.mono[i*hop : i*hop+frame])
		raw := st.update(a.bins.energies(power))
		out.Intensity[i] = applySettings(raw, s)
		out.Accent[i] = st.voicePulse
		out.Drop[i] = st.dropPulse
	}
	return out, st
}

// applySettings applies the sensitivity curve to non-zero values, then clamps.
func applySettings(v float64, s config.SyncSettings) float64 {
	if v > 0 && s.Sensitivity > 0 {
		v = math.Pow(v, 1/s.Sensitivity)
	}
	return clamp(v, s.MinIntensity, s.MaxIntensity)
}

// downmix averages interleaved channels into dst. A trailing partial
// sample group is dropped.
func downmix(dst []float64, samples []float32, channels int) []float64 {
	if channels <= 1 {
		for _, v := range samples {
			dst = append(dst, float64(v))
		}
		return dst
	}
	inv := 1 / float64(channels)
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float64
		for c := range channels {
			sum += float64(samples[i+c])
		}
		dst = append(dst, sum*inv)
	}
	return dst
}
