// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ShakerOptions configures a tactile transducer driven through an audio output.
type ShakerOptions struct {
	DeviceID        int
	Frequency       float64 // carrier in Hz
	Gate            float64 // intensities at or below this render silence
	FramesPerBuffer int
	LowLatency      bool
}

// Shaker renders haptic intensity as a low-frequency sine on a PortAudio
// output stream. SetIntensity is safe to call from any goroutine; the audio
// callback only reads atomics.
type Shaker struct {
	opts       ShakerOptions
	device     *portaudio.DeviceInfo
	sampleRate float64
	latency    time.Duration

	mu     sync.Mutex
	stream *portaudio.Stream

	osc           oscillator
	target        atomic.Uint64 // math.Float64bits of the requested intensity
	gateEnabled   atomic.Bool
	gateThreshold atomic.Int32 // fraction of math.MaxInt32
}

// NewShaker resolves the output device. PortAudio must be initialized.
func NewShaker(opts ShakerOptions) (*Shaker, error) {
	if opts.Frequency <= 0 {
		return nil, fmt.Errorf("shaker frequency must be positive, got %g", opts.Frequency)
	}
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = 256
	}
	device, err := outputDeviceInfo(opts.DeviceID)
	if err != nil {
		return nil, err
	}
	s := newShaker(opts, device.DefaultSampleRate)
	s.device = device
	if opts.LowLatency {
		s.latency = device.DefaultLowOutputLatency
	} else {
		s.latency = device.DefaultHighOutputLatency
	}
	return s, nil
}

func newShaker(opts ShakerOptions, sampleRate float64) *Shaker {
	s := &Shaker{
		opts:       opts,
		sampleRate: sampleRate,
		osc:        newOscillator(opts.Frequency, sampleRate),
	}
	s.SetGateThreshold(opts.Gate)
	s.gateEnabled.Store(opts.Gate > 0)
	return s
}

// Start opens and starts the output stream.
func (s *Shaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}
	if s.device == nil {
		return errors.New("shaker has no output device")
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   s.device,
			Latency:  s.latency,
		},
		FramesPerBuffer: s.opts.FramesPerBuffer,
		SampleRate:      s.sampleRate,
	}
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	s.stream = stream
	return nil
}

// Stop silences and closes the output stream.
func (s *Shaker) Stop() error {
	s.SetIntensity(0)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	s.stream = nil
	return nil
}

// Running reports whether the output stream is open.
func (s *Shaker) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// SetIntensity sets the target amplitude in [0, 1].
func (s *Shaker) SetIntensity(v float64) {
	if math.IsNaN(v) {
		v = 0
	}
	s.target.Store(math.Float64bits(max(0, min(1, v))))
}

// Intensity returns the last requested intensity.
func (s *Shaker) Intensity() float64 {
	return math.Float64frombits(s.target.Load())
}

// Latency returns the output latency the stream was opened with.
func (s *Shaker) Latency() time.Duration { return s.latency }

func (s *Shaker) Close() error { return s.Stop() }

// process is the PortAudio output callback. It only touches preallocated
// state and atomics.
func (s *Shaker) process(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	s.osc.render(out, s.gated(s.Intensity()))
}
