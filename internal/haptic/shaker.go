// SPDX-License-Identifier: MIT
package haptic

import (
	"context"
	"sync/atomic"
	"time"

	"hapsync/internal/audio"
)

// ShakerDevice drives a tactile transducer through an audio output.
type ShakerDevice struct {
	shaker  *audio.Shaker
	latency time.Duration
	closed  atomic.Bool
}

// NewShakerDevice opens and starts the output stream. The anticipation latency
// is the configured actuator latency plus the stream's output latency.
func NewShakerDevice(opts audio.ShakerOptions, latency time.Duration) (*ShakerDevice, error) {
	s, err := audio.NewShaker(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return &ShakerDevice{shaker: s, latency: latency + s.Latency()}, nil
}

func (d *ShakerDevice) SetIntensity(_ context.Context, v float64) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.shaker.SetIntensity(v)
	return nil
}

func (d *ShakerDevice) Stop(_ context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.shaker.SetIntensity(0)
	return nil
}

func (d *ShakerDevice) IsConnected() bool {
	return !d.closed.Load() && d.shaker.Running()
}

func (d *ShakerDevice) AnticipationLatency() time.Duration { return d.latency }

func (d *ShakerDevice) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.shaker.Close()
}
