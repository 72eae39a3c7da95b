// SPDX-License-Identifier: MIT
package audio

import "math"

func (s *Shaker) EnableGate() {
	s.gateEnabled.Store(true)
}

func (s *Shaker) DisableGate() {
	s.gateEnabled.Store(false)
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (s *Shaker) SetGateThreshold(threshold float64) {
	threshold = max(0, min(1, threshold))
	s.gateThreshold.Store(int32(threshold * float64(math.MaxInt32)))
}

// GetGateThreshold returns the current noise gate threshold as a float64.
func (s *Shaker) GetGateThreshold() float64 {
	return float64(s.gateThreshold.Load()) / float64(math.MaxInt32)
}

// gated returns the intensity the oscillator should render: v when the gate
// is disabled or open, otherwise 0.
func (s *Shaker) gated(v float64) float64 {
	if !s.gateEnabled.Load() {
		return v
	}
	if int32(v*float64(math.MaxInt32)) > s.gateThreshold.Load() {
		return v
	}
	return 0
}
