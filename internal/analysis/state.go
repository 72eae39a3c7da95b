// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	shortWindow  = 20  // ~230 ms of local energy
	mediumWindow = 60  // ~700 ms, split in halves for drop detection
	longWindow   = 100 // ~1.2 s, split in halves for loudness trend
	warmupFrames = 500 // EMA adapts quickly until this many frames

	slowAlpha   = 0.002
	maxDecay    = 0.9995
	epsilon     = 1e-10
	basePlateau = 0.25
)

// State is the running analysis state for one session. It is a plain value:
// copying a State yields an independent state, and the zero value is a
// freshly reset state.
type State struct {
	frames       int
	avgEnergy    float64 // EMA of total energy
	maxEnergy    float64 // running max of total energy
	baseline     float64 // EMA of the drop signal
	voiceAvg     float64 // EMA of voice band energy
	smoothedBass float64
	dropPulse    float64
	voicePulse   float64

	short  [shortWindow]float64
	medium [mediumWindow]float64
	long   [longWindow]float64
}

// Reset clears all running state.
func (s *State) Reset() {
	*s = State{}
}

// Frames returns the number of frames folded into the state.
func (s State) Frames() int { return s.frames }

// AverageEnergy returns the long-run average of total energy.
func (s State) AverageEnergy() float64 { return s.avgEnergy }

// PeakEnergy returns the running maximum of total energy.
func (s State) PeakEnergy() float64 { return s.maxEnergy }

// DropPulse returns the current bass-drop pulse in [0, 1].
func (s State) DropPulse() float64 { return s.dropPulse }

// VoicePulse returns the current voice spike pulse.
func (s State) VoicePulse() float64 { return s.voicePulse }

func emaAlpha(frames int) float64 {
	if frames < warmupFrames {
		return 1 / float64(frames+1)
	}
	return slowAlpha
}

// update folds one frame into the state and returns the combined intensity
// before user settings are applied.
func (s *State) update(e BandEnergies) float64 {
	total := e.Total()
	drop := e.DropSignal()

	alpha := emaAlpha(s.frames)
	s.avgEnergy += alpha * (total - s.avgEnergy)
	s.baseline += alpha * (drop - s.baseline)
	s.voiceAvg += alpha * (e.Voice - s.voiceAvg)
	switch {
	case total > s.maxEnergy:
		s.maxEnergy = total
	case s.frames >= warmupFrames:
		s.maxEnergy *= maxDecay
	}

	s.short[s.frames%shortWindow] = total
	s.medium[s.frames%mediumWindow] = drop
	s.long[s.frames%longWindow] = total
	s.frames++

	loud := clamp(total/math.Max(0.5*s.avgEnergy, epsilon), 0, 3) / 3
	s.smoothedBass = 0.2*loud + 0.8*s.smoothedBass

	base := 0.0
	if s.smoothedBass >= 0.1 {
		base = basePlateau
	}

	var triggered bool
	if s.frames >= mediumWindow {
		earlier, later := halves(s.medium[:], s.frames)
		triggered = later > 2.5*earlier && later > 1.5*s.baseline
	}
	if !triggered && s.frames >= longWindow {
		earlier, later := halves(s.long[:], s.frames)
		triggered = later > 2*earlier && mean(s.short[:]) > 2*s.avgEnergy
	}
	s.dropPulse = dropPulse.step(s.dropPulse, triggered)

	voiceTriggered := s.frames >= shortWindow && e.Voice > 2.5*s.voiceAvg
	s.voicePulse = voicePulse.step(s.voicePulse, voiceTriggered)

	switch {
	case s.dropPulse > 0.4:
		return 1.0
	case loud < 0.08:
		return 0
	default:
		return base
	}
}

// halves returns the mean of the older and newer half of a full ring whose
// next write position is frames % len(buf).
func halves(buf []float64, frames int) (earlier, later float64) {
	n := len(buf)
	oldest := frames % n
	half := n / 2
	mid := (oldest + half) % n
	total := floats.Sum(buf)
	if oldest < mid {
		earlier = floats.Sum(buf[oldest:mid])
		later = total - earlier
	} else {
		later = floats.Sum(buf[mid:oldest])
		earlier = total - later
	}
	return earlier / float64(half), later / float64(n-half)
}

func mean(buf []float64) float64 {
	return floats.Sum(buf) / float64(len(buf))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
