// SPDX-License-Identifier: MIT
package analysis

import "gonum.org/v1/gonum/floats"

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// The four bands the intensity model reads.
var (
	BassBand    = FrequencyBand{Name: "bass", LowHz: 21, HighHz: 129}
	SubBassBand = FrequencyBand{Name: "sub", LowHz: 21, HighHz: 65}
	MidBand     = FrequencyBand{Name: "mid", LowHz: 150, HighHz: 1000}
	VoiceBand   = FrequencyBand{Name: "voice", LowHz: 430, HighHz: 4000}
)

// BandEnergies is the summed power in each band for one frame.
type BandEnergies struct {
	Bass  float64
	Sub   float64
	Mid   float64
	Voice float64
}

// Total is the loudness proxy: bass plus half-weighted mids.
func (e BandEnergies) Total() float64 {
	return e.Bass + 0.5*e.Mid
}

// DropSignal is the medium-window input for bass-drop detection.
func (e BandEnergies) DropSignal() float64 {
	return e.Sub + 0.5*e.Bass
}

type binSpan struct{ lo, hi int }

func (b binSpan) sum(power []float64) float64 {
	return floats.Sum(power[b.lo:b.hi])
}

// bandBins caches bin spans for the four bands at a given FFT resolution.
type bandBins struct {
	bass, sub, mid, voice binSpan
}

func newBandBins(s *spectrum) bandBins {
	span := func(b FrequencyBand) binSpan {
		lo, hi := s.binRange(b.LowHz, b.HighHz)
		return binSpan{lo, hi}
	}
	return bandBins{
		bass:  span(BassBand),
		sub:   span(SubBassBand),
		mid:   span(MidBand),
		voice: span(VoiceBand),
	}
}

func (b bandBins) energies(power []float64) BandEnergies {
	return BandEnergies{
		Bass:  b.bass.sum(power),
		Sub:   b.sub.sum(power),
		Mid:   b.mid.sum(power),
		Voice: b.voice.sum(power),
	}
}
