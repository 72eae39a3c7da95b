// SPDX-License-Identifier: MIT
package analysis

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// spectrum holds the pre-allocated buffers for one frame's power spectrum.
// It is not safe for concurrent use.
type spectrum struct {
	fft        *fourier.FFT // Reusable FFT calculator instance.
	size       int          // Number of points for the FFT (power of 2).
	sampleRate float64      // Sample rate of the input audio (Hz).
	window     []float64    // Pre-calculated window coefficients.
	input      []float64    // Windowed frame.
	coeffs     []complex128 // FFT output, size/2 + 1 bins.
	power      []float64    // Squared magnitude per bin.
}

func newSpectrum(size int, sampleRate float64, w WindowFunc) *spectrum {
	bins := size/2 + 1
	return &spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		window:     windowCoefficients(size, w),
		input:      make([]float64, size),
		coeffs:     make([]complex128, bins),
		power:      make([]float64, bins),
	}
}

// compute windows frame (len == size) and fills s.power.
func (s *spectrum) compute(frame []float64) []float64 {
	for i, v := range frame {
		s.input[i] = v * s.window[i]
	}
	s.fft.Coefficients(s.coeffs, s.input)
	for i, c := range s.coeffs {
		re, im := real(c), imag(c)
		s.power[i] = re*re + im*im
	}
	return s.power
}

// binFrequency returns the center frequency (Hz) for a given FFT bin index.
func (s *spectrum) binFrequency(bin int) float64 {
	if bin < 0 || bin >= len(s.power) {
		return 0
	}
	return float64(bin) * s.sampleRate / float64(s.size)
}

// binRange returns the half-open bin range [lo, hi) whose center
// frequencies fall within [lowHz, highHz].
func (s *spectrum) binRange(lowHz, highHz float64) (lo, hi int) {
	lo, hi = len(s.power), 0
	for i := range s.power {
		f := s.binFrequency(i)
		if f >= lowHz && f <= highHz {
			if i < lo {
				lo = i
			}
			hi = i + 1
		}
	}
	if hi <= lo {
		return 0, 0
	}
	return lo, hi
}
