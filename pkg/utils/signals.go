// SPDX-License-Identifier: MIT

// Package utils generates deterministic PCM test signals. Samples are mono
// float32 in [-1, 1] unless stated otherwise.
package utils

import "math"

// Silence returns n zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// SineWave returns n samples of a sine at frequency Hz with the given peak amplitude.
func SineWave(n int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, n)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// ComplexWave returns a 440 Hz fundamental with two harmonics, peaking near 0.9.
func ComplexWave(n int, sampleRate float64) []float32 {
	buffer := make([]float32, n)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// SilenceThenTone returns silenceSec seconds of silence followed by toneSec
// seconds of a sine at frequency Hz. The tone phase starts at zero.
func SilenceThenTone(silenceSec, toneSec, sampleRate, frequency, amplitude float64) []float32 {
	quiet := int(silenceSec * sampleRate)
	loud := int(toneSec * sampleRate)
	out := make([]float32, 0, quiet+loud)
	out = append(out, Silence(quiet)...)
	return append(out, SineWave(loud, sampleRate, frequency, amplitude)...)
}

// Interleave duplicates a mono buffer into interleaved stereo.
func Interleave(mono []float32) []float32 {
	out := make([]float32, 2*len(mono))
	for i, s := range mono {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
