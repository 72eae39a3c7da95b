// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"testing"
)

const testSampleRate = 44100

func TestSineWaveAmplitude(t *testing.T) {
	buf := SineWave(testSampleRate, testSampleRate, 50, 0.8)
	var peak float64
	for _, s := range buf {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if math.Abs(peak-0.8) > 0.01 {
		t.Errorf("peak amplitude = %.3f, want ~0.8", peak)
	}
}

func TestSilenceThenTone(t *testing.T) {
	buf := SilenceThenTone(1, 0.5, testSampleRate, 50, 1)
	if len(buf) != testSampleRate+testSampleRate/2 {
		t.Fatalf("len = %d, want %d", len(buf), testSampleRate+testSampleRate/2)
	}
	for i := 0; i < testSampleRate; i++ {
		if buf[i] != 0 {
			t.Fatalf("sample %d = %v during silence", i, buf[i])
		}
	}
	var energy float64
	for _, s := range buf[testSampleRate:] {
		energy += float64(s) * float64(s)
	}
	if energy == 0 {
		t.Error("tone section is silent")
	}
}

func TestInterleave(t *testing.T) {
	out := Interleave([]float32{0.1, -0.2})
	want := []float32{0.1, 0.1, -0.2, -0.2}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestFindPeakBin(t *testing.T) {
	mags := make([]float64, 64)
	for i := range mags {
		mags[i] = math.Exp(-0.05 * math.Pow(float64(i-20), 2))
	}

	tests := []struct {
		name       string
		start, end int
		want       int
	}{
		{"Full range", 0, 63, 20},
		{"Clamped bounds", -5, 100, 20},
		{"Right of peak", 30, 63, 30},
		{"Left of peak", 0, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(mags, tt.start, tt.end); got != tt.want {
				t.Errorf("FindPeakBin(%d, %d) = %d, want %d", tt.start, tt.end, got, tt.want)
			}
		})
	}

	if got := FindPeakBin(nil, 0, 10); got != 0 {
		t.Errorf("FindPeakBin(nil) = %d, want 0", got)
	}
}
