// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EnvelopeOptions controls how an intensity timeline is rendered to audio.
type EnvelopeOptions struct {
	SampleRate int
	Frequency  float64
	BitDepth   int
}

// DefaultEnvelopeOptions renders a 45 Hz carrier at 44.1 kHz, 16 bit.
func DefaultEnvelopeOptions() EnvelopeOptions {
	return EnvelopeOptions{SampleRate: 44100, Frequency: 45, BitDepth: 16}
}

// WriteEnvelope renders intensity, one value per frameDuration seconds, as a
// mono sine carrier and encodes it as WAV into w.
func WriteEnvelope(w io.WriteSeeker, intensity []float64, frameDuration float64, opts EnvelopeOptions) error {
	if frameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %g", frameDuration)
	}
	if opts.SampleRate <= 0 || opts.Frequency <= 0 {
		return errors.New("envelope sample rate and frequency must be positive")
	}
	if opts.BitDepth != 16 && opts.BitDepth != 24 {
		return fmt.Errorf("unsupported bit depth %d", opts.BitDepth)
	}

	enc := wav.NewEncoder(w, opts.SampleRate, opts.BitDepth, 1, 1)
	scale := float64(int(1)<<(opts.BitDepth-1) - 1)
	osc := newOscillator(opts.Frequency, float64(opts.SampleRate))
	rate := float64(opts.SampleRate)

	var block []float32
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: opts.SampleRate},
		SourceBitDepth: opts.BitDepth,
	}
	for k, v := range intensity {
		from := int(math.Round(float64(k) * frameDuration * rate))
		to := int(math.Round(float64(k+1) * frameDuration * rate))
		n := to - from
		if n <= 0 {
			continue
		}
		if cap(block) < n {
			block = make([]float32, n)
			buf.Data = make([]int, n)
		}
		block = block[:n]
		buf.Data = buf.Data[:n]
		osc.render(block, v)
		for i, s := range block {
			buf.Data[i] = int(float64(s) * scale)
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("failed to write envelope: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize envelope: %w", err)
	}
	return nil
}

// ExportEnvelope writes the rendered envelope to a new file at path.
func ExportEnvelope(path string, intensity []float64, frameDuration float64, opts EnvelopeOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteEnvelope(f, intensity, frameDuration, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
