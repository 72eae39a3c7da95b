// SPDX-License-Identifier: MIT

// Package source provides mono float PCM for arbitrary time ranges of a
// media URL. Remote media is decoded by an ffmpeg subprocess, local audio
// files by beep.
package source

import (
	"context"
	"errors"
	"io"
)

// Failure classes. Implementations wrap one of these so callers can tell a
// network problem from unreadable audio with errors.Is.
var (
	ErrFetch  = errors.New("fetch failed")
	ErrDecode = errors.New("decode failed")
)

// Source reads PCM from one opened media URL.
type Source interface {
	// ReadSegment returns mono samples covering [start, start+dur) seconds
	// at SampleRate. Near the end of the media it returns fewer samples;
	// at or past the end it returns io.EOF.
	ReadSegment(ctx context.Context, start, dur float64) ([]float32, error)
	// Duration is the media length in seconds, 0 when unknown.
	Duration() float64
	SampleRate() int
	Close() error
}

// Opener creates a Source for a URL.
type Opener interface {
	Open(ctx context.Context, url string) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, url string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, url string) (Source, error) {
	return f(ctx, url)
}

// Mux routes local audio files to the beep decoder and everything else to
// ffmpeg.
type Mux struct {
	File   *File
	FFmpeg *FFmpeg
}

// NewMux returns a Mux decoding at sampleRate.
func NewMux(sampleRate int, ffmpegBin, ffprobeBin, userAgent string) *Mux {
	return &Mux{
		File: &File{SampleRate: sampleRate},
		FFmpeg: &FFmpeg{
			Bin:        ffmpegBin,
			ProbeBin:   ffprobeBin,
			Rate:       sampleRate,
			UserAgent:  userAgent,
			StderrSize: 4096,
		},
	}
}

func (m *Mux) Open(ctx context.Context, url string) (Source, error) {
	if path, ok := localPath(url); ok && m.File != nil && m.File.Supports(path) {
		return m.File.Open(ctx, path)
	}
	return m.FFmpeg.Open(ctx, url)
}

// Static serves a fixed mono buffer. It backs tests and the offline analyze
// command when PCM is already in memory.
type Static struct {
	Samples []float32
	Rate    int
}

func (s *Static) ReadSegment(ctx context.Context, start, dur float64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from := int(start * float64(s.Rate))
	if from >= len(s.Samples) || from < 0 {
		return nil, io.EOF
	}
	to := min(from+int(dur*float64(s.Rate)), len(s.Samples))
	out := make([]float32, to-from)
	copy(out, s.Samples[from:to])
	return out, nil
}

func (s *Static) Duration() float64 {
	return float64(len(s.Samples)) / float64(s.Rate)
}

func (s *Static) SampleRate() int { return s.Rate }
func (s *Static) Close() error    { return nil }
