// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// resampleQuality is passed to beep.Resample; 4 is beep's recommended default.
const resampleQuality = 4

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".oga":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
}

// File decodes local audio files in-process.
type File struct {
	SampleRate int // output sample rate
}

// Supports reports whether path has an extension File can decode.
func (f *File) Supports(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (f *File) Open(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrDecode, filepath.Ext(path))
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	streamer, format, err := decode(fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	return &fileSource{
		streamer: streamer,
		format:   format,
		rate:     beep.SampleRate(f.SampleRate),
	}, nil
}

type fileSource struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	rate     beep.SampleRate
}

func (s *fileSource) Duration() float64 {
	return float64(s.streamer.Len()) / float64(s.format.SampleRate)
}

func (s *fileSource) SampleRate() int { return int(s.rate) }

func (s *fileSource) Close() error {
	return s.streamer.Close()
}

func (s *fileSource) ReadSegment(ctx context.Context, start, dur float64) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.format.SampleRate.N(seconds(start))
	if from < 0 || from >= s.streamer.Len() {
		return nil, io.EOF
	}
	if err := s.streamer.Seek(from); err != nil {
		return nil, fmt.Errorf("%w: seek: %v", ErrDecode, err)
	}

	var src beep.Streamer = beep.Take(s.format.SampleRate.N(seconds(dur)), s.streamer)
	if s.format.SampleRate != s.rate {
		src = beep.Resample(resampleQuality, s.format.SampleRate, s.rate, src)
	}

	out := make([]float32, 0, s.rate.N(seconds(dur))+1)
	buf := make([][2]float64, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := src.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, float32((frame[0]+frame[1])/2))
		}
		if !ok {
			break
		}
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := s.streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
