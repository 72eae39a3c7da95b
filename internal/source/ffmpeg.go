// SPDX-License-Identifier: MIT
package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"hapsync/internal/log"
)

// FFmpeg opens any URL ffmpeg can demux. Each ReadSegment runs one ffmpeg
// process that seeks to the segment start and writes raw f32le mono PCM.
type FFmpeg struct {
	Bin        string // ffmpeg binary
	ProbeBin   string // ffprobe binary, empty disables probing
	Rate       int    // output sample rate
	UserAgent  string // sent for http(s) inputs
	StderrSize int    // bytes of stderr kept for error messages
}

func (f *FFmpeg) Open(ctx context.Context, url string) (Source, error) {
	s := &ffmpegSource{cfg: f, url: url}
	if f.ProbeBin != "" {
		d, err := f.probeDuration(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Live or unprobeable inputs still stream, just without progress.
			log.Debugf("source: ffprobe %s: %v", Redact(url), err)
		}
		s.duration = d
	}
	return s, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f *FFmpeg) probeDuration(ctx context.Context, url string) (float64, error) {
	args := []string{"-v", "error", "-show_entries", "format=duration", "-of", "json"}
	args = append(args, f.inputOptions(url)...)
	args = append(args, url)

	out, err := exec.CommandContext(ctx, f.ProbeBin, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}
	if p.Format.Duration == "" || p.Format.Duration == "N/A" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil || d < 0 || math.IsInf(d, 0) {
		return 0, fmt.Errorf("ffprobe duration %q", p.Format.Duration)
	}
	return d, nil
}

func (f *FFmpeg) inputOptions(url string) []string {
	if f.UserAgent != "" && (strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return []string{"-user_agent", f.UserAgent}
	}
	return nil
}

// segmentArgs builds the ffmpeg command line for one segment.
func (f *FFmpeg) segmentArgs(url string, start, dur float64) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	args = append(args, f.inputOptions(url)...)
	return append(args,
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", url,
		"-t", strconv.FormatFloat(dur, 'f', 3, 64),
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(f.Rate),
		"-f", "f32le",
		"pipe:1",
	)
}

type ffmpegSource struct {
	cfg      *FFmpeg
	url      string
	duration float64
}

func (s *ffmpegSource) Duration() float64 { return s.duration }
func (s *ffmpegSource) SampleRate() int   { return s.cfg.Rate }
func (s *ffmpegSource) Close() error      { return nil }

func (s *ffmpegSource) ReadSegment(ctx context.Context, start, dur float64) ([]float32, error) {
	if s.duration > 0 && start >= s.duration {
		return nil, io.EOF
	}

	cmd := exec.CommandContext(ctx, s.cfg.Bin, s.cfg.segmentArgs(s.url, start, dur)...)
	stderr := &limitedBuffer{max: s.cfg.StderrSize}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrFetch, err)
	}

	expected := int(dur*float64(s.cfg.Rate)) + 1
	samples, readErr := decodeF32LE(stdout, expected)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		return nil, classifyFFmpegError(waitErr, stderr.String())
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, readErr)
	}
	if len(samples) == 0 {
		return nil, io.EOF
	}
	return samples, nil
}

// decodeF32LE reads little-endian float32 samples until EOF. A trailing
// partial sample is dropped.
func decodeF32LE(r io.Reader, sizeHint int) ([]float32, error) {
	out := make([]float32, 0, max(sizeHint, 0))
	buf := make([]byte, 32*1024)
	var carry [4]byte
	nCarry := 0
	for {
		n, err := r.Read(buf)
		chunk := buf[:n]
		if nCarry > 0 && len(chunk) > 0 {
			k := copy(carry[nCarry:], chunk)
			nCarry += k
			chunk = chunk[k:]
			if nCarry == 4 {
				out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(carry[:])))
				nCarry = 0
			}
		}
		for len(chunk) >= 4 {
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
			chunk = chunk[4:]
		}
		nCarry += copy(carry[nCarry:], chunk)

		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// Substrings ffmpeg prints when the input was reachable but not decodable.
var decodeMarkers = []string{
	"Invalid data found",
	"could not find codec",
	"does not contain any stream",
	"Output file #0 does not contain any stream",
	"matches no streams",
	"Error while decoding",
}

func classifyFFmpegError(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[i+1:])
	}
	for _, m := range decodeMarkers {
		if strings.Contains(stderr, m) {
			return fmt.Errorf("%w: ffmpeg: %s", ErrDecode, msg)
		}
	}
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%w: ffmpeg: %s", ErrFetch, msg)
}

// limitedBuffer keeps the last max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf.Write(p)
	if b.max > 0 && b.buf.Len() > b.max {
		b.buf.Next(b.buf.Len() - b.max)
	}
	return n, nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }

// Redact strips the query string from a URL before logging it.
func Redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?..."
	}
	return url
}
