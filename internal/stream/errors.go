// SPDX-License-Identifier: MIT
package stream

import (
	"errors"
	"fmt"

	"hapsync/internal/source"
)

var (
	ErrNotMedia            = errors.New("stream: url is not audio/video")
	ErrFetch               = source.ErrFetch
	ErrDecode              = source.ErrDecode
	ErrFirstSegmentTimeout = errors.New("stream: first segment timed out")
	ErrStopped             = errors.New("stream: stopped")
	ErrNotInitialized      = errors.New("stream: not initialized")
)

// Failure classes carried by SegmentError.
const (
	ClassFetch   = "fetch"
	ClassDecode  = "decode"
	ClassAnalyze = "analyze"
	ClassTimeout = "timeout"
	ClassStopped = "stopped"
)

// SegmentError describes a failed segment. It wraps the cause so callers
// can match ErrFetch, ErrDecode and friends with errors.Is.
type SegmentError struct {
	Index int
	URL   string
	Class string
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d of %s: %s: %v", e.Index, source.Redact(e.URL), e.Class, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

func classify(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return ClassDecode
	case errors.Is(err, ErrFetch):
		return ClassFetch
	case errors.Is(err, ErrFirstSegmentTimeout):
		return ClassTimeout
	case errors.Is(err, ErrStopped):
		return ClassStopped
	default:
		return ClassAnalyze
	}
}
