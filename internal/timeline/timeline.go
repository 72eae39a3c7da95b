// SPDX-License-Identifier: MIT

// Package timeline stores analyzed segments for point queries by playback
// time. Writers publish copy-on-write snapshots; readers never block.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	ErrNotReady      = errors.New("timeline: segment is not ready")
	ErrOutOfOrder    = errors.New("timeline: segment index not after last appended")
	ErrDiscontiguous = errors.New("timeline: adjacent segments do not meet")
	ErrMalformed     = errors.New("timeline: segment frames are inconsistent")
)

// Adjacent segments are considered contiguous within this many seconds, or
// within half a frame of the predecessor when that is wider. Decoders may
// return a sample more or less than requested at a segment boundary.
const boundaryTolerance = 1e-6

func contiguityTolerance(prev *Segment) float64 {
	return max(boundaryTolerance, prev.FrameDuration/2)
}

type snapshot struct {
	segments []*Segment // ordered by Index
}

var emptySnapshot = &snapshot{}

// Timeline is an ordered, append-only collection of Ready segments.
// Gaps are allowed where segments failed.
type Timeline struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// New returns an empty Timeline.
func New() *Timeline {
	tl := &Timeline{}
	tl.snap.Store(emptySnapshot)
	return tl
}

func (tl *Timeline) load() *snapshot {
	if s := tl.snap.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Append publishes seg. It rejects segments that are not Ready, whose index
// does not follow the last appended index, or that break contiguity with an
// adjacent predecessor.
func (tl *Timeline) Append(seg *Segment) error {
	if seg == nil || seg.State != Ready {
		return ErrNotReady
	}
	if len(seg.Accent) != 0 && len(seg.Accent) != len(seg.Intensity) {
		return fmt.Errorf("%w: %d accent values for %d frames", ErrMalformed, len(seg.Accent), len(seg.Intensity))
	}
	if len(seg.Intensity) > 0 && seg.FrameDuration <= 0 {
		return fmt.Errorf("%w: non-positive frame duration", ErrMalformed)
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	old := tl.load()
	if n := len(old.segments); n > 0 {
		last := old.segments[n-1]
		if seg.Index <= last.Index {
			return fmt.Errorf("%w: %d <= %d", ErrOutOfOrder, seg.Index, last.Index)
		}
		if seg.Index == last.Index+1 && math.Abs(seg.Start-last.End) > contiguityTolerance(last) {
			return fmt.Errorf("%w: segment %d ends at %.3f, segment %d starts at %.3f",
				ErrDiscontiguous, last.Index, last.End, seg.Index, seg.Start)
		}
	}

	segments := make([]*Segment, len(old.segments), len(old.segments)+1)
	copy(segments, old.segments)
	tl.snap.Store(&snapshot{segments: append(segments, seg)})
	return nil
}

// Clear removes all segments.
func (tl *Timeline) Clear() {
	tl.mu.Lock()
	tl.snap.Store(emptySnapshot)
	tl.mu.Unlock()
}

// Len returns the number of published segments.
func (tl *Timeline) Len() int {
	return len(tl.load().segments)
}

// Segments returns the published segments in index order.
func (tl *Timeline) Segments() []*Segment {
	s := tl.load().segments
	out := make([]*Segment, len(s))
	copy(out, s)
	return out
}

// Has reports whether the segment with the given index is published.
func (tl *Timeline) Has(index int) bool {
	s := tl.load().segments
	i := sort.Search(len(s), func(i int) bool { return s[i].Index >= index })
	return i < len(s) && s[i].Index == index
}

// Duration returns the end time of the last published segment, or 0.
func (tl *Timeline) Duration() float64 {
	s := tl.load().segments
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].End
}

// find returns the position of the segment containing t, or -1.
func (s *snapshot) find(t float64) int {
	i := sort.Search(len(s.segments), func(i int) bool { return s.segments[i].End > t })
	if i < len(s.segments) && s.segments[i].Contains(t) {
		return i
	}
	return -1
}

// HasData reports whether a published frame covers t.
func (tl *Timeline) HasData(t float64) bool {
	_, ok := tl.Lookup(t)
	return ok
}

// IntensityAt returns the intensity of the frame covering t, or 0 when
// HasData(t) is false.
func (tl *Timeline) IntensityAt(t float64) float64 {
	s, _ := tl.Lookup(t)
	return s.Intensity
}

// Lookup returns the frame covering t. ok is false for times in gaps,
// before zero, or past the analyzed range.
func (tl *Timeline) Lookup(t float64) (Sample, bool) {
	if math.IsNaN(t) {
		return Sample{}, false
	}
	snap := tl.load()
	i := snap.find(t)
	if i < 0 {
		return Sample{}, false
	}
	seg := snap.segments[i]
	f, ok := seg.frameAt(t)
	if !ok {
		return Sample{}, false
	}
	out := Sample{
		Time:      seg.Start + float64(f)*seg.FrameDuration,
		Intensity: seg.Intensity[f],
		Segment:   seg.Index,
		Frame:     f,
	}
	if len(seg.Accent) > 0 {
		out.Accent = seg.Accent[f]
	}
	return out, true
}

// BufferedEnd returns the end of the contiguous run of published segments
// containing t. When no segment contains t it returns t.
func (tl *Timeline) BufferedEnd(t float64) float64 {
	snap := tl.load()
	i := snap.find(t)
	if i < 0 {
		return t
	}
	end := snap.segments[i].End
	for j := i + 1; j < len(snap.segments); j++ {
		prev, next := snap.segments[j-1], snap.segments[j]
		if next.Index != prev.Index+1 {
			break
		}
		end = next.End
	}
	return end
}
