// SPDX-License-Identifier: MIT
package timeline

import "fmt"

// SegmentState is the lifecycle of a Segment.
type SegmentState int

const (
	Pending SegmentState = iota
	Fetching
	Decoding
	Analyzing
	Ready
	Failed
)

func (s SegmentState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fetching:
		return "fetching"
	case Decoding:
		return "decoding"
	case Analyzing:
		return "analyzing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("SegmentState(%d)", int(s))
	}
}

// Segment is a fixed-duration slice of the source covering [Start, End)
// seconds. Once appended to a Timeline it must not be modified.
type Segment struct {
	Index         int
	Start         float64
	End           float64
	FrameDuration float64   // seconds between consecutive frames
	Samples       []float32 // decoded mono PCM, nil once released
	Intensity     []float64 // one value per analysis frame
	Accent        []float64 // voice spike channel, same length as Intensity or nil
	State         SegmentState
	Err           error
}

// Duration returns End - Start.
func (s *Segment) Duration() float64 {
	return s.End - s.Start
}

// ReleaseSamples drops the decoded PCM once it is no longer needed.
func (s *Segment) ReleaseSamples() {
	s.Samples = nil
}

// Contains reports whether t falls within [Start, End).
func (s *Segment) Contains(t float64) bool {
	return t >= s.Start && t < s.End
}

// frameAt returns the index of the frame covering t, clamped to the last
// frame. ok is false when t is outside the segment or it has no frames.
func (s *Segment) frameAt(t float64) (int, bool) {
	if !s.Contains(t) || len(s.Intensity) == 0 || s.FrameDuration <= 0 {
		return 0, false
	}
	i := int((t - s.Start) / s.FrameDuration)
	if i >= len(s.Intensity) {
		i = len(s.Intensity) - 1
	}
	return i, true
}

// Sample is the result of a Timeline lookup.
type Sample struct {
	Time      float64 // start time of the frame
	Intensity float64
	Accent    float64
	Segment   int
	Frame     int
}
