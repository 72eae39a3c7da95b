// SPDX-License-Identifier: MIT
package stream

// EventKind identifies a coordinator event.
type EventKind int

const (
	SegmentReady EventKind = iota
	Progress
	SegmentFailed
)

func (k EventKind) String() string {
	switch k {
	case SegmentReady:
		return "segment_ready"
	case Progress:
		return "progress"
	case SegmentFailed:
		return "segment_error"
	default:
		return "unknown"
	}
}

// Event is emitted on the coordinator's event channel.
type Event struct {
	Kind    EventKind
	Index   int     // segment index
	Start   float64 // segment start, seconds
	End     float64 // segment end, seconds
	Done    int     // segments completed this session
	Bytes   int64   // decoded PCM bytes this session
	Percent float64 // analyzed share of the media, -1 when duration is unknown
	Err     error   // *SegmentError for SegmentFailed
}
