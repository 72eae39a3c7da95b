// SPDX-License-Identifier: MIT
package orchestrator

import (
	"time"

	"hapsync/internal/metrics"
	"hapsync/internal/stream"
)

// NotificationKind names a player-facing notification.
type NotificationKind string

const (
	ProcessingStarted   NotificationKind = "processing_started"
	ProcessingProgress  NotificationKind = "processing_progress"
	ProcessingCompleted NotificationKind = "processing_completed"
	Error               NotificationKind = "error"
)

// Notification is delivered to the player layer.
type Notification struct {
	Type    NotificationKind `json:"type"`
	Session string           `json:"session"`
	Message string           `json:"message,omitempty"`
	Segment int              `json:"segment,omitempty"`
	Percent float64          `json:"percent,omitempty"`
	Time    time.Time        `json:"time"`
}

// notify queues n, dropping it when the channel is full.
func (o *Orchestrator) notify(n Notification) {
	n.Time = o.now()
	select {
	case o.notes <- n:
	default:
		o.droppedNotes.Add(1)
		metrics.EventsDropped.Inc()
	}
}

// forwardEvents turns coordinator events into notifications until the
// session ends.
func (o *Orchestrator) forwardEvents(s *session) {
	events := s.stream.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case stream.Progress:
				o.notify(Notification{Type: ProcessingProgress, Session: s.id, Segment: ev.Index, Percent: ev.Percent})
			case stream.SegmentFailed:
				o.notify(Notification{Type: Error, Session: s.id, Segment: ev.Index, Message: ev.Err.Error()})
			}
		}
	}
}
