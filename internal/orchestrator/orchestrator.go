// SPDX-License-Identifier: MIT

// Package orchestrator turns player lifecycle and playback-position events
// into haptic commands. It owns one stream session per video, looks up the
// analyzed timeline at a latency-compensated position on every tick, and
// hands the result to an asynchronous haptic dispatcher.
package orchestrator

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hapsync/internal/config"
	"hapsync/internal/haptic"
	"hapsync/internal/log"
	"hapsync/internal/metrics"
	"hapsync/internal/source"
	"hapsync/internal/stream"
	"hapsync/internal/timeline"
)

var (
	ErrDisabled           = errors.New("orchestrator: haptics disabled")
	ErrDeviceNotConnected = errors.New("orchestrator: haptic device not connected")
	ErrDisposed           = errors.New("orchestrator: disposed")
)

// Stream is the per-session segment pipeline. *stream.Coordinator
// implements it.
type Stream interface {
	Initialize(ctx context.Context, url string) error
	StartFirstSegment(ctx context.Context) error
	EnsureBuffered(t float64)
	Timeline() *timeline.Timeline
	Events() <-chan stream.Event
	Status() stream.Status
	Dispose()
}

// StreamFactory creates a fresh Stream for every session.
type StreamFactory func() Stream

// Haptics is the command sink. *haptic.Dispatcher implements it.
type Haptics interface {
	Intensity(v float64)
	Accent(v float64)
	Stop()
	Device() haptic.Device
	Close() error
}

// Options configures an Orchestrator. Settings, Haptics and NewStream are
// required.
type Options struct {
	Settings           *config.SettingsStore
	Haptics            Haptics
	NewStream          StreamFactory
	PipelineLatency    time.Duration
	Classifier         func(url string) bool
	NotificationBuffer int
	Logger             *log.Logger
}

type session struct {
	id     string
	url    string
	stream Stream
	ctx    context.Context
	cancel context.CancelFunc
}

// Orchestrator is safe for concurrent use. Its mutex is only held for state
// transitions, never across stream or device calls.
type Orchestrator struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	sess     *session
	position float64
	muted    bool
	skipped  string
	disposed bool

	notes        chan Notification
	droppedNotes atomic.Int64
	disposeOnce  sync.Once
}

// New returns an idle Orchestrator. It panics when a required option is
// missing.
func New(opts Options) *Orchestrator {
	if opts.Settings == nil || opts.Haptics == nil || opts.NewStream == nil {
		panic("orchestrator: Settings, Haptics and NewStream are required")
	}
	if opts.PipelineLatency == 0 {
		opts.PipelineLatency = config.DefaultPipelineLatencyMS * time.Millisecond
	}
	if opts.Classifier == nil {
		opts.Classifier = source.IsLikelyMediaURL
	}
	if opts.NotificationBuffer <= 0 {
		opts.NotificationBuffer = config.DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = log.With("component", "orchestrator")
	}
	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
		notes:  make(chan Notification, opts.NotificationBuffer),
	}
}

// Notifications returns the player-facing notification channel. It is never
// closed; notifications are dropped when it is full.
func (o *Orchestrator) Notifications() <-chan Notification { return o.notes }

// precondition reports why a detected video should be ignored.
func (o *Orchestrator) precondition(url string) error {
	if !o.opts.Settings.Load().Enabled {
		return ErrDisabled
	}
	if !o.opts.Haptics.Device().IsConnected() {
		return ErrDeviceNotConnected
	}
	if !o.opts.Classifier(url) {
		return stream.ErrNotMedia
	}
	return nil
}

// OnVideoDetected starts a session for url and blocks until its first
// segment is ready, fails, or times out. It does nothing when haptics are
// disabled, no device is connected or url is not media. The returned error
// is informational; ProcessingCompleted is always notified.
func (o *Orchestrator) OnVideoDetected(ctx context.Context, url string) error {
	if err := o.precondition(url); err != nil {
		o.logger.Infof("video ignored (%v): %s", err, source.Redact(url))
		o.mu.Lock()
		o.skipped = err.Error()
		o.mu.Unlock()
		return nil
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{id: uuid.NewString(), url: url, stream: o.opts.NewStream(), ctx: sctx, cancel: cancel}

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		cancel()
		s.stream.Dispose()
		return ErrDisposed
	}
	old := o.sess
	o.sess = s
	o.state = Initializing
	o.position = 0
	o.muted = false
	o.skipped = ""
	o.mu.Unlock()

	if old != nil {
		o.teardown(old)
	}
	metrics.Sessions.Inc()
	logger := o.logger.With("session", s.id, "url", source.Redact(url))
	logger.Infof("session started")
	o.notify(Notification{Type: ProcessingStarted, Session: s.id, Message: "analyzing audio"})
	go o.forwardEvents(s)

	fatal, err := o.startSession(ctx, s)

	o.mu.Lock()
	current := o.sess == s
	if current {
		if fatal {
			o.sess = nil
			o.state = Idle
		} else {
			o.state = Ready
		}
	}
	o.mu.Unlock()

	switch {
	case !current:
		if err == nil {
			err = stream.ErrStopped
		}
		logger.Debugf("session superseded before it was ready")
	case fatal:
		o.teardown(s)
	}
	if err != nil {
		logger.Warnf("first segment not ready: %v", err)
		o.notify(Notification{Type: Error, Session: s.id, Message: err.Error()})
	} else {
		logger.Infof("first segment ready")
	}
	o.notify(Notification{Type: ProcessingCompleted, Session: s.id})
	return err
}

// startSession drives Initialize and StartFirstSegment. fatal reports that
// the session cannot produce anything and should be discarded.
func (o *Orchestrator) startSession(ctx context.Context, s *session) (fatal bool, err error) {
	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()
	stop := context.AfterFunc(s.ctx, stopWait)
	defer stop()

	if err := s.stream.Initialize(waitCtx, s.url); err != nil {
		return true, err
	}
	// A failed or late first segment leaves the producer running, so the
	// session stays usable for later segments.
	return false, s.stream.StartFirstSegment(waitCtx)
}

// lookahead is the total latency compensation applied to every tick.
func (o *Orchestrator) lookahead(settings config.SyncSettings, dev haptic.Device) time.Duration {
	return dev.AnticipationLatency() + o.opts.PipelineLatency +
		time.Duration(settings.LatencyOffsetMS)*time.Millisecond
}

// OnPlaybackTick handles one playback position report. The first paused tick
// after playing stops the device; further paused ticks do nothing. While
// playing, the intensity at the lookahead position is dispatched without
// waiting for the device.
func (o *Orchestrator) OnPlaybackTick(t float64, paused bool) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return
	}
	o.mu.Lock()
	s := o.sess
	if s == nil {
		o.mu.Unlock()
		metrics.TicksTotal.WithLabelValues("idle").Inc()
		return
	}
	o.position = t

	if o.state == Initializing {
		o.mu.Unlock()
		s.stream.EnsureBuffered(t)
		metrics.TicksTotal.WithLabelValues("initializing").Inc()
		return
	}

	if paused {
		edge := o.state == Playing
		o.state = Paused
		o.mu.Unlock()
		if edge {
			o.opts.Haptics.Stop()
			metrics.TicksTotal.WithLabelValues("pause").Inc()
		} else {
			metrics.TicksTotal.WithLabelValues("paused").Inc()
		}
		return
	}

	o.state = Playing
	settings := o.opts.Settings.Load()
	dev := o.opts.Haptics.Device()
	active := settings.Enabled && dev.IsConnected()
	wasMuted := o.muted
	o.muted = !active
	o.mu.Unlock()

	s.stream.EnsureBuffered(t)
	if !active {
		if !wasMuted {
			o.opts.Haptics.Stop()
		}
		metrics.TicksTotal.WithLabelValues("inactive").Inc()
		return
	}

	at := t + o.lookahead(settings, dev).Seconds()
	sample, ok := s.stream.Timeline().Lookup(at)
	if !ok {
		metrics.TicksTotal.WithLabelValues("no_data").Inc()
		return
	}
	o.opts.Haptics.Intensity(sample.Intensity)
	o.opts.Haptics.Accent(sample.Accent)
	metrics.TicksTotal.WithLabelValues("dispatched").Inc()
}

// OnSeek records the new position and asks the stream to buffer around it.
func (o *Orchestrator) OnSeek(t float64) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return
	}
	o.mu.Lock()
	s := o.sess
	if s != nil {
		o.position = t
	}
	o.mu.Unlock()
	if s != nil {
		s.stream.EnsureBuffered(t)
	}
}

// OnVideoEnded stops output and discards the session.
func (o *Orchestrator) OnVideoEnded() { o.end(Ended) }

// Reset stops output and returns to Idle.
func (o *Orchestrator) Reset() { o.end(Idle) }

// Dispose resets and closes the haptic dispatcher. Idempotent.
func (o *Orchestrator) Dispose() {
	o.disposeOnce.Do(func() {
		o.end(Idle)
		o.mu.Lock()
		o.disposed = true
		o.mu.Unlock()
		if err := o.opts.Haptics.Close(); err != nil {
			o.logger.Warnf("closing haptics: %v", err)
		}
	})
}

func (o *Orchestrator) end(next State) {
	o.mu.Lock()
	s := o.sess
	o.sess = nil
	if s != nil || o.state != Idle {
		o.state = next
	}
	o.muted = false
	o.mu.Unlock()

	if s == nil {
		return
	}
	o.opts.Haptics.Stop()
	o.teardown(s)
	o.logger.With("session", s.id).Infof("session ended (%s)", next)
}

func (o *Orchestrator) teardown(s *session) {
	s.cancel()
	s.stream.Dispose()
}

// Status is a snapshot for the status endpoint.
type Status struct {
	State                State   `json:"state"`
	Session              string  `json:"session,omitempty"`
	URL                  string  `json:"url,omitempty"`
	Position             float64 `json:"position"`
	BufferedEnd          float64 `json:"buffered_end"`
	Duration             float64 `json:"duration"`
	Segments             int     `json:"segments"`
	FailedSegments       int     `json:"failed_segments"`
	DeviceConnected      bool    `json:"device_connected"`
	Skipped              string  `json:"skipped,omitempty"`
	NotificationsDropped int64   `json:"notifications_dropped"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		State:                o.state,
		Position:             o.position,
		Skipped:              o.skipped,
		NotificationsDropped: o.droppedNotes.Load(),
	}
	s := o.sess
	o.mu.Unlock()

	st.DeviceConnected = o.opts.Haptics.Device().IsConnected()
	if s != nil {
		ss := s.stream.Status()
		st.Session = s.id
		st.URL = source.Redact(s.url)
		st.BufferedEnd = s.stream.Timeline().BufferedEnd(st.Position)
		st.Duration = ss.Duration
		st.Segments = ss.Segments
		st.FailedSegments = ss.Failed
	}
	return st
}
