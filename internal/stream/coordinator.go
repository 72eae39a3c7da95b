// SPDX-License-Identifier: MIT

// Package stream produces analyzed segments for a media URL ahead of the
// playback position. A single producer goroutine per session fetches,
// decodes and analyzes segments in index order and publishes them to a
// timeline.Timeline.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"hapsync/internal/config"
	"hapsync/internal/log"
	"hapsync/internal/metrics"
	"hapsync/internal/source"
	"hapsync/internal/timeline"
)

// Options configures a Coordinator. Zero durations take the config defaults.
type Options struct {
	SegmentDuration     time.Duration
	BufferAhead         time.Duration
	FirstSegmentTimeout time.Duration
	EventBuffer         int
	Analyzer            SegmentAnalyzer // required
	Timeline            *timeline.Timeline
	Classifier          func(url string) bool
	Logger              *log.Logger
}

func (o *Options) setDefaults() {
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = config.DefaultSegmentDuration
	}
	if o.BufferAhead <= 0 {
		o.BufferAhead = config.DefaultBufferAhead
	}
	if o.FirstSegmentTimeout <= 0 {
		o.FirstSegmentTimeout = config.DefaultFirstSegmentTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = config.DefaultEventBuffer
	}
	if o.Timeline == nil {
		o.Timeline = timeline.New()
	}
	if o.Classifier == nil {
		o.Classifier = source.IsLikelyMediaURL
	}
	if o.Logger == nil {
		o.Logger = log.With("component", "stream")
	}
}

// Coordinator owns the segment pipeline for one media URL at a time.
type Coordinator struct {
	opener source.Opener
	opts   Options
	tl     *timeline.Timeline
	events chan Event
	logger *log.Logger

	dropped atomic.Uint64

	mu       sync.Mutex // guards session swaps and disposed
	sess     atomic.Pointer[session]
	disposed bool
}

// New returns a Coordinator reading from src. It panics if opts.Analyzer is nil.
func New(src source.Opener, opts Options) *Coordinator {
	if opts.Analyzer == nil {
		panic("stream: Options.Analyzer is required")
	}
	opts.setDefaults()
	return &Coordinator{
		opener: src,
		opts:   opts,
		tl:     opts.Timeline,
		events: make(chan Event, opts.EventBuffer),
		logger: opts.Logger,
	}
}

// Timeline returns the timeline segments are published to.
func (c *Coordinator) Timeline() *timeline.Timeline { return c.tl }

// Events returns the event channel. It is never closed; events are dropped
// when the channel is full.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Dropped returns the number of events dropped on a full channel.
func (c *Coordinator) Dropped() uint64 { return c.dropped.Load() }

// SegmentDuration returns the configured segment length in seconds.
func (c *Coordinator) SegmentDuration() float64 { return c.opts.SegmentDuration.Seconds() }

// Initialize prepares a session for url: it clears the timeline, resets the
// analyzer state and opens the source. No segment work starts until
// StartFirstSegment.
func (c *Coordinator) Initialize(ctx context.Context, url string) error {
	if !c.opts.Classifier(url) {
		c.logger.Infof("not a media url, skipping: %s", source.Redact(url))
		return ErrNotMedia
	}
	c.Stop()

	src, err := c.opener.Open(ctx, url)
	if err != nil {
		return &SegmentError{Index: 0, URL: url, Class: classify(err), Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		src.Close()
		return ErrStopped
	}
	if old := c.sess.Load(); old != nil {
		// Lost a race with a concurrent Initialize.
		old.stop()
	}
	c.tl.Clear()
	s := newSession(url, src, c.logger.With("url", source.Redact(url)))
	c.sess.Store(s)
	s.logger.Infof("session initialized (duration %.1fs)", src.Duration())
	return nil
}

// StartFirstSegment starts the producer and blocks until segment 0 is
// published, fails, or the first-segment timeout elapses. The producer keeps
// running after a timeout.
func (c *Coordinator) StartFirstSegment(ctx context.Context) error {
	s := c.sess.Load()
	if s == nil {
		return ErrNotInitialized
	}
	s.start(func() { c.produce(s) })

	timer := time.NewTimer(c.opts.FirstSegmentTimeout)
	defer timer.Stop()
	select {
	case <-s.first:
		return s.firstErr
	case <-timer.C:
		err := fmt.Errorf("%w after %s", ErrFirstSegmentTimeout, c.opts.FirstSegmentTimeout)
		return &SegmentError{Index: 0, URL: s.url, Class: ClassTimeout, Err: err}
	case <-s.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureBuffered records the playback position and wakes the producer. It
// never blocks.
func (c *Coordinator) EnsureBuffered(t float64) {
	s := c.sess.Load()
	if s == nil || math.IsNaN(t) {
		return
	}
	if t < 0 {
		t = 0
	}
	s.position.Store(math.Float64bits(t))
	select {
	case s.wake <- struct{}{}:
	default:
	}
	metrics.BufferedAhead.Set(c.tl.BufferedEnd(t) - t)
}

// Stop cancels in-flight work for the current session and waits for the
// producer to exit. Published segments stay queryable. Idempotent.
func (c *Coordinator) Stop() {
	if s := c.sess.Load(); s != nil {
		s.stop()
	}
}

// Dispose stops work, closes the source and releases every buffer. The
// Coordinator cannot be reused afterwards. Idempotent.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	s := c.sess.Swap(nil)
	c.mu.Unlock()

	if s != nil {
		s.stop()
	}
	c.tl.Clear()
}

// Status summarizes the current session.
type Status struct {
	URL         string  `json:"url,omitempty"`
	Duration    float64 `json:"duration"`
	Position    float64 `json:"position"`
	BufferedEnd float64 `json:"buffered_end"`
	Segments    int     `json:"segments"`
	Failed      int     `json:"failed"`
	Dropped     uint64  `json:"events_dropped"`
}

func (c *Coordinator) Status() Status {
	st := Status{Segments: c.tl.Len(), Dropped: c.Dropped()}
	if s := c.sess.Load(); s != nil {
		st.URL = s.url
		st.Duration = s.src.Duration()
		st.Position = s.pos()
		st.BufferedEnd = c.tl.BufferedEnd(st.Position)
		st.Failed = int(s.failedCount.Load())
	}
	return st
}

// session is the per-URL producer state.
type session struct {
	url    string
	src    source.Source
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // closed when the producer exits

	mu      sync.Mutex
	started bool
	stopped bool

	first    chan struct{} // closed once segment 0 resolves
	firstErr error

	position    atomic.Uint64 // float64 bits
	wake        chan struct{}
	failedCount atomic.Int32
}

func newSession(url string, src source.Source, logger *log.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		url:    url,
		src:    src,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		first:  make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

func (s *session) pos() float64 {
	return math.Float64frombits(s.position.Load())
}

// start launches the producer once, unless the session was stopped.
func (s *session) start(produce func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go func() {
		defer close(s.done)
		produce()
	}()
}

// stop cancels the producer, waits for it and closes the source.
func (s *session) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		<-s.done
	}
	if err := s.src.Close(); err != nil {
		s.logger.Warnf("closing source: %v", err)
	}
	s.logger.Debugf("session stopped")
}

// producer bookkeeping, owned by the producer goroutine.
type cursor struct {
	next     int          // next segment index to produce
	reset    bool         // reset analyzer state before the next segment
	eofIndex int          // first index known to be past the end, -1 if unknown
	failed   map[int]bool // indices that failed this run
	done     int
	bytes    int64
}

func (c *Coordinator) produce(s *session) {
	segDur := c.opts.SegmentDuration.Seconds()
	ahead := c.opts.BufferAhead.Seconds()
	cur := &cursor{reset: true, eofIndex: -1, failed: make(map[int]bool)}
	if d := s.src.Duration(); d > 0 {
		cur.eofIndex = int(math.Ceil(d / segDur))
	}

	// Segment 0 gates the session regardless of the playback position.
	err := c.produceSegment(s, cur, 0)
	s.firstErr = err
	close(s.first)
	cur.next = 1

	for {
		if s.ctx.Err() != nil {
			return
		}
		pos := s.pos()
		c.reposition(s, cur, pos, segDur)

		frontier := float64(cur.next) * segDur
		atEnd := cur.eofIndex >= 0 && cur.next >= cur.eofIndex
		if !atEnd && frontier-pos < ahead {
			c.produceSegment(s, cur, cur.next)
			cur.next++
			continue
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// reposition handles seeks outside the analyzed range.
func (c *Coordinator) reposition(s *session, cur *cursor, pos, segDur float64) {
	idx := int(pos / segDur)
	frontier := float64(cur.next) * segDur

	switch {
	case pos >= frontier+segDur:
		// Forward seek past the frontier.
		if cur.eofIndex >= 0 && idx >= cur.eofIndex {
			return
		}
		s.logger.Infof("seek to %.1fs beyond analyzed %.1fs, jumping to segment %d", pos, frontier, idx)
		cur.next = idx
		cur.reset = true
	case idx < cur.next && !c.tl.Has(idx) && !cur.failed[idx]:
		// Backward seek into a range skipped by an earlier jump. The
		// timeline is append-only, so restart it from here. Duration and
		// segment count drop for this session in exchange for data at the
		// new position.
		s.logger.Infof("seek back to %.1fs into unanalyzed range, restarting at segment %d", pos, idx)
		c.tl.Clear()
		clear(cur.failed)
		cur.next = idx
		cur.reset = true
	}
}

// produceSegment fetches, decodes, analyzes and publishes segment idx.
func (c *Coordinator) produceSegment(s *session, cur *cursor, idx int) error {
	segDur := c.opts.SegmentDuration.Seconds()
	start := float64(idx) * segDur
	seg := &timeline.Segment{Index: idx, Start: start, End: start + segDur, State: timeline.Fetching}
	logger := s.logger.With("segment", idx)

	fetchStart := time.Now()
	samples, err := s.src.ReadSegment(s.ctx, start, segDur)
	metrics.SegmentDuration.WithLabelValues("fetch").Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		if errors.Is(err, io.EOF) {
			if cur.eofIndex < 0 || idx < cur.eofIndex {
				cur.eofIndex = idx
			}
			logger.Debugf("end of media at %.1fs", start)
			if idx == 0 {
				return c.fail(s, cur, seg, fmt.Errorf("%w: no audio", ErrDecode))
			}
			return nil
		}
		if s.ctx.Err() != nil {
			return ErrStopped
		}
		return c.fail(s, cur, seg, err)
	}

	seg.State = timeline.Analyzing
	seg.Samples = samples
	rate := s.src.SampleRate()
	seg.End = start + float64(len(samples))/float64(rate)

	analyzeStart := time.Now()
	out := c.opts.Analyzer.AnalyzeSegment(start, samples, cur.reset)
	metrics.SegmentDuration.WithLabelValues("analyze").Observe(time.Since(analyzeStart).Seconds())
	cur.reset = false

	seg.Intensity = out.Intensity
	seg.Accent = out.Accent
	seg.FrameDuration = c.opts.Analyzer.FrameDuration()
	seg.ReleaseSamples()
	seg.State = timeline.Ready

	if s.ctx.Err() != nil {
		return ErrStopped
	}
	if err := c.tl.Append(seg); err != nil {
		return c.fail(s, cur, seg, err)
	}

	cur.done++
	cur.bytes += int64(len(samples)) * 4
	metrics.SegmentsTotal.WithLabelValues("ready").Inc()
	logger.Debugf("segment ready: %.1f-%.1fs, %d frames", seg.Start, seg.End, len(seg.Intensity))

	percent := -1.0
	if d := s.src.Duration(); d > 0 {
		percent = math.Min(100, seg.End/d*100)
	}
	c.emit(Event{Kind: SegmentReady, Index: idx, Start: seg.Start, End: seg.End})
	c.emit(Event{Kind: Progress, Index: idx, Start: seg.Start, End: seg.End, Done: cur.done, Bytes: cur.bytes, Percent: percent})
	return nil
}

func (c *Coordinator) fail(s *session, cur *cursor, seg *timeline.Segment, err error) error {
	seg.State = timeline.Failed
	seg.ReleaseSamples()
	segErr := &SegmentError{Index: seg.Index, URL: s.url, Class: classify(err), Err: err}
	seg.Err = segErr
	cur.failed[seg.Index] = true
	// The next segment no longer continues this one.
	cur.reset = true
	s.failedCount.Add(1)

	metrics.SegmentsTotal.WithLabelValues("failed").Inc()
	s.logger.With("segment", seg.Index, "class", segErr.Class).Warnf("segment failed: %v", err)
	c.emit(Event{Kind: SegmentFailed, Index: seg.Index, Start: seg.Start, End: seg.End, Err: segErr})
	return segErr
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
		metrics.EventsDropped.Inc()
	}
}
