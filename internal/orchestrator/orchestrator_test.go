// SPDX-License-Identifier: MIT
package orchestrator

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hapsync/internal/analysis"
	"hapsync/internal/config"
	"hapsync/internal/haptic"
	"hapsync/internal/source"
	"hapsync/internal/stream"
	"hapsync/internal/timeline"
)

const (
	testURL      = "https://example.com/video.mp4"
	testFrameDur = 0.1
	testRate     = 100
)

type fakeDevice struct {
	connected atomic.Bool
	latency   time.Duration
}

func (d *fakeDevice) SetIntensity(context.Context, float64) error { return nil }
func (d *fakeDevice) Stop(context.Context) error                  { return nil }
func (d *fakeDevice) IsConnected() bool                           { return d.connected.Load() }
func (d *fakeDevice) AnticipationLatency() time.Duration          { return d.latency }
func (d *fakeDevice) Close() error                                { return nil }

type fakeHaptics struct {
	dev *fakeDevice

	mu          sync.Mutex
	intensities []float64
	accents     []float64
	stops       int
	closes      int
}

func newFakeHaptics(latency time.Duration) *fakeHaptics {
	h := &fakeHaptics{dev: &fakeDevice{latency: latency}}
	h.dev.connected.Store(true)
	return h
}

func (h *fakeHaptics) Intensity(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.intensities = append(h.intensities, v)
}

func (h *fakeHaptics) Accent(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accents = append(h.accents, v)
}

func (h *fakeHaptics) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
}

func (h *fakeHaptics) Device() haptic.Device { return h.dev }

func (h *fakeHaptics) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHaptics) snapshot() (intensities []float64, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.intensities...), h.stops
}

// fakeStream serves a prebuilt timeline.
type fakeStream struct {
	tl       *timeline.Timeline
	events   chan stream.Event
	initErr  error
	firstErr error
	block    chan struct{}

	mu       sync.Mutex
	url      string
	ensured  []float64
	disposed int
}

func newFakeStream(segments int) *fakeStream {
	return &fakeStream{tl: rampTimeline(segments), events: make(chan stream.Event, 8)}
}

func (f *fakeStream) Initialize(_ context.Context, url string) error {
	f.mu.Lock()
	f.url = url
	f.mu.Unlock()
	return f.initErr
}

func (f *fakeStream) StartFirstSegment(ctx context.Context) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.firstErr
}

func (f *fakeStream) EnsureBuffered(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, t)
}

func (f *fakeStream) Timeline() *timeline.Timeline   { return f.tl }
func (f *fakeStream) Events() <-chan stream.Event     { return f.events }
func (f *fakeStream) Status() stream.Status           { return stream.Status{Segments: f.tl.Len()} }
func (f *fakeStream) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed++
}

func (f *fakeStream) disposeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// rampTimeline holds 20 s segments whose frame values encode their time:
// (start + k*0.1) / 120.
func rampTimeline(segments int) *timeline.Timeline {
	tl := timeline.New()
	for i := range segments {
		start := float64(i * 20)
		seg := &timeline.Segment{
			Index:         i,
			Start:         start,
			End:           start + 20,
			FrameDuration: testFrameDur,
			State:         timeline.Ready,
			Intensity:     make([]float64, 200),
		}
		for k := range seg.Intensity {
			seg.Intensity[k] = (start + float64(k)*testFrameDur) / 120
		}
		if err := tl.Append(seg); err != nil {
			panic(err)
		}
	}
	return tl
}

type fixture struct {
	o        *Orchestrator
	h        *fakeHaptics
	settings *config.SettingsStore
	streams  []*fakeStream
	next     func() *fakeStream
}

func newFixture(t *testing.T, latency time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		h:        newFakeHaptics(latency),
		settings: config.NewSettingsStore(config.DefaultSyncSettings()),
	}
	f.next = func() *fakeStream { return newFakeStream(6) }
	f.o = New(Options{
		Settings: f.settings,
		Haptics:  f.h,
		NewStream: func() Stream {
			s := f.next()
			f.streams = append(f.streams, s)
			return s
		},
	})
	t.Cleanup(f.o.Dispose)
	return f
}

func (f *fixture) detect(t *testing.T) {
	t.Helper()
	if err := f.o.OnVideoDetected(context.Background(), testURL); err != nil {
		t.Fatalf("OnVideoDetected: %v", err)
	}
}

func drain(o *Orchestrator) []NotificationKind {
	var kinds []NotificationKind
	for {
		select {
		case n := <-o.Notifications():
			kinds = append(kinds, n.Type)
		default:
			return kinds
		}
	}
}

func TestPauseEdgeTriggersSingleStop(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)
	f.detect(t)

	ticks := []bool{false, false, true, true, true, false}
	wantStops := []int{0, 0, 1, 1, 1, 1}
	for i, paused := range ticks {
		f.o.OnPlaybackTick(10+float64(i)*0.25, paused)
		if _, stops := f.h.snapshot(); stops != wantStops[i] {
			t.Fatalf("after tick %d: stops = %d, want %d", i, stops, wantStops[i])
		}
	}
	if got := f.o.Status().State; got != Playing {
		t.Errorf("state = %s, want playing", got)
	}
	intensities, _ := f.h.snapshot()
	if len(intensities) != 3 {
		t.Errorf("dispatched %d intensities, want 3 (playing ticks only)", len(intensities))
	}
}

func TestPausedBeforePlayingDoesNotStop(t *testing.T) {
	f := newFixture(t, 0)
	f.detect(t)
	f.o.OnPlaybackTick(0, true)
	f.o.OnPlaybackTick(0, true)
	if _, stops := f.h.snapshot(); stops != 0 {
		t.Errorf("stops = %d, want 0", stops)
	}
	if f.o.Status().State != Paused {
		t.Errorf("state = %s", f.o.Status().State)
	}
}

func TestLookaheadUsesAllLatencies(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)
	f.detect(t)

	f.o.OnPlaybackTick(65, false)
	intensities, _ := f.h.snapshot()
	if len(intensities) != 1 {
		t.Fatalf("intensities = %v", intensities)
	}
	if got := intensities[0] * 120; math.Abs(got-66.5) > testFrameDur+1e-9 {
		t.Errorf("read frame at %.3fs, want the frame nearest 66.5s", got)
	}

	s := f.settings.Load()
	s.LatencyOffsetMS = 500
	if err := f.settings.Store(s); err != nil {
		t.Fatal(err)
	}
	f.o.OnPlaybackTick(65, false)
	intensities, _ = f.h.snapshot()
	if got := intensities[1] * 120; math.Abs(got-67) > testFrameDur+1e-9 {
		t.Errorf("with offset read frame at %.3fs, want ~67s", got)
	}
}

// rampAnalyzer mirrors rampTimeline for the real coordinator.
type rampAnalyzer struct{}

func (rampAnalyzer) AnalyzeSegment(start float64, samples []float32, _ bool) analysis.Output {
	n := int(float64(len(samples)) / testRate / testFrameDur)
	out := analysis.Output{Intensity: make([]float64, n), Accent: make([]float64, n)}
	for k := range out.Intensity {
		out.Intensity[k] = (start + float64(k)*testFrameDur) / 120
	}
	return out
}

func (rampAnalyzer) FrameDuration() float64 { return testFrameDur }

func TestEndToEndLookahead(t *testing.T) {
	h := newFakeHaptics(150 * time.Millisecond)
	settings := config.NewSettingsStore(config.DefaultSyncSettings())
	src := &source.Static{Samples: make([]float32, 120*testRate), Rate: testRate}
	opener := source.OpenerFunc(func(context.Context, string) (source.Source, error) { return src, nil })

	var coord *stream.Coordinator
	o := New(Options{
		Settings: settings,
		Haptics:  h,
		NewStream: func() Stream {
			coord = stream.New(opener, stream.Options{
				SegmentDuration:     20 * time.Second,
				BufferAhead:         40 * time.Second,
				FirstSegmentTimeout: 5 * time.Second,
				Analyzer:            rampAnalyzer{},
			})
			return coord
		},
	})
	defer o.Dispose()

	if err := o.OnVideoDetected(context.Background(), testURL); err != nil {
		t.Fatalf("first segment: %v", err)
	}
	if !coord.Timeline().HasData(0) {
		t.Fatal("segment 0 not published")
	}

	// The first tick moves the producer; the frame at 66.5 s arrives shortly.
	o.OnPlaybackTick(65, false)
	deadline := time.Now().Add(5 * time.Second)
	for !coord.Timeline().HasData(66.5) {
		if time.Now().After(deadline) {
			t.Fatal("segment covering 66.5s never published")
		}
		time.Sleep(5 * time.Millisecond)
	}
	before, _ := h.snapshot()
	o.OnPlaybackTick(65, false)
	after, _ := h.snapshot()
	if len(after) != len(before)+1 {
		t.Fatalf("tick did not dispatch: %v", after)
	}
	if got := after[len(after)-1] * 120; math.Abs(got-66.5) > testFrameDur+1e-9 {
		t.Errorf("read frame at %.3fs, want the frame nearest 66.5s", got)
	}

	st := o.Status()
	if st.State != Playing || st.Session == "" || st.Duration != 120 {
		t.Errorf("status = %+v", st)
	}
}

func TestVideoIgnored(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		url    string
		reason error
	}{
		{"disabled", func(f *fixture) {
			s := f.settings.Load()
			s.Enabled = false
			_ = f.settings.Store(s)
		}, testURL, ErrDisabled},
		{"no device", func(f *fixture) { f.h.dev.connected.Store(false) }, testURL, ErrDeviceNotConnected},
		{"not media", func(*fixture) {}, "https://example.com/article.html", stream.ErrNotMedia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			tt.setup(f)
			if err := f.o.OnVideoDetected(context.Background(), tt.url); err != nil {
				t.Fatalf("ignored video returned %v", err)
			}
			if len(f.streams) != 0 {
				t.Error("a stream was created")
			}
			st := f.o.Status()
			if st.State != Idle || st.Skipped != tt.reason.Error() {
				t.Errorf("status = %+v", st)
			}
			if n := drain(f.o); len(n) != 0 {
				t.Errorf("notifications = %v", n)
			}
		})
	}
}

func TestFirstSegmentFailureStillCompletes(t *testing.T) {
	f := newFixture(t, 0)
	firstErr := &stream.SegmentError{Index: 0, URL: testURL, Class: stream.ClassFetch, Err: stream.ErrFetch}
	f.next = func() *fakeStream {
		s := newFakeStream(0)
		s.firstErr = firstErr
		return s
	}
	err := f.o.OnVideoDetected(context.Background(), testURL)
	if !errors.Is(err, stream.ErrFetch) {
		t.Fatalf("err = %v", err)
	}
	want := []NotificationKind{ProcessingStarted, Error, ProcessingCompleted}
	if got := drain(f.o); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("notifications = %v, want %v", got, want)
	}
	if st := f.o.Status(); st.State != Ready {
		t.Errorf("state = %s, the session should stay usable", st.State)
	}

	// Ticks with no data are skipped without panicking.
	f.o.OnPlaybackTick(1, false)
	if got, _ := f.h.snapshot(); len(got) != 0 {
		t.Errorf("dispatched %v without data", got)
	}
}

func TestInitializeFailureDiscardsSession(t *testing.T) {
	f := newFixture(t, 0)
	f.next = func() *fakeStream {
		s := newFakeStream(0)
		s.initErr = &stream.SegmentError{Index: 0, URL: testURL, Class: stream.ClassFetch, Err: stream.ErrFetch}
		return s
	}
	if err := f.o.OnVideoDetected(context.Background(), testURL); err == nil {
		t.Fatal("expected error")
	}
	if st := f.o.Status(); st.State != Idle || st.Session != "" {
		t.Errorf("status = %+v", st)
	}
	if f.streams[0].disposeCount() != 1 {
		t.Error("stream not disposed")
	}
	kinds := drain(f.o)
	if len(kinds) == 0 || kinds[len(kinds)-1] != ProcessingCompleted {
		t.Errorf("notifications = %v", kinds)
	}
}

func TestNewVideoReplacesSession(t *testing.T) {
	f := newFixture(t, 0)
	f.detect(t)
	first := f.o.Status().Session
	f.detect(t)
	second := f.o.Status().Session

	if first == "" || first == second {
		t.Errorf("session ids %q then %q", first, second)
	}
	if f.streams[0].disposeCount() != 1 || f.streams[1].disposeCount() != 0 {
		t.Errorf("dispose counts = %d, %d", f.streams[0].disposeCount(), f.streams[1].disposeCount())
	}
}

func TestNewVideoCancelsPendingStart(t *testing.T) {
	f := newFixture(t, 0)
	blocked := newFakeStream(1)
	blocked.block = make(chan struct{})
	calls := 0
	f.next = func() *fakeStream {
		calls++
		if calls == 1 {
			return blocked
		}
		return newFakeStream(1)
	}

	errc := make(chan error, 1)
	go func() { errc <- f.o.OnVideoDetected(context.Background(), testURL) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.o.Status().State != Initializing {
		if time.Now().After(deadline) {
			t.Fatal("first session never started")
		}
		time.Sleep(time.Millisecond)
	}
	f.detect(t)

	select {
	case err := <-errc:
		if err == nil {
			t.Error("superseded session returned nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded OnVideoDetected did not return")
	}
	if st := f.o.Status(); st.State != Ready {
		t.Errorf("state = %s", st.State)
	}
}

func TestTicksWhileInitializingOnlyBuffer(t *testing.T) {
	f := newFixture(t, 0)
	blocked := newFakeStream(1)
	blocked.block = make(chan struct{})
	f.next = func() *fakeStream { return blocked }

	done := make(chan struct{})
	go func() {
		_ = f.o.OnVideoDetected(context.Background(), testURL)
		close(done)
	}()
	for f.o.Status().State != Initializing {
		time.Sleep(time.Millisecond)
	}
	f.o.OnPlaybackTick(3, false)
	close(blocked.block)
	<-done

	if got, _ := f.h.snapshot(); len(got) != 0 {
		t.Errorf("dispatched %v before ready", got)
	}
	blocked.mu.Lock()
	ensured := append([]float64(nil), blocked.ensured...)
	blocked.mu.Unlock()
	if len(ensured) != 1 || ensured[0] != 3 {
		t.Errorf("ensured = %v", ensured)
	}
}

func TestOnSeekEnsuresBuffered(t *testing.T) {
	f := newFixture(t, 0)
	f.o.OnSeek(5)
	f.detect(t)
	f.o.OnSeek(42)
	f.o.OnSeek(math.NaN())

	s := f.streams[0]
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ensured) != 1 || s.ensured[0] != 42 {
		t.Errorf("ensured = %v", s.ensured)
	}
	if f.o.Status().Position != 42 {
		t.Errorf("position = %g", f.o.Status().Position)
	}
}

func TestDisablingMidPlaybackStopsOnce(t *testing.T) {
	f := newFixture(t, 0)
	f.detect(t)
	f.o.OnPlaybackTick(1, false)

	s := f.settings.Load()
	s.Enabled = false
	_ = f.settings.Store(s)
	f.o.OnPlaybackTick(1.25, false)
	f.o.OnPlaybackTick(1.5, false)
	if _, stops := f.h.snapshot(); stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}

	s.Enabled = true
	_ = f.settings.Store(s)
	f.o.OnPlaybackTick(1.75, false)
	if got, _ := f.h.snapshot(); len(got) != 2 {
		t.Errorf("intensities = %v", got)
	}
}

func TestEndResetDispose(t *testing.T) {
	f := newFixture(t, 0)
	f.detect(t)
	f.o.OnPlaybackTick(1, false)

	f.o.OnVideoEnded()
	f.o.OnVideoEnded()
	if _, stops := f.h.snapshot(); stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
	if st := f.o.Status(); st.State != Ended || st.Session != "" {
		t.Errorf("status = %+v", st)
	}
	if f.streams[0].disposeCount() != 1 {
		t.Errorf("dispose count = %d", f.streams[0].disposeCount())
	}

	f.o.OnPlaybackTick(2, false)
	if got, _ := f.h.snapshot(); len(got) != 1 {
		t.Errorf("tick after end dispatched: %v", got)
	}

	f.detect(t)
	f.o.Reset()
	f.o.Reset()
	if st := f.o.Status(); st.State != Idle {
		t.Errorf("state after reset = %s", st.State)
	}

	f.o.Dispose()
	f.o.Dispose()
	if f.h.closes != 1 {
		t.Errorf("haptics closed %d times", f.h.closes)
	}
	if err := f.o.OnVideoDetected(context.Background(), testURL); !errors.Is(err, ErrDisposed) {
		t.Errorf("detect after dispose = %v", err)
	}
}

func TestProgressForwarded(t *testing.T) {
	f := newFixture(t, 0)
	f.detect(t)
	drain(f.o)

	f.streams[0].events <- stream.Event{Kind: stream.Progress, Index: 2, Percent: 50}
	f.streams[0].events <- stream.Event{Kind: stream.SegmentReady, Index: 2}
	f.streams[0].events <- stream.Event{Kind: stream.SegmentFailed, Index: 3, Err: &stream.SegmentError{Index: 3, URL: testURL, Class: stream.ClassDecode, Err: stream.ErrDecode}}

	var got []Notification
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case n := <-f.o.Notifications():
			got = append(got, n)
		case <-timeout:
			t.Fatalf("notifications = %+v", got)
		}
	}
	if got[0].Type != ProcessingProgress || got[0].Segment != 2 || got[0].Percent != 50 {
		t.Errorf("progress = %+v", got[0])
	}
	if got[1].Type != Error || got[1].Segment != 3 || got[1].Session == "" {
		t.Errorf("error = %+v", got[1])
	}
}

func TestStateNames(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Initializing: "initializing", Ready: "ready", Playing: "playing", Paused: "paused", Ended: "ended", State(42): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: %s, want %s", int(s), s, want)
		}
	}
}
