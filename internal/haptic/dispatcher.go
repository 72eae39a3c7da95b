// SPDX-License-Identifier: MIT
package haptic

import (
	"context"
	"sync"
	"time"

	applog "hapsync/internal/log"
	"hapsync/internal/metrics"
)

// DefaultCommandTimeout bounds a single device call.
const DefaultCommandTimeout = 500 * time.Millisecond

type commandKind int

const (
	cmdIntensity commandKind = iota
	cmdAccent
	cmdStop
	cmdFlush
)

func (k commandKind) String() string {
	switch k {
	case cmdIntensity:
		return "intensity"
	case cmdAccent:
		return "accent"
	case cmdStop:
		return "stop"
	default:
		return "flush"
	}
}

type command struct {
	kind  commandKind
	value float64
	done  chan struct{} // closed once a flush barrier is reached
}

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	CommandTimeout time.Duration
	Logger         *applog.Logger
}

// Dispatcher serialises commands to a Device on its own goroutine. Callers
// never block on device I/O. Commands are delivered in order; a new intensity
// (or accent) replaces the same-kind command still waiting since the last
// stop or flush, so at most one of each is pending between barriers. Stop
// commands are always delivered.
type Dispatcher struct {
	dev     Device
	timeout time.Duration
	logger  *applog.Logger

	mu     sync.Mutex
	queue  []command
	closed bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDispatcher starts a dispatcher for dev.
func NewDispatcher(dev Device, opts DispatcherOptions) *Dispatcher {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = applog.With("component", "haptic")
	}
	d := &Dispatcher{
		dev:     dev,
		timeout: opts.CommandTimeout,
		logger:  opts.Logger,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Device returns the device being driven.
func (d *Dispatcher) Device() Device { return d.dev }

// Intensity queues an intensity command.
func (d *Dispatcher) Intensity(v float64) { d.enqueue(command{kind: cmdIntensity, value: clampUnit(v)}) }

// Accent queues an accent command. It is dropped when the device cannot
// render accents.
func (d *Dispatcher) Accent(v float64) {
	if _, ok := d.dev.(AccentDevice); !ok {
		return
	}
	d.enqueue(command{kind: cmdAccent, value: clampUnit(v)})
}

// Stop queues a stop command.
func (d *Dispatcher) Stop() { d.enqueue(command{kind: cmdStop}) }

// Flush waits until every command queued before it has been delivered.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !d.enqueue(command{kind: cmdFlush, done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) enqueue(c command) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	if i := d.pendingIndex(c.kind); i >= 0 {
		d.queue[i] = c
		d.mu.Unlock()
		metrics.HapticCoalesced.Inc()
		return true
	}
	d.queue = append(d.queue, c)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return true
}

// pendingIndex returns the queued command of kind that a new one may
// replace, scanning back to the last stop or flush barrier, or -1.
// Callers hold d.mu.
func (d *Dispatcher) pendingIndex(kind commandKind) int {
	if kind == cmdStop || kind == cmdFlush {
		return -1
	}
	for i := len(d.queue) - 1; i >= 0; i-- {
		switch d.queue[i].kind {
		case kind:
			return i
		case cmdStop, cmdFlush:
			return -1
		}
	}
	return -1
}

func (d *Dispatcher) take() []command {
	d.mu.Lock()
	defer d.mu.Unlock()
	batch := d.queue
	d.queue = nil
	return batch
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.notify:
			d.deliver(d.take())
		case <-d.done:
			d.deliver(d.take())
			return
		}
	}
}

func (d *Dispatcher) deliver(batch []command) {
	for _, c := range batch {
		if c.kind == cmdFlush {
			close(c.done)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.exec(ctx, c)
		cancel()
		if err != nil {
			metrics.HapticErrors.Inc()
			d.logger.Debugf("%s command failed: %v", c.kind, err)
			continue
		}
		metrics.HapticCommands.WithLabelValues(c.kind.String()).Inc()
	}
}

func (d *Dispatcher) exec(ctx context.Context, c command) error {
	switch c.kind {
	case cmdIntensity:
		return d.dev.SetIntensity(ctx, c.value)
	case cmdAccent:
		return d.dev.(AccentDevice).SetAccent(ctx, c.value)
	default:
		return d.dev.Stop(ctx)
	}
}

// Close stops accepting commands, delivers what is queued, and closes the
// device. It is idempotent.
func (d *Dispatcher) Close() error {
	var err error
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
		err = d.dev.Close()
	})
	return err
}
