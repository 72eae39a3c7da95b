// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"
	"time"

	applog "hapsync/internal/log"
)

// Publisher encodes haptic commands into packets and writes them through a
// Sender. When a keepalive interval is set, the last command is re-sent on
// every tick with a fresh sequence number so a lossy link converges.
type Publisher struct {
	sender   *Sender
	interval time.Duration
	logger   *applog.Logger
	now      func() time.Time

	mu      sync.Mutex
	seq     uint32
	last    Packet
	hasLast bool
	buf     []byte

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPublisher creates a Publisher. A non-positive interval disables keepalive.
func NewPublisher(sender *Sender, interval time.Duration) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	return &Publisher{
		sender:   sender,
		interval: interval,
		logger:   applog.With("component", "udp-publisher"),
		now:      time.Now,
		buf:      make([]byte, 0, PacketSize),
	}, nil
}

// Publish sends one command immediately and remembers it for keepalive.
func (p *Publisher) Publish(cmd Command, intensity float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = Packet{Command: cmd, Intensity: intensity}
	p.hasLast = true
	return p.sendLocked()
}

// sendLocked stamps and writes the last packet. p.mu must be held.
func (p *Publisher) sendLocked() error {
	p.seq++
	p.last.Seq = p.seq
	p.last.Timestamp = p.now().UnixNano()
	p.buf = p.last.AppendBinary(p.buf[:0])
	if err := p.sender.Send(p.buf); err != nil {
		return err
	}
	p.logger.Debugf("sent packet %d (%s %.3f)", p.last.Seq, p.last.Command, p.last.Intensity)
	return nil
}

// Seq returns the sequence number of the most recent packet.
func (p *Publisher) Seq() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Start launches the keepalive goroutine. It is a no-op when keepalive is
// disabled or already running.
func (p *Publisher) Start() {
	if p.interval <= 0 {
		return
	}
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Debugf("keepalive started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.keepalive()
			case <-done:
				return
			}
		}
	}()
}

func (p *Publisher) keepalive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasLast {
		return
	}
	if err := p.sendLocked(); err != nil {
		p.logger.Debugf("keepalive failed: %v", err)
	}
}

// Stop ends the keepalive goroutine and waits for it.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()
	p.wg.Wait()
}

// Close stops keepalive and closes the sender.
func (p *Publisher) Close() error {
	p.Stop()
	return p.sender.Close()
}
