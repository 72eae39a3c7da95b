// SPDX-License-Identifier: MIT
package haptic

import (
	"context"
	"sync/atomic"
	"time"

	"hapsync/internal/transport"
)

// Message is the JSON command sent over message transports.
type Message struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Seq   uint64  `json:"seq"`
}

// TransportDevice sends commands as Messages over a transport.Transport.
type TransportDevice struct {
	t         transport.Transport
	connected func() bool
	latency   time.Duration
	seq       atomic.Uint64
	closed    atomic.Bool
}

// NewTransportDevice wraps t. connected may be nil, meaning always connected.
func NewTransportDevice(t transport.Transport, connected func() bool, latency time.Duration) *TransportDevice {
	if connected == nil {
		connected = func() bool { return true }
	}
	return &TransportDevice{t: t, connected: connected, latency: latency}
}

// NewWebSocketDevice sends commands to every client of hub. It is connected
// while at least one client is attached.
func NewWebSocketDevice(hub *transport.Hub, latency time.Duration) *TransportDevice {
	return NewTransportDevice(hub, func() bool { return hub.ClientCount() > 0 }, latency)
}

// NewLogDevice logs commands instead of driving hardware.
func NewLogDevice(latency time.Duration) *TransportDevice {
	return NewTransportDevice(transport.NewLoggingTransport("haptic"), nil, latency)
}

func (d *TransportDevice) send(ctx context.Context, kind string, v float64) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.t.Send(Message{Type: kind, Value: v, Seq: d.seq.Add(1)})
}

func (d *TransportDevice) SetIntensity(ctx context.Context, v float64) error {
	return d.send(ctx, "intensity", clampUnit(v))
}

func (d *TransportDevice) SetAccent(ctx context.Context, v float64) error {
	return d.send(ctx, "accent", clampUnit(v))
}

func (d *TransportDevice) Stop(ctx context.Context) error {
	return d.send(ctx, "stop", 0)
}

func (d *TransportDevice) IsConnected() bool {
	return !d.closed.Load() && d.connected()
}

func (d *TransportDevice) AnticipationLatency() time.Duration { return d.latency }

// Close closes the underlying transport.
func (d *TransportDevice) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.t.Close()
}

var _ AccentDevice = (*TransportDevice)(nil)
