// SPDX-License-Identifier: MIT
package haptic

import (
	"context"
	"sync/atomic"
	"time"

	"hapsync/internal/transport/udp"
)

// UDPDevice sends packets to an actuator bridge. UDP is connectionless, so
// the device reports connected until closed; the publisher keepalive covers
// lost packets.
type UDPDevice struct {
	pub     *udp.Publisher
	latency time.Duration
	closed  atomic.Bool
}

// NewUDPDevice dials target and starts keepalive when interval > 0.
func NewUDPDevice(target string, keepalive, latency time.Duration) (*UDPDevice, error) {
	sender, err := udp.NewSender(target)
	if err != nil {
		return nil, err
	}
	pub, err := udp.NewPublisher(sender, keepalive)
	if err != nil {
		sender.Close()
		return nil, err
	}
	pub.Start()
	return &UDPDevice{pub: pub, latency: latency}, nil
}

func (d *UDPDevice) SetIntensity(_ context.Context, v float64) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.pub.Publish(udp.CmdIntensity, float32(clampUnit(v)))
}

func (d *UDPDevice) Stop(_ context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.pub.Publish(udp.CmdStop, 0)
}

func (d *UDPDevice) IsConnected() bool                  { return !d.closed.Load() }
func (d *UDPDevice) AnticipationLatency() time.Duration { return d.latency }

func (d *UDPDevice) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.pub.Close()
}
