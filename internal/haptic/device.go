// SPDX-License-Identifier: MIT

// Package haptic drives output actuators. Devices are addressed through the
// Device interface and fed asynchronously by a Dispatcher so playback ticks
// never wait on device I/O.
package haptic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"hapsync/internal/audio"
	"hapsync/internal/config"
	"hapsync/internal/transport"
)

// ErrClosed is returned by devices and the dispatcher after Close.
var ErrClosed = errors.New("haptic: closed")

// Device is a haptic actuator.
type Device interface {
	// SetIntensity drives the actuator at v in [0, 1].
	SetIntensity(ctx context.Context, v float64) error
	// Stop halts all output.
	Stop(ctx context.Context) error
	IsConnected() bool
	// AnticipationLatency is how long the actuator takes to respond to a
	// command; callers look ahead by this amount.
	AnticipationLatency() time.Duration
	Close() error
}

// AccentDevice is implemented by devices that can render the secondary
// accent channel.
type AccentDevice interface {
	Device
	SetAccent(ctx context.Context, v float64) error
}

// Open builds the device selected by cfg.Driver. hub is required for the
// websocket driver and ignored otherwise. The shaker driver expects PortAudio
// to be initialized by the caller.
func Open(cfg config.HapticConfig, hub *transport.Hub) (Device, error) {
	latency := time.Duration(cfg.AnticipationLatencyMS) * time.Millisecond
	switch cfg.Driver {
	case config.DriverUDP:
		return NewUDPDevice(cfg.UDPTargetAddress, cfg.KeepaliveInterval, latency)
	case config.DriverWebSocket:
		if hub == nil {
			return nil, errors.New("websocket haptic driver needs a hub")
		}
		return NewWebSocketDevice(hub, latency), nil
	case config.DriverShaker:
		return NewShakerDevice(audio.ShakerOptions{
			DeviceID:  cfg.ShakerDevice,
			Frequency: cfg.ShakerFrequency,
			Gate:      cfg.ShakerGate,
		}, latency)
	case config.DriverLog:
		return NewLogDevice(latency), nil
	default:
		return nil, fmt.Errorf("unknown haptic driver %q", cfg.Driver)
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}
