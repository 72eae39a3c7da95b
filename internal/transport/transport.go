// SPDX-License-Identifier: MIT

// Package transport moves JSON-serialisable messages to external peers.
package transport

import "errors"

// ErrClosed is returned by Send once a transport has been closed.
var ErrClosed = errors.New("transport closed")

// Transport defines the interface for sending messages out of the process.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Send delivers one message. Implementations may drop under back-pressure
	// but must not block for long.
	Send(data any) error
	// Close releases the transport. Send after Close returns ErrClosed.
	Close() error
}
