// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync/atomic"

	applog "hapsync/internal/log"
)

// LoggingTransport implements Transport by writing each message to the log at
// debug level. It backs the "log" haptic driver and dry runs.
type LoggingTransport struct {
	logger *applog.Logger
	sent   atomic.Int64
	closed atomic.Bool
}

// NewLoggingTransport creates a LoggingTransport tagged with the given name.
func NewLoggingTransport(name string) *LoggingTransport {
	lt := &LoggingTransport{logger: applog.With("component", "transport", "transport", name)}
	lt.logger.Infof("using logging transport")
	return lt
}

// Send logs the message as JSON, falling back to %+v when it cannot be encoded.
func (lt *LoggingTransport) Send(data any) error {
	if lt.closed.Load() {
		return ErrClosed
	}
	lt.sent.Add(1)
	raw, err := json.Marshal(data)
	if err != nil {
		lt.logger.Debugf("send (%T): %+v", data, data)
		return nil
	}
	lt.logger.Debugf("send: %s", raw)
	return nil
}

// Sent reports how many messages have been accepted.
func (lt *LoggingTransport) Sent() int64 { return lt.sent.Load() }

func (lt *LoggingTransport) Close() error {
	if lt.closed.CompareAndSwap(false, true) {
		lt.logger.Debugf("closed after %d messages", lt.sent.Load())
	}
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
