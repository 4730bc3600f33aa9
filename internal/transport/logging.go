// SPDX-License-Identifier: MIT
package transport

import (
	"spectrum/internal/log"
)

// LoggingTransport implements the Transport interface by logging frames at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a one-line summary of the frame.
func (lt *LoggingTransport) Send(f Frame) error {
	log.Debugf("Transport: frame %d mode=%s engine=%s/%s rms=%.3f peak=%.3f progress=%.2f status=%q",
		f.Sequence, f.Mode, f.EngineMode, f.EngineState, f.RMS, f.Peak, f.Progress, f.Status)
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("Transport: LoggingTransport closed")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
