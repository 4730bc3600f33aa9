// SPDX-License-Identifier: MIT
package audio

import (
	"errors"

	"github.com/google/uuid"
)

// ErrEngineClosed is returned by commands issued after Close.
var ErrEngineClosed = errors.New("audio engine is closed")

// Engine is the command and query surface of an audio engine.
//
// Commands are asynchronous: they are queued to the engine and their
// outcome is reported on the Events channel, tagged with the session the
// command was issued for. Implementations must deliver events in the order
// they were produced and must never emit on Events concurrently from two
// goroutines in a way that reorders them.
type Engine interface {
	// Events returns the engine's single FIFO event stream. It is closed by Close.
	Events() <-chan Event

	// LoadFile loads a source for later playback.
	LoadFile(session uuid.UUID, path string) error
	// StartPlayback plays the loaded source from the beginning.
	StartPlayback(session uuid.UUID) error
	// StartCapture records from the input device to path.
	StartCapture(session uuid.UUID, path string) error
	// Reset stops any stream and forgets the loaded source.
	Reset()

	BufferLength() int64
	Mode() Mode
	State() State

	Close() error
}
