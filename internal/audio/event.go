// SPDX-License-Identifier: MIT
package audio

import (
	"time"

	"github.com/google/uuid"
)

// NoTimeout marks an InfoMessage that stays until superseded.
const NoTimeout time.Duration = -1

// Event is one item of the engine's event stream. The set of variants is
// closed; consumers switch over the concrete types.
//
// Every event carries the session it was produced for. uuid.Nil marks an
// engine-global event that does not belong to any session.
type Event interface {
	SessionID() uuid.UUID
	isEvent()
}

// Header carries the fields common to every event.
type Header struct {
	Session uuid.UUID
}

// SessionID returns the session the event belongs to.
func (h Header) SessionID() uuid.UUID { return h.Session }

// StateChanged reports a new engine stream mode/state.
type StateChanged struct {
	Header
	Mode  Mode
	State State
}

// FormatChanged reports the format of the loaded or captured stream. The
// zero Format means the source could not be interpreted.
type FormatChanged struct {
	Header
	Format Format
}

// SpectrumChanged carries the analysis of the window [Position, Position+Length).
type SpectrumChanged struct {
	Header
	Position int64
	Length   int64
	Spectrum FrequencySpectrum
}

// BufferChanged carries raw PCM for [Position, Position+Length).
type BufferChanged struct {
	Header
	Position int64
	Length   int64
	Data     []byte
}

// LevelChanged carries the levels of the most recent window, both in [0, 1].
type LevelChanged struct {
	Header
	RMS      float64
	Peak     float64
	Channels int
}

// RecordPositionChanged reports the capture write position.
type RecordPositionChanged struct {
	Header
	Position int64
}

// PlayPositionChanged reports the playback read position.
type PlayPositionChanged struct {
	Header
	Position int64
}

// BufferLengthChanged reports the size of the engine's analysis buffer.
type BufferLengthChanged struct {
	Header
	Length int64
}

// DataLengthChanged reports how much data the current source holds.
type DataLengthChanged struct {
	Header
	Length int64
}

// InfoMessage is a transient, non-blocking message for the status line.
type InfoMessage struct {
	Header
	Text    string
	Timeout time.Duration // NoTimeout keeps the message until superseded.
}

// ErrorMessage is a failure the user must acknowledge.
type ErrorMessage struct {
	Header
	Heading string
	Detail  string
}

func (StateChanged) isEvent()          {}
func (FormatChanged) isEvent()         {}
func (SpectrumChanged) isEvent()       {}
func (BufferChanged) isEvent()         {}
func (LevelChanged) isEvent()          {}
func (RecordPositionChanged) isEvent() {}
func (PlayPositionChanged) isEvent()   {}
func (BufferLengthChanged) isEvent()   {}
func (DataLengthChanged) isEvent()     {}
func (InfoMessage) isEvent()           {}
func (ErrorMessage) isEvent()          {}
