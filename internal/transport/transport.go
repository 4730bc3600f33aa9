// SPDX-License-Identifier: MIT
/*
Package transport publishes periodic frames of analyser state to external
consumers: WebSocket clients, UDP listeners, a NATS subject or the log.
*/
package transport

import (
	"time"

	"github.com/google/uuid"

	"spectrum/internal/analyser"
	"spectrum/internal/sink"
)

// Transport defines a generic interface for sending frames.
// Implementations should be thread-safe.
type Transport interface {
	Send(frame Frame) error
	Close() error
}

// Frame is one published view of the analyser: the coordinator snapshot
// together with the display state of its sinks.
type Frame struct {
	Sequence    uint64    `json:"seq"`
	Timestamp   int64     `json:"ts"` // Unix nanoseconds.
	Session     string    `json:"session,omitempty"`
	Mode        string    `json:"mode"`
	EngineMode  string    `json:"engine_mode"`
	EngineState string    `json:"engine_state"`
	Format      string    `json:"format,omitempty"`
	Source      string    `json:"source,omitempty"`
	Status      string    `json:"status,omitempty"`
	Bars        []float64 `json:"bars"`
	Clipped     bool      `json:"clipped"` // Any bar clipped.
	RMS         float64   `json:"rms"`
	Peak        float64   `json:"peak"`
	PeakHold    float64   `json:"peak_hold"`
	Progress    float64   `json:"progress"` // Fraction of the buffer played or recorded.
}

// FrameSource produces the frame to publish on each tick.
type FrameSource func() Frame

// NewFrame assembles a frame from a coordinator snapshot and sink states.
func NewFrame(snap analyser.Snapshot, bars []sink.Bar, level sink.LevelState, progress sink.ProgressState, now time.Time) Frame {
	f := Frame{
		Sequence:    snap.Sequence,
		Timestamp:   now.UnixNano(),
		Mode:        snap.Mode.String(),
		EngineMode:  snap.EngineMode.String(),
		EngineState: snap.EngineState.String(),
		Format:      snap.Format.String(),
		Source:      snap.Source,
		Status:      snap.Status.Text,
		Bars:        make([]float64, len(bars)),
		RMS:         level.RMS,
		Peak:        level.Peak,
		PeakHold:    level.PeakHold,
		Progress:    progress.Fraction(),
	}
	if snap.Session != uuid.Nil {
		f.Session = snap.Session.String()
	}
	for i, b := range bars {
		f.Bars[i] = b.Value
		f.Clipped = f.Clipped || b.Clipped
	}
	return f
}
