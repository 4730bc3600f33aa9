// SPDX-License-Identifier: MIT
package analyser

import (
	"time"

	"github.com/google/uuid"

	"spectrum/internal/audio"
	"spectrum/internal/log"
	"spectrum/internal/sink"
	"spectrum/internal/status"
)

// ErrorSink surfaces engine failures to the user. ShowError is called on the
// control goroutine and must not block.
type ErrorSink interface {
	ShowError(heading, detail string)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(heading, detail string)

func (f ErrorSinkFunc) ShowError(heading, detail string) { f(heading, detail) }

// logErrors is the ErrorSink used when none is configured.
var logErrors = ErrorSinkFunc(func(heading, detail string) {
	log.Errorf("Analyser: %s: %s", heading, detail)
})

// Router applies engine events to the mode controller, the sinks, the status
// channel and the error sink, strictly in the order it receives them.
type Router struct {
	modes  *ModeController
	sinks  *sink.Set
	status *status.Channel
	errors ErrorSink

	tileLength     int64
	windowDuration time.Duration

	format  audio.Format
	dropped uint64
}

// RouterConfig carries the waveform geometry passed on format changes.
type RouterConfig struct {
	WaveformTileLength     int64
	WaveformWindowDuration time.Duration
}

func NewRouter(modes *ModeController, sinks *sink.Set, st *status.Channel, errs ErrorSink, cfg RouterConfig) *Router {
	if errs == nil {
		errs = logErrors
	}
	return &Router{
		modes:          modes,
		sinks:          sinks,
		status:         st,
		errors:         errs,
		tileLength:     cfg.WaveformTileLength,
		windowDuration: cfg.WaveformWindowDuration,
	}
}

// Format returns the most recently reported stream format.
func (r *Router) Format() audio.Format { return r.format }

// Dropped returns how many stale-session events have been discarded.
func (r *Router) Dropped() uint64 { return r.dropped }

// Dispatch applies ev. Events tagged with a session other than the current
// one are discarded and Dispatch returns false.
func (r *Router) Dispatch(ev audio.Event) bool {
	if s := ev.SessionID(); s != uuid.Nil && s != r.modes.Session() {
		r.dropped++
		log.Debugf("Analyser: dropping %T from stale session %s", ev, s)
		return false
	}

	switch e := ev.(type) {
	case audio.FormatChanged:
		r.format = e.Format
		r.status.Show(e.Format.String(), status.NoTimeout)
		r.sinks.InitializeWaveform(e.Format, r.tileLength, r.windowDuration)

	case audio.SpectrumChanged:
		r.sinks.Window(e.Position, e.Length)
		r.sinks.Spectrum(e.Spectrum)

	case audio.BufferChanged:
		r.sinks.WaveformBuffer(e.Position, e.Length, e.Data)

	case audio.BufferLengthChanged:
		r.sinks.BufferLength(e.Length)

	case audio.LevelChanged:
		r.sinks.Level(e.RMS, e.Peak, e.Channels)

	case audio.RecordPositionChanged:
		r.sinks.RecordPosition(e.Position)
		r.sinks.WaveformPosition(e.Position)

	case audio.PlayPositionChanged:
		r.sinks.PlayPosition(e.Position)
		r.sinks.WaveformPosition(e.Position)

	case audio.StateChanged:
		prev := r.modes.Mode()
		if ended := r.modes.TransitionOnEngineStateChanged(e.Mode, e.State); ended {
			r.sinks.ResetLevels()
		}
		if next := r.modes.Mode(); next != prev {
			log.Debugf("Analyser: %s -> %s (engine %s/%s)", prev, next, e.Mode, e.State)
		}

	case audio.DataLengthChanged:
		r.modes.DataLengthChanged(e.Length)

	case audio.InfoMessage:
		r.status.Show(e.Text, e.Timeout)

	case audio.ErrorMessage:
		r.errors.ShowError(e.Heading, e.Detail)

	default:
		log.Warnf("Analyser: unhandled event %T", ev)
		return false
	}
	return true
}
