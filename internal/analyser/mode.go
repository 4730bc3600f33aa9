// SPDX-License-Identifier: MIT
package analyser

import (
	"github.com/google/uuid"

	"spectrum/internal/audio"
)

// Mode is the analyser's operating mode. Exactly one is current.
type Mode int

const (
	ModeIdle        Mode = iota // No stream; files may be opened.
	ModeLoadingFile             // A load was issued and has not completed.
	ModeAnalyzing               // The engine is streaming for this session.
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeLoadingFile:
		return "loading"
	case ModeAnalyzing:
		return "analyzing"
	default:
		return "unknown"
	}
}

// Policy holds the configurable parts of the start-analysis guard.
type Policy struct {
	// AllowEmptyAnalysis permits starting analysis on a source that loaded
	// successfully but holds no data.
	AllowEmptyAnalysis bool
}

// CanStartAnalysis reports whether an analysis pass may start. A source must
// be loaded and the analyser idle, and the engine must not already be
// playing or primed for playback.
func CanStartAnalysis(mode Mode, engineMode audio.Mode, engineState audio.State, loaded bool, dataLength int64, policy Policy) bool {
	if !loaded || mode != ModeIdle {
		return false
	}
	if engineMode == audio.Output && (engineState == audio.Active || engineState == audio.Idle) {
		return false
	}
	if dataLength <= 0 && !policy.AllowEmptyAnalysis {
		return false
	}
	return true
}

// ModeController owns the current Mode and session. Guards are re-checked
// inside every transition, so a transition whose guard is false is a no-op.
type ModeController struct {
	mode       Mode
	session    uuid.UUID
	loaded     bool
	dataLength int64

	engineMode  audio.Mode
	engineState audio.State

	policy     Policy
	newSession func() uuid.UUID
}

// NewModeController starts idle with no session. engineMode and engineState
// seed the mirror of the engine's reported stream state.
func NewModeController(policy Policy, engineMode audio.Mode, engineState audio.State) *ModeController {
	return &ModeController{
		policy:      policy,
		engineMode:  engineMode,
		engineState: engineState,
		newSession:  uuid.New,
	}
}

func (c *ModeController) Mode() Mode               { return c.mode }
func (c *ModeController) Session() uuid.UUID       { return c.session }
func (c *ModeController) Loaded() bool             { return c.loaded }
func (c *ModeController) DataLength() int64        { return c.dataLength }
func (c *ModeController) EngineMode() audio.Mode   { return c.engineMode }
func (c *ModeController) EngineState() audio.State { return c.engineState }

// CanOpenFile reports whether a new source may be opened.
func (c *ModeController) CanOpenFile() bool {
	return c.mode == ModeIdle
}

func (c *ModeController) CanStartAnalysis() bool {
	return CanStartAnalysis(c.mode, c.engineMode, c.engineState, c.loaded, c.dataLength, c.policy)
}

// TransitionOnOpenFile begins a new loading session and returns its id.
func (c *ModeController) TransitionOnOpenFile() (uuid.UUID, bool) {
	if !c.CanOpenFile() {
		return uuid.Nil, false
	}
	c.begin()
	c.mode = ModeLoadingFile
	return c.session, true
}

// TransitionOnStartCapture begins a new capture session and returns its id.
func (c *ModeController) TransitionOnStartCapture() (uuid.UUID, bool) {
	if !c.CanOpenFile() {
		return uuid.Nil, false
	}
	c.begin()
	c.mode = ModeAnalyzing
	return c.session, true
}

// TransitionOnStartAnalysis moves a loaded, idle session to ModeAnalyzing.
func (c *ModeController) TransitionOnStartAnalysis() bool {
	if !c.CanStartAnalysis() {
		return false
	}
	c.mode = ModeAnalyzing
	return true
}

// TransitionOnEngineStateChanged mirrors an engine-reported state. Active or
// Suspended streams put the analyser in ModeAnalyzing; any other state ends
// the stream and returns it to ModeIdle. The result reports whether the
// stream ended, in which case the level sinks must be reset.
func (c *ModeController) TransitionOnEngineStateChanged(mode audio.Mode, state audio.State) bool {
	c.engineMode = mode
	c.engineState = state
	if state.Streaming() {
		c.mode = ModeAnalyzing
		return false
	}
	c.mode = ModeIdle
	return true
}

// DataLengthChanged records that the session's source loaded with length
// bytes of data. It has no effect without a session.
func (c *ModeController) DataLengthChanged(length int64) {
	if c.session == uuid.Nil {
		return
	}
	c.loaded = true
	c.dataLength = length
}

// Reset ends the session and returns to ModeIdle.
func (c *ModeController) Reset() {
	c.mode = ModeIdle
	c.session = uuid.Nil
	c.loaded = false
	c.dataLength = 0
}

func (c *ModeController) begin() {
	c.session = c.newSession()
	c.loaded = false
	c.dataLength = 0
}
