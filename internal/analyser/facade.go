// SPDX-License-Identifier: MIT
package analyser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"spectrum/internal/audio"
	"spectrum/internal/config"
	"spectrum/internal/log"
	"spectrum/internal/sink"
)

var (
	// ErrInvalidSelection is returned when no source was chosen.
	ErrInvalidSelection = errors.New("no file selected")
	// ErrUnsupportedFile is returned for a selection that is not a .wav file.
	ErrUnsupportedFile = fmt.Errorf("%w: only %s files are supported", ErrInvalidSelection, config.FileExtension)
	// ErrBusy is returned when a source is opened while a session is running.
	ErrBusy = errors.New("analyser is busy")
	// ErrNotReady is returned when analysis cannot start yet.
	ErrNotReady = errors.New("no source is ready for analysis")
)

// Facade is the command surface of the analyser. Its methods must be called
// on the control goroutine; Coordinator provides goroutine-safe wrappers.
type Facade struct {
	engine audio.Engine
	modes  *ModeController
	sinks  *sink.Set
	source string
}

func NewFacade(engine audio.Engine, modes *ModeController, sinks *sink.Set) *Facade {
	return &Facade{engine: engine, modes: modes, sinks: sinks}
}

// OpenFile starts loading path. The outcome is reported by the engine:
// DataLengthChanged enables analysis, ErrorMessage leaves it disabled.
func (f *Facade) OpenFile(path string) error {
	if err := validateSelection(path); err != nil {
		return err
	}
	if !f.modes.CanOpenFile() {
		return ErrBusy
	}

	f.Reset()
	session, ok := f.modes.TransitionOnOpenFile()
	if !ok {
		return ErrBusy
	}

	f.source = path

	log.Infof("Analyser: opening %s (session %s)", path, session)
	if err := f.engine.LoadFile(session, path); err != nil {
		f.end()
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Source is the path of the opened file or capture, empty when idle after a
// reset.
func (f *Facade) Source() string { return f.source }

// StartAnalysis plays the loaded source through the engine.
func (f *Facade) StartAnalysis() error {
	if !f.modes.CanStartAnalysis() {
		return ErrNotReady
	}

	f.sinks.ClearBars()
	if err := f.engine.StartPlayback(f.modes.Session()); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	f.modes.TransitionOnStartAnalysis()
	return nil
}

// StartCapture records from the input device into path while analysing it.
func (f *Facade) StartCapture(path string) error {
	if err := validateSelection(path); err != nil {
		return err
	}
	if !f.modes.CanOpenFile() {
		return ErrBusy
	}

	f.Reset()
	session, ok := f.modes.TransitionOnStartCapture()
	if !ok {
		return ErrBusy
	}

	f.source = path

	log.Infof("Analyser: capturing to %s (session %s)", path, session)
	if err := f.engine.StartCapture(session, path); err != nil {
		f.end()
		return fmt.Errorf("failed to start capture: %w", err)
	}
	return nil
}

// Reset resets every sink, stops the engine and ends the session. The status
// line is left alone.
func (f *Facade) Reset() {
	f.sinks.Reset()
	f.engine.Reset()
	f.end()
}

func (f *Facade) end() {
	f.modes.Reset()
	f.source = ""
}

func validateSelection(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrInvalidSelection
	}
	if ext := filepath.Ext(path); !strings.EqualFold(ext, config.FileExtension) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Base(path))
	}
	return nil
}
