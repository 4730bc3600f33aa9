// SPDX-License-Identifier: MIT
/*
Package sink defines the visual consumers driven by the analyser and the Set
that groups them.

Each consumer exposes Reset and the update entry points the router calls.
Consumers are mutated only from the coordinator's control goroutine; the
in-memory models in this package additionally guard their state so the TUI
and transports can read copies from other goroutines.
*/
package sink

import (
	"time"

	"spectrum/internal/audio"
)

// Waveform renders raw PCM around the current audio position.
type Waveform interface {
	Initialize(format audio.Format, tileLength int64, windowDuration time.Duration)
	BufferChanged(position, length int64, data []byte)
	AudioPositionChanged(position int64)
	Reset()
}

// Spectrograph renders a bar per frequency band.
type Spectrograph interface {
	SetParams(bands int, lowFreq, highFreq float64)
	SpectrumChanged(spectrum audio.FrequencySpectrum)
	ClearBars()
	Bar(i int) (Bar, bool)
	Reset()
}

// LevelMeter renders RMS and peak levels.
type LevelMeter interface {
	LevelChanged(rms, peak float64, channels int)
	Reset()
}

// ProgressBar renders the buffer, the play/record positions and the
// analysis window.
type ProgressBar interface {
	BufferLengthChanged(length int64)
	RecordPositionChanged(position int64)
	PlayPositionChanged(position int64)
	WindowChanged(position, length int64)
	Reset()
}

// Set is the ordered collection of sinks. The waveform is optional; a nil
// Waveform means the sink is absent and its updates are skipped.
//
// Set tracks whether each sink received data since its last reset so that
// repeated terminal state changes do not reset sinks that are already clean.
type Set struct {
	waveform     Waveform
	spectrograph Spectrograph
	levelMeter   LevelMeter
	progress     ProgressBar

	waveformDirty     bool
	spectrographDirty bool
	levelDirty        bool
	progressDirty     bool
}

// NewSet groups the sinks. waveform may be nil; the others are required.
func NewSet(waveform Waveform, spectrograph Spectrograph, levelMeter LevelMeter, progress ProgressBar) *Set {
	if spectrograph == nil || levelMeter == nil || progress == nil {
		panic("sink: spectrograph, level meter and progress bar are required")
	}
	return &Set{
		waveform:     waveform,
		spectrograph: spectrograph,
		levelMeter:   levelMeter,
		progress:     progress,
	}
}

// hasWaveform reports whether the optional waveform sink is present.
func (s *Set) hasWaveform() bool { return s.waveform != nil }

// Reset resets every sink unconditionally, waveform first.
func (s *Set) Reset() {
	if s.waveform != nil {
		s.waveform.Reset()
	}
	s.levelMeter.Reset()
	s.spectrograph.Reset()
	s.progress.Reset()
	s.waveformDirty = false
	s.spectrographDirty = false
	s.levelDirty = false
	s.progressDirty = false
}

// ResetLevels resets the level meter and spectrograph if either holds data
// received since its last reset.
func (s *Set) ResetLevels() {
	if s.levelDirty {
		s.levelMeter.Reset()
		s.levelDirty = false
	}
	if s.spectrographDirty {
		s.spectrograph.Reset()
		s.spectrographDirty = false
	}
}

// dirty reports whether any sink received data since its last reset.
func (s *Set) dirty() bool {
	return s.waveformDirty || s.spectrographDirty || s.levelDirty || s.progressDirty
}

// InitializeWaveform prepares the waveform for a new stream format.
func (s *Set) InitializeWaveform(format audio.Format, tileLength int64, windowDuration time.Duration) {
	if s.waveform == nil || format.IsZero() {
		return
	}
	s.waveform.Initialize(format, tileLength, windowDuration)
	s.waveformDirty = true
}

func (s *Set) WaveformBuffer(position, length int64, data []byte) {
	if s.waveform == nil || len(data) == 0 {
		return
	}
	s.waveform.BufferChanged(position, length, data)
	s.waveformDirty = true
}

func (s *Set) WaveformPosition(position int64) {
	if s.waveform == nil {
		return
	}
	s.waveform.AudioPositionChanged(position)
	s.waveformDirty = true
}

func (s *Set) SpectrographParams(bands int, lowFreq, highFreq float64) {
	s.spectrograph.SetParams(bands, lowFreq, highFreq)
}

func (s *Set) Spectrum(spectrum audio.FrequencySpectrum) {
	if len(spectrum) == 0 {
		return
	}
	s.spectrograph.SpectrumChanged(spectrum)
	s.spectrographDirty = true
}

// ClearBars blanks the spectrograph before a new analysis pass.
func (s *Set) ClearBars() {
	s.spectrograph.ClearBars()
}

// Bar returns spectrograph band i, reporting false when i is out of range.
func (s *Set) Bar(i int) (Bar, bool) {
	return s.spectrograph.Bar(i)
}

func (s *Set) Level(rms, peak float64, channels int) {
	s.levelMeter.LevelChanged(rms, peak, channels)
	s.levelDirty = true
}

func (s *Set) BufferLength(length int64) {
	s.progress.BufferLengthChanged(length)
	s.progressDirty = true
}

func (s *Set) RecordPosition(position int64) {
	s.progress.RecordPositionChanged(position)
	s.progressDirty = true
}

func (s *Set) PlayPosition(position int64) {
	s.progress.PlayPositionChanged(position)
	s.progressDirty = true
}

func (s *Set) Window(position, length int64) {
	s.progress.WindowChanged(position, length)
	s.progressDirty = true
}
