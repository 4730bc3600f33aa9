// SPDX-License-Identifier: MIT
package analyser

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"spectrum/internal/audio"
	"spectrum/internal/sink"
	"spectrum/internal/status"
)

// fakeEngine records commands and lets tests feed the event stream.
type fakeEngine struct {
	mu        sync.Mutex
	events    chan audio.Event
	loads     []string
	sessions  []uuid.UUID
	playbacks int
	captures  []string
	resets    int

	loadErr      error
	playErr      error
	bufferLength int64
	mode         audio.Mode
	state        audio.State
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		events:       make(chan audio.Event, 64),
		bufferLength: 4 * 44100 * 2,
		mode:         audio.Output,
		state:        audio.Stopped,
	}
}

func (e *fakeEngine) Events() <-chan audio.Event { return e.events }

func (e *fakeEngine) LoadFile(session uuid.UUID, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return e.loadErr
	}
	e.loads = append(e.loads, path)
	e.sessions = append(e.sessions, session)
	return nil
}

func (e *fakeEngine) StartPlayback(session uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return e.playErr
	}
	e.playbacks++
	e.sessions = append(e.sessions, session)
	return nil
}

func (e *fakeEngine) StartCapture(session uuid.UUID, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captures = append(e.captures, path)
	e.sessions = append(e.sessions, session)
	return nil
}

func (e *fakeEngine) Reset() {
	e.mu.Lock()
	e.resets++
	e.mu.Unlock()
}

func (e *fakeEngine) BufferLength() int64 { return e.bufferLength }
func (e *fakeEngine) Mode() audio.Mode    { return e.mode }
func (e *fakeEngine) State() audio.State  { return e.state }
func (e *fakeEngine) Close() error        { close(e.events); return nil }

func (e *fakeEngine) lastSession() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return uuid.Nil
	}
	return e.sessions[len(e.sessions)-1]
}

// errorRecorder is an ErrorSink that keeps every error.
type errorRecorder struct {
	headings []string
	details  []string
}

func (r *errorRecorder) ShowError(heading, detail string) {
	r.headings = append(r.headings, heading)
	r.details = append(r.details, detail)
}

// countingLevel counts resets of the level meter.
type countingLevel struct {
	*sink.LevelMeterModel
	resets int
}

func (c *countingLevel) Reset() {
	c.resets++
	c.LevelMeterModel.Reset()
}

// fixture wires the core synchronously on the test goroutine.
type fixture struct {
	engine   *fakeEngine
	clock    *clock.Mock
	wave     *sink.WaveformModel
	spectro  *sink.SpectrographModel
	level    *countingLevel
	progress *sink.ProgressModel
	sinks    *sink.Set
	modes    *ModeController
	status   *status.Channel
	errors   *errorRecorder
	router   *Router
	facade   *Facade
}

func newFixture(t *testing.T, withWaveform bool) *fixture {
	t.Helper()
	f := &fixture{
		engine:   newFakeEngine(),
		clock:    clock.NewMock(),
		spectro:  sink.NewSpectrographModel(10, 0, 1000),
		level:    &countingLevel{LevelMeterModel: sink.NewLevelMeterModel(0.9)},
		progress: sink.NewProgressModel(),
		errors:   &errorRecorder{},
	}
	var wave sink.Waveform
	if withWaveform {
		f.wave = sink.NewWaveformModel()
		wave = f.wave
	}
	f.sinks = sink.NewSet(wave, f.spectro, f.level, f.progress)
	f.modes = NewModeController(Policy{AllowEmptyAnalysis: true}, f.engine.Mode(), f.engine.State())
	f.status = status.New(f.clock, nil)
	f.router = NewRouter(f.modes, f.sinks, f.status, f.errors, RouterConfig{
		WaveformTileLength:     4096,
		WaveformWindowDuration: 500 * time.Millisecond,
	})
	f.facade = NewFacade(f.engine, f.modes, f.sinks)
	return f
}

// session builds an event header for the current session.
func (f *fixture) session() audio.Header {
	return audio.Header{Session: f.modes.Session()}
}

// loaded opens path and replays a successful load of length bytes.
func (f *fixture) loaded(t *testing.T, path string, length int64) {
	t.Helper()
	if err := f.facade.OpenFile(path); err != nil {
		t.Fatalf("OpenFile(%q): %v", path, err)
	}
	h := f.session()
	f.router.Dispatch(audio.FormatChanged{Header: h, Format: mono})
	f.router.Dispatch(audio.BufferLengthChanged{Header: h, Length: length})
	f.router.Dispatch(audio.DataLengthChanged{Header: h, Length: length})
	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped})
}

// assertSinksZero fails if any sink holds state.
func (f *fixture) assertSinksZero(t *testing.T) {
	t.Helper()
	if f.wave != nil {
		if st := f.wave.State(); st.Position != 0 || len(st.Samples) != 0 {
			t.Errorf("waveform holds state: pos=%d samples=%d", st.Position, len(st.Samples))
		}
	}
	for _, b := range f.spectro.Bars() {
		if b.Value != 0 {
			t.Errorf("spectrograph bar %.0f-%.0f Hz = %v", b.LowHz, b.HighHz, b.Value)
		}
	}
	if st := f.level.State(); st != (sink.LevelState{}) {
		t.Errorf("level meter holds state: %+v", st)
	}
	if st := f.progress.State(); st != (sink.ProgressState{}) {
		t.Errorf("progress holds state: %+v", st)
	}
}

var mono = audio.Format{SampleRate: 44100, Channels: 1, BitDepth: 16}

// pcm returns n bytes of non-silent 16-bit PCM.
func pcm(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i%7 + 1)
	}
	return b
}
