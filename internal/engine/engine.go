// SPDX-License-Identifier: MIT
/*
Package engine implements the audio engine behind the analyser:
- WAV file loading and paced playback (PortAudio or a silent clocked output)
- Capture from a PortAudio input device to a WAV file
- Per-window levels and FFT spectra emitted as events
- Noise gate with branchless implementation

Thread Safety:
- Commands are serialised by a mutex and return as soon as the work is started
- Each session runs in its own goroutine and emits in order on one channel
- The capture callback locks its OS thread and hands buffers off without
  allocating or blocking
*/
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	"spectrum/internal/config"
	"spectrum/internal/log"
)

const defaultEventBuffer = 256

var (
	// ErrNoSource is returned by StartPlayback when nothing is loaded for
	// the session.
	ErrNoSource = errors.New("no source loaded for session")
	// ErrBusy is returned by StartPlayback while a stream is active.
	ErrBusy = errors.New("engine stream already active")
)

// Options configures an Engine.
type Options struct {
	Audio     config.AudioConfig
	Recording config.RecordingConfig

	Clock       clock.Clock // Defaults to the wall clock.
	OpenOutput  OutputFunc  // Defaults to PortAudio when Audio.Playback, else NullOutput.
	OpenInput   InputFunc   // Defaults to PortAudio.
	EventBuffer int         // Capacity of the event channel.
}

// Engine is the bundled audio.Engine. Each command starts at most one
// session goroutine; starting a new command stops the previous one first.
type Engine struct {
	opts       Options
	clock      clock.Clock
	openOutput OutputFunc
	openInput  InputFunc
	window     analysis.WindowFunc
	gate       *Gate
	events     chan audio.Event

	mode         atomic.Int32
	state        atomic.Int32
	bufferLength atomic.Int64
	source       atomic.Pointer[loadedSource]

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type loadedSource struct {
	session uuid.UUID
	*Source
}

// New creates an engine. Devices are not opened until a stream starts.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Audio.NotifyInterval <= 0 {
		opts.Audio.NotifyInterval = 100 * time.Millisecond
	}
	if opts.Audio.SpectrumLength <= 0 {
		opts.Audio.SpectrumLength = 4096
	}
	if opts.Audio.SampleRate <= 0 {
		opts.Audio.SampleRate = 44100
	}
	if opts.Audio.InputChannels <= 0 {
		opts.Audio.InputChannels = 1
	}
	if opts.Recording.BitDepth == 0 {
		opts.Recording.BitDepth = 16
	}

	e := &Engine{
		opts:       opts,
		clock:      opts.Clock,
		openOutput: opts.OpenOutput,
		openInput:  opts.OpenInput,
		gate:       NewGate(opts.Audio.GateThreshold),
		events:     make(chan audio.Event, opts.EventBuffer),
	}
	if e.openOutput == nil {
		if opts.Audio.Playback {
			e.openOutput = PortAudioOutput(opts.Audio)
		} else {
			e.openOutput = NullOutput(opts.Clock)
		}
	}
	if e.openInput == nil {
		e.openInput = PortAudioInput(opts.Audio)
	}

	window, err := analysis.ParseWindowFunc(opts.Audio.FFTWindow)
	if err != nil {
		log.Warnf("Engine: %v, using %s", err, window)
	}
	e.window = window

	e.mode.Store(int32(audio.Input))
	e.state.Store(int32(audio.Stopped))
	e.bufferLength.Store(e.captureFormat().BytesForDuration(opts.Recording.MaxDuration))
	return e
}

// Events returns the engine's event stream. It is closed by Close.
func (e *Engine) Events() <-chan audio.Event { return e.events }

// Mode returns the direction of the current or last stream.
func (e *Engine) Mode() audio.Mode { return audio.Mode(e.mode.Load()) }

// State returns the current stream state.
func (e *Engine) State() audio.State { return audio.State(e.state.Load()) }

// BufferLength returns the size in bytes of the current analysis buffer.
func (e *Engine) BufferLength() int64 { return e.bufferLength.Load() }

// Gate returns the capture noise gate.
func (e *Engine) Gate() *Gate { return e.gate }

// LoadFile decodes path in the background. The outcome is reported as
// FormatChanged, BufferLengthChanged, DataLengthChanged and a final
// StateChanged(Output, Stopped); a failure is reported as ErrorMessage
// followed by the same StateChanged.
func (e *Engine) LoadFile(session uuid.UUID, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return audio.ErrEngineClosed
	}

	e.stopLocked()
	e.source.Store(nil)
	e.mode.Store(int32(audio.Output))
	e.state.Store(int32(audio.Stopped))

	ctx := e.startLocked()
	e.wg.Add(1)
	go e.load(ctx, session, path)
	return nil
}

// StartPlayback plays the source loaded for session from the start.
func (e *Engine) StartPlayback(session uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return audio.ErrEngineClosed
	}

	src := e.source.Load()
	if src == nil || src.session != session {
		return ErrNoSource
	}
	if e.State() == audio.Active {
		return ErrBusy
	}

	e.stopLocked()
	ctx := e.startLocked()
	e.wg.Add(1)
	go e.play(ctx, session, src.Source)
	return nil
}

// StartCapture opens the input device and records to path. The file is
// created before StartCapture returns.
func (e *Engine) StartCapture(session uuid.UUID, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return audio.ErrEngineClosed
	}

	e.stopLocked()
	e.source.Store(nil)

	c, err := e.newCapture(path)
	if err != nil {
		return err
	}

	ctx := e.startLocked()
	e.mode.Store(int32(audio.Input))
	e.state.Store(int32(audio.Active))
	e.wg.Add(1)
	go e.capture(ctx, session, c)
	return nil
}

// Reset stops any stream, waits for its goroutine to exit and forgets the
// loaded source. No further events are emitted for the stopped session.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.source.Store(nil)
	e.state.Store(int32(audio.Stopped))
}

// Close resets the engine and closes the event stream.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.stopLocked()
	e.state.Store(int32(audio.Stopped))
	close(e.events)
	return nil
}

// startLocked begins a new session goroutine lifetime.
func (e *Engine) startLocked() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	return ctx
}

// stopLocked cancels the running session and waits for it. Session
// goroutines never take e.mu, so waiting while holding it is safe.
func (e *Engine) stopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.wg.Wait()
}

// emit sends ev unless ctx is cancelled first.
func (e *Engine) emit(ctx context.Context, ev audio.Event) bool {
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitAll emits evs in order, stopping at the first cancelled send.
func (e *Engine) emitAll(ctx context.Context, evs ...audio.Event) bool {
	for _, ev := range evs {
		if !e.emit(ctx, ev) {
			return false
		}
	}
	return true
}

// fail reports err for the session and ends its stream.
func (e *Engine) fail(ctx context.Context, h audio.Header, mode audio.Mode, heading string, err error) {
	log.Errorf("Engine: %s: %v", heading, err)
	e.state.Store(int32(audio.Stopped))
	e.emitAll(ctx,
		audio.ErrorMessage{Header: h, Heading: heading, Detail: err.Error()},
		audio.StateChanged{Header: h, Mode: mode, State: audio.Stopped},
	)
}

func (e *Engine) captureFormat() audio.Format {
	return audio.Format{
		SampleRate: int(e.opts.Audio.SampleRate),
		Channels:   e.opts.Audio.InputChannels,
		BitDepth:   16,
	}
}

func (e *Engine) load(ctx context.Context, session uuid.UUID, path string) {
	defer e.wg.Done()
	h := audio.Header{Session: session}

	src, err := LoadWAV(path)
	if err != nil {
		log.Warnf("Engine: failed to load %s: %v", path, err)
		e.emitAll(ctx,
			audio.FormatChanged{Header: h},
			audio.ErrorMessage{Header: h, Heading: "Audio engine", Detail: "Could not open " + path + ": " + err.Error()},
			audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped},
		)
		return
	}
	if ctx.Err() != nil {
		return
	}

	log.Infof("Engine: loaded %s (%s, %d bytes)", path, src.Format, src.DataLength())
	e.source.Store(&loadedSource{session: session, Source: src})
	e.bufferLength.Store(src.DataLength())

	e.emitAll(ctx,
		audio.FormatChanged{Header: h, Format: src.Format},
		audio.BufferLengthChanged{Header: h, Length: src.DataLength()},
		audio.DataLengthChanged{Header: h, Length: src.DataLength()},
		audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped},
	)
}
