// SPDX-License-Identifier: MIT
/*
Package analyser is the coordination core of the spectrum analyser. It owns
the operating mode and current session, applies the engine's event stream to
the visual sinks and the status line, and exposes the open/analyse/reset
commands.

All state is owned by one control goroutine, Coordinator.Run. Engine events,
UI commands and status-line expiries are all serialised through it, so the
router and facade never run concurrently.
*/
package analyser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"spectrum/internal/audio"
	"spectrum/internal/log"
	"spectrum/internal/sink"
	"spectrum/internal/status"
)

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("analyser coordinator stopped")

const workQueueSize = 64

// barInfoTimeout is how long a selected bar's description stays on the
// status line.
const barInfoTimeout = 2 * time.Second

// Snapshot is an immutable view of the coordinator, safe to read from any
// goroutine.
type Snapshot struct {
	Session          uuid.UUID
	Mode             Mode
	EngineMode       audio.Mode
	EngineState      audio.State
	Loaded           bool
	DataLength       int64
	Source           string // Opened file or capture path.
	Format           audio.Format
	Status           status.Message
	CanOpenFile      bool
	CanStartAnalysis bool
	Dropped          uint64 // Stale-session events discarded so far.
	Sequence         uint64 // Incremented on every published snapshot.
}

// Options configures a Coordinator.
type Options struct {
	Clock                  clock.Clock // Status-line timers; the wall clock when nil.
	Policy                 Policy
	ErrorSink              ErrorSink // Receives ErrorMessage events; logged when nil.
	WaveformTileLength     int64
	WaveformWindowDuration time.Duration
	SpectrumBands          int
	SpectrumLowFreq        float64
	SpectrumHighFreq       float64
}

// Coordinator runs the control goroutine that owns the mode controller,
// router, facade, sinks and status channel.
type Coordinator struct {
	engine audio.Engine
	sinks  *sink.Set
	modes  *ModeController
	status *status.Channel
	router *Router
	facade *Facade
	opts   Options

	work    chan func()
	done    chan struct{}
	running atomic.Bool

	snapshot atomic.Pointer[Snapshot]
	seq      uint64

	subsMu sync.Mutex
	subs   []func(Snapshot)
}

func New(engine audio.Engine, sinks *sink.Set, opts Options) *Coordinator {
	c := &Coordinator{
		engine: engine,
		sinks:  sinks,
		opts:   opts,
		work:   make(chan func(), workQueueSize),
		done:   make(chan struct{}),
	}
	c.modes = NewModeController(opts.Policy, engine.Mode(), engine.State())
	c.status = status.New(opts.Clock, c.post)
	c.status.OnChange(func(m status.Message) {
		if m.Text == "" {
			log.Debugf("Analyser: status cleared")
			return
		}
		log.Debugf("Analyser: status: %s", m.Text)
	})
	c.router = NewRouter(c.modes, sinks, c.status, opts.ErrorSink, RouterConfig{
		WaveformTileLength:     opts.WaveformTileLength,
		WaveformWindowDuration: opts.WaveformWindowDuration,
	})
	c.facade = NewFacade(engine, c.modes, sinks)
	c.publish()
	return c
}

// Run processes engine events and posted commands until ctx is cancelled or
// the engine's event stream is closed. It may be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("analyser coordinator already running")
	}
	defer close(c.done)

	if c.opts.SpectrumBands > 0 {
		c.sinks.SpectrographParams(c.opts.SpectrumBands, c.opts.SpectrumLowFreq, c.opts.SpectrumHighFreq)
	}
	c.sinks.BufferLength(c.engine.BufferLength())
	c.publish()

	log.Debugf("Analyser: coordinator running")
	events := c.engine.Events()
	for {
		select {
		case <-ctx.Done():
			log.Debugf("Analyser: coordinator stopping: %v", ctx.Err())
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				log.Infof("Analyser: engine event stream closed")
				return nil
			}
			c.router.Dispatch(ev)
		case fn := <-c.work:
			fn()
		}
		c.publish()
	}
}

// Snapshot returns the most recently published state.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Subscribe registers fn to be called on the control goroutine after every
// published snapshot. fn must not block.
func (c *Coordinator) Subscribe(fn func(Snapshot)) {
	c.subsMu.Lock()
	c.subs = append(c.subs, fn)
	c.subsMu.Unlock()
}

// Do runs fn against the facade on the control goroutine and returns its
// error.
func (c *Coordinator) Do(ctx context.Context, fn func(f *Facade) error) error {
	errc := make(chan error, 1)
	select {
	case c.work <- func() { errc <- fn(c.facade) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrStopped
		}
	}
}

func (c *Coordinator) OpenFile(ctx context.Context, path string) error {
	return c.Do(ctx, func(f *Facade) error { return f.OpenFile(path) })
}

func (c *Coordinator) StartAnalysis(ctx context.Context) error {
	return c.Do(ctx, func(f *Facade) error { return f.StartAnalysis() })
}

func (c *Coordinator) StartCapture(ctx context.Context, path string) error {
	return c.Do(ctx, func(f *Facade) error { return f.StartCapture(path) })
}

func (c *Coordinator) Reset(ctx context.Context) error {
	return c.Do(ctx, func(f *Facade) error {
		f.Reset()
		return nil
	})
}

// ShowStatus displays text on the status line.
func (c *Coordinator) ShowStatus(ctx context.Context, text string, timeout time.Duration) error {
	return c.Do(ctx, func(*Facade) error {
		c.status.Show(text, timeout)
		return nil
	})
}

// SelectBar reports spectrograph band i on the status line.
func (c *Coordinator) SelectBar(ctx context.Context, i int) error {
	return c.Do(ctx, func(*Facade) error {
		b, ok := c.sinks.Bar(i)
		if !ok {
			return fmt.Errorf("%w: no spectrograph band %d", ErrInvalidSelection, i)
		}
		c.status.Show(b.String(), barInfoTimeout)
		return nil
	})
}

func (c *Coordinator) ClearStatus(ctx context.Context) error {
	return c.Do(ctx, func(*Facade) error {
		c.status.Clear()
		return nil
	})
}

// post queues fn for the control goroutine. It is the status channel's
// dispatch function; expiries arriving after Run returns are discarded.
func (c *Coordinator) post(fn func()) {
	select {
	case c.work <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) publish() {
	c.seq++
	s := &Snapshot{
		Session:          c.modes.Session(),
		Mode:             c.modes.Mode(),
		EngineMode:       c.modes.EngineMode(),
		EngineState:      c.modes.EngineState(),
		Loaded:           c.modes.Loaded(),
		DataLength:       c.modes.DataLength(),
		Source:           c.facade.Source(),
		Format:           c.router.Format(),
		Status:           c.status.Current(),
		CanOpenFile:      c.modes.CanOpenFile(),
		CanStartAnalysis: c.modes.CanStartAnalysis(),
		Dropped:          c.router.Dropped(),
		Sequence:         c.seq,
	}
	c.snapshot.Store(s)

	c.subsMu.Lock()
	subs := c.subs
	c.subsMu.Unlock()
	for _, fn := range subs {
		fn(*s)
	}
}
