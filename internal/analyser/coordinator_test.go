// SPDX-License-Identifier: MIT
package analyser

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"spectrum/internal/audio"
	"spectrum/internal/log"
	"spectrum/internal/sink"
)

type coordinatorFixture struct {
	engine   *fakeEngine
	clock    *clock.Mock
	spectro  *sink.SpectrographModel
	progress *sink.ProgressModel
	errs     *lockedErrors
	c        *Coordinator
	cancel   context.CancelFunc
	runErr   chan error
}

// lockedErrors is an ErrorSink safe to read from the test goroutine.
type lockedErrors struct {
	mu       sync.Mutex
	headings []string
}

func (l *lockedErrors) ShowError(heading, _ string) {
	l.mu.Lock()
	l.headings = append(l.headings, heading)
	l.mu.Unlock()
}

func (l *lockedErrors) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.headings)
}

func startCoordinator(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		engine:   newFakeEngine(),
		clock:    clock.NewMock(),
		spectro:  sink.NewSpectrographModel(10, 0, 1000),
		progress: sink.NewProgressModel(),
		errs:     &lockedErrors{},
		runErr:   make(chan error, 1),
	}
	sinks := sink.NewSet(sink.NewWaveformModel(), f.spectro, sink.NewLevelMeterModel(0.5), f.progress)
	f.c = New(f.engine, sinks, Options{
		Clock:                  f.clock,
		Policy:                 Policy{AllowEmptyAnalysis: true},
		ErrorSink:              f.errs,
		WaveformTileLength:     4096,
		WaveformWindowDuration: 500 * time.Millisecond,
		SpectrumBands:          20,
		SpectrumLowFreq:        0,
		SpectrumHighFreq:       2000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.runErr <- f.c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.runErr
	})
	return f
}

// waitFor polls the published snapshot until cond holds.
func waitFor(t *testing.T, c *Coordinator, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot %+v", what, c.Snapshot())
	return Snapshot{}
}

func TestCoordinatorInitialState(t *testing.T) {
	f := startCoordinator(t)

	waitFor(t, f.c, "initial buffer length", func(Snapshot) bool {
		return f.progress.State().BufferLength == f.engine.bufferLength
	})
	s := f.c.Snapshot()
	if s.Mode != ModeIdle || !s.CanOpenFile || s.CanStartAnalysis {
		t.Errorf("initial snapshot %+v", s)
	}
	if got := len(f.spectro.Bars()); got != 20 {
		t.Errorf("spectrograph bands = %d, want 20 from options", got)
	}
}

func TestCoordinatorPlaybackSession(t *testing.T) {
	f := startCoordinator(t)
	ctx := context.Background()

	if err := f.c.OpenFile(ctx, "tone.wav"); err != nil {
		t.Fatal(err)
	}
	s := waitFor(t, f.c, "loading", func(s Snapshot) bool { return s.Mode == ModeLoadingFile })
	h := audio.Header{Session: s.Session}
	if f.engine.lastSession() != s.Session {
		t.Fatal("snapshot session differs from the one sent to the engine")
	}

	f.engine.events <- audio.FormatChanged{Header: h, Format: mono}
	f.engine.events <- audio.DataLengthChanged{Header: h, Length: 441000}
	f.engine.events <- audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped}
	s = waitFor(t, f.c, "loaded", func(s Snapshot) bool { return s.CanStartAnalysis })
	if s.Status.Text != "44100 Hz, 1 channel" || s.Format != mono || s.DataLength != 441000 {
		t.Errorf("loaded snapshot %+v", s)
	}

	if err := f.c.StartAnalysis(ctx); err != nil {
		t.Fatal(err)
	}
	f.engine.events <- audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Active}
	f.engine.events <- audio.PlayPositionChanged{Header: h, Position: 8820}
	waitFor(t, f.c, "playing", func(s Snapshot) bool {
		return s.Mode == ModeAnalyzing && !s.CanStartAnalysis && f.progress.State().PlayPosition == 8820
	})

	if err := f.c.StartAnalysis(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("StartAnalysis while playing = %v, want ErrNotReady", err)
	}

	f.engine.events <- audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped}
	waitFor(t, f.c, "finished", func(s Snapshot) bool { return s.Mode == ModeIdle && s.CanStartAnalysis })
}

func TestCoordinatorDropsStaleAfterReset(t *testing.T) {
	f := startCoordinator(t)
	ctx := context.Background()

	if err := f.c.OpenFile(ctx, "tone.wav"); err != nil {
		t.Fatal(err)
	}
	old := audio.Header{Session: f.engine.lastSession()}
	if err := f.c.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	f.engine.events <- audio.PlayPositionChanged{Header: old, Position: 100}
	f.engine.events <- audio.ErrorMessage{Header: old, Heading: "late", Detail: "stale"}
	s := waitFor(t, f.c, "drops", func(s Snapshot) bool { return s.Dropped == 2 })

	if f.progress.State().PlayPosition != 0 || f.errs.count() != 0 {
		t.Error("stale events reached the sinks or error sink")
	}
	if s.Mode != ModeIdle || s.Loaded {
		t.Errorf("snapshot after reset %+v", s)
	}
}

func TestCoordinatorStatusExpiry(t *testing.T) {
	f := startCoordinator(t)
	ctx := context.Background()

	if err := f.c.ShowStatus(ctx, "saved", time.Second); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.c, "status shown", func(s Snapshot) bool { return s.Status.Text == "saved" })

	f.clock.Add(time.Second)
	waitFor(t, f.c, "status expired", func(s Snapshot) bool { return s.Status.Text == "" })

	f.engine.events <- audio.InfoMessage{Text: "persist", Timeout: audio.NoTimeout}
	waitFor(t, f.c, "info", func(s Snapshot) bool { return s.Status.Text == "persist" })
	if err := f.c.ClearStatus(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.c, "cleared", func(s Snapshot) bool { return s.Status.Text == "" })
}

func TestCoordinatorErrorSink(t *testing.T) {
	f := startCoordinator(t)
	f.engine.events <- audio.ErrorMessage{Heading: "Device", Detail: "unplugged"}
	waitFor(t, f.c, "error", func(Snapshot) bool { return f.errs.count() == 1 })
}

func TestCoordinatorSubscribe(t *testing.T) {
	f := startCoordinator(t)

	var mu sync.Mutex
	var modes []Mode
	f.c.Subscribe(func(s Snapshot) {
		mu.Lock()
		modes = append(modes, s.Mode)
		mu.Unlock()
	})

	if err := f.c.OpenFile(context.Background(), "tone.wav"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.c, "subscriber", func(Snapshot) bool {
		mu.Lock()
		defer mu.Unlock()
		return len(modes) > 0 && modes[len(modes)-1] == ModeLoadingFile
	})
}

func TestCoordinatorStopsWhenEventsClose(t *testing.T) {
	engine := newFakeEngine()
	sinks := sink.NewSet(nil, sink.NewSpectrographModel(4, 0, 100), sink.NewLevelMeterModel(0), sink.NewProgressModel())
	c := New(engine, sinks, Options{Clock: clock.NewMock()})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	engine.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil on closed event stream", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the event stream closed")
	}

	if err := c.OpenFile(context.Background(), "tone.wav"); !errors.Is(err, ErrStopped) {
		t.Errorf("OpenFile after stop = %v, want ErrStopped", err)
	}
	if err := c.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestCoordinatorDoHonoursContext(t *testing.T) {
	engine := newFakeEngine()
	sinks := sink.NewSet(nil, sink.NewSpectrographModel(4, 0, 100), sink.NewLevelMeterModel(0), sink.NewProgressModel())
	c := New(engine, sinks, Options{})

	// Run was never started, so the command is queued but never answered.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Reset(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Reset() = %v, want DeadlineExceeded", err)
	}
}

func TestCoordinatorSelectBar(t *testing.T) {
	f := startCoordinator(t)
	ctx := context.Background()
	waitFor(t, f.c, "bands configured", func(Snapshot) bool { return len(f.spectro.Bars()) == 20 })

	f.engine.events <- audio.SpectrumChanged{Spectrum: audio.FrequencySpectrum{{Frequency: 450, Amplitude: 0.5}}}
	waitFor(t, f.c, "spectrum", func(Snapshot) bool { return f.spectro.Bars()[4].Value == 0.5 })

	if err := f.c.SelectBar(ctx, 4); err != nil {
		t.Fatal(err)
	}
	s := waitFor(t, f.c, "bar info", func(s Snapshot) bool { return s.Status.Text == "400-500 Hz: 0.50" })
	if want := f.clock.Now().Add(barInfoTimeout); !s.Status.Expiry.Equal(want) {
		t.Errorf("bar info expiry = %v, want %v", s.Status.Expiry, want)
	}

	f.clock.Add(barInfoTimeout)
	waitFor(t, f.c, "bar info expired", func(s Snapshot) bool { return s.Status.Text == "" })

	for _, i := range []int{-1, 20} {
		if err := f.c.SelectBar(ctx, i); !errors.Is(err, ErrInvalidSelection) {
			t.Errorf("SelectBar(%d) = %v, want ErrInvalidSelection", i, err)
		}
	}
}

func TestCoordinatorSnapshotSource(t *testing.T) {
	f := startCoordinator(t)
	ctx := context.Background()

	if err := f.c.OpenFile(ctx, "/music/tone.wav"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.c, "source", func(s Snapshot) bool { return s.Source == "/music/tone.wav" })

	if err := f.c.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.c, "source cleared", func(s Snapshot) bool { return s.Source == "" && s.Mode == ModeIdle })
}

// lockedBuffer is a log output safe to read while the coordinator writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCoordinatorLogsStatusChanges(t *testing.T) {
	var out lockedBuffer
	log.SetOutput(&out)
	defer log.SetOutput(os.Stderr)
	level := log.GetLevel()
	log.SetLevel(log.LevelDebug)
	defer log.SetLevel(level)

	f := startCoordinator(t)
	if err := f.c.ShowStatus(context.Background(), "saved", 0); err != nil {
		t.Fatal(err)
	}
	f.clock.Add(time.Millisecond)
	waitFor(t, f.c, "zero timeout expiry", func(s Snapshot) bool {
		return s.Status.Text == "" && strings.Contains(out.String(), "status cleared")
	})
	if !strings.Contains(out.String(), "Analyser: status: saved") {
		t.Errorf("status change not logged:\n%s", out.String())
	}
}
