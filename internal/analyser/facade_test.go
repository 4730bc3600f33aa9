// SPDX-License-Identifier: MIT
package analyser

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"spectrum/internal/audio"
)

func TestOpenFileEmptySelection(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 441000)
	h := f.session()
	f.router.Dispatch(audio.PlayPositionChanged{Header: h, Position: 100})
	f.router.Dispatch(audio.LevelChanged{Header: h, RMS: 0.1, Peak: 0.2, Channels: 1})

	modeBefore, sessionBefore := f.modes.Mode(), f.modes.Session()
	progressBefore, levelBefore := f.progress.State(), f.level.State()
	resetsBefore := f.engine.resets

	for _, path := range []string{"", "   "} {
		if err := f.facade.OpenFile(path); !errors.Is(err, ErrInvalidSelection) {
			t.Errorf("OpenFile(%q) = %v, want ErrInvalidSelection", path, err)
		}
	}

	if f.modes.Mode() != modeBefore || f.modes.Session() != sessionBefore {
		t.Error("empty selection changed mode or session")
	}
	if f.progress.State() != progressBefore || f.level.State() != levelBefore {
		t.Error("empty selection changed sinks")
	}
	if f.engine.resets != resetsBefore || len(f.engine.loads) != 1 {
		t.Errorf("engine commanded: resets=%d loads=%v", f.engine.resets, f.engine.loads)
	}
}

func TestOpenFileUnsupportedExtension(t *testing.T) {
	f := newFixture(t, true)

	for _, path := range []string{"song.mp3", "noext", "archive.wav.zip"} {
		err := f.facade.OpenFile(path)
		if !errors.Is(err, ErrUnsupportedFile) || !errors.Is(err, ErrInvalidSelection) {
			t.Errorf("OpenFile(%q) = %v, want ErrUnsupportedFile", path, err)
		}
	}
	if err := f.facade.OpenFile("LOUD.WAV"); err != nil {
		t.Errorf("upper-case extension rejected: %v", err)
	}
}

func TestOpenFileBusy(t *testing.T) {
	f := newFixture(t, true)
	if err := f.facade.OpenFile("a.wav"); err != nil {
		t.Fatal(err)
	}
	session := f.modes.Session()

	if err := f.facade.OpenFile("b.wav"); !errors.Is(err, ErrBusy) {
		t.Errorf("OpenFile while loading = %v, want ErrBusy", err)
	}
	if err := f.facade.StartCapture("rec.wav"); !errors.Is(err, ErrBusy) {
		t.Errorf("StartCapture while loading = %v, want ErrBusy", err)
	}
	if f.modes.Session() != session || len(f.engine.loads) != 1 {
		t.Error("refused open changed the session or reached the engine")
	}
}

func TestOpenFileIssuesLoad(t *testing.T) {
	f := newFixture(t, true)
	f.router.Dispatch(audio.LevelChanged{RMS: 0.5, Peak: 0.5, Channels: 1})

	if err := f.facade.OpenFile("tone.wav"); err != nil {
		t.Fatal(err)
	}

	if f.modes.Mode() != ModeLoadingFile {
		t.Errorf("mode = %s, want loading", f.modes.Mode())
	}
	if f.engine.resets != 1 {
		t.Errorf("engine resets = %d, want 1", f.engine.resets)
	}
	if len(f.engine.loads) != 1 || f.engine.loads[0] != "tone.wav" {
		t.Errorf("loads = %v", f.engine.loads)
	}
	if s := f.engine.lastSession(); s == uuid.Nil || s != f.modes.Session() {
		t.Errorf("load issued for session %v, current %v", s, f.modes.Session())
	}
	f.assertSinksZero(t)
}

func TestOpenFileEngineRejects(t *testing.T) {
	f := newFixture(t, true)
	f.engine.loadErr = audio.ErrEngineClosed

	err := f.facade.OpenFile("tone.wav")
	if !errors.Is(err, audio.ErrEngineClosed) {
		t.Fatalf("OpenFile = %v, want wrapped ErrEngineClosed", err)
	}
	if f.modes.Mode() != ModeIdle || f.modes.Session() != uuid.Nil {
		t.Errorf("rejected load left mode=%s session=%v", f.modes.Mode(), f.modes.Session())
	}
}

func TestLoadFailureLeavesAnalysisDisabled(t *testing.T) {
	f := newFixture(t, true)
	if err := f.facade.OpenFile("broken.wav"); err != nil {
		t.Fatal(err)
	}
	h := f.session()

	f.router.Dispatch(audio.ErrorMessage{Header: h, Heading: "Error", Detail: "invalid WAV header"})
	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped})

	if f.modes.Mode() != ModeIdle {
		t.Errorf("mode = %s, want idle", f.modes.Mode())
	}
	if f.modes.CanStartAnalysis() {
		t.Error("analysis enabled after a failed load")
	}
	if err := f.facade.StartAnalysis(); !errors.Is(err, ErrNotReady) {
		t.Errorf("StartAnalysis = %v, want ErrNotReady", err)
	}
	if f.engine.playbacks != 0 {
		t.Error("playback issued after a failed load")
	}
	if len(f.errors.headings) != 1 {
		t.Errorf("errors = %v", f.errors.headings)
	}
	if !f.modes.CanOpenFile() {
		t.Error("cannot open another file after a failed load")
	}
}

func TestStartAnalysisNotReady(t *testing.T) {
	f := newFixture(t, true)
	if err := f.facade.StartAnalysis(); !errors.Is(err, ErrNotReady) {
		t.Errorf("StartAnalysis before open = %v, want ErrNotReady", err)
	}
	if f.modes.Mode() != ModeIdle || f.engine.playbacks != 0 {
		t.Error("refused StartAnalysis changed state")
	}
}

func TestStartAnalysisEngineError(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 1000)
	f.engine.playErr = errors.New("device unavailable")

	if err := f.facade.StartAnalysis(); err == nil {
		t.Fatal("expected playback error")
	}
	if f.modes.Mode() != ModeIdle || !f.modes.CanStartAnalysis() {
		t.Error("failed playback left the analyser unable to retry")
	}
}

func TestStartAnalysisClearsBars(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 1000)
	f.router.Dispatch(audio.SpectrumChanged{Header: f.session(), Length: 10,
		Spectrum: audio.FrequencySpectrum{{Frequency: 50, Amplitude: 0.8}}})

	if err := f.facade.StartAnalysis(); err != nil {
		t.Fatal(err)
	}
	if f.spectro.Bars()[0].Value != 0 {
		t.Error("StartAnalysis did not clear the spectrograph bars")
	}
	if f.engine.playbacks != 1 || f.engine.lastSession() != f.modes.Session() {
		t.Error("playback not issued for the current session")
	}
}

func TestEndToEndToneAnalysis(t *testing.T) {
	f := newFixture(t, true)
	fiveSeconds := mono.BytesForDuration(5 * time.Second)
	hundredMillis := mono.BytesForDuration(100 * time.Millisecond)

	if f.modes.CanStartAnalysis() {
		t.Fatal("analysis enabled before any file was opened")
	}
	if err := f.facade.OpenFile("tone.wav"); err != nil {
		t.Fatal(err)
	}
	h := f.session()

	f.router.Dispatch(audio.FormatChanged{Header: h, Format: mono})
	if got := f.status.Current(); got.Text != "44100 Hz, 1 channel" || !got.Expiry.IsZero() {
		t.Fatalf("status = %+v", got)
	}
	f.router.Dispatch(audio.DataLengthChanged{Header: h, Length: fiveSeconds})
	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped})
	if !f.modes.CanStartAnalysis() {
		t.Fatal("analysis not enabled after a successful load")
	}

	if err := f.facade.StartAnalysis(); err != nil {
		t.Fatal(err)
	}
	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Active})
	if f.modes.Mode() != ModeAnalyzing || f.modes.CanStartAnalysis() {
		t.Fatalf("while playing: mode=%s canStart=%v", f.modes.Mode(), f.modes.CanStartAnalysis())
	}

	f.router.Dispatch(audio.SpectrumChanged{Header: h, Position: 0, Length: fiveSeconds,
		Spectrum: audio.FrequencySpectrum{{Frequency: 440, Amplitude: 0.7}}})
	f.router.Dispatch(audio.LevelChanged{Header: h, RMS: 0.5, Peak: 0.7, Channels: 1})
	f.router.Dispatch(audio.PlayPositionChanged{Header: h, Position: hundredMillis})

	st := f.progress.State()
	if st.WindowPosition != 0 || st.WindowLength != fiveSeconds {
		t.Errorf("window = (%d,%d), want (0,%d)", st.WindowPosition, st.WindowLength, fiveSeconds)
	}
	if st.PlayPosition != hundredMillis {
		t.Errorf("position = %d, want %d", st.PlayPosition, hundredMillis)
	}

	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped})
	if f.modes.Mode() != ModeIdle {
		t.Errorf("mode = %s, want idle", f.modes.Mode())
	}
	if st := f.level.State(); st.RMS != 0 || st.Peak != 0 {
		t.Errorf("level meter not reset: %+v", f.level.State())
	}
	for _, b := range f.spectro.Bars() {
		if b.Value != 0 {
			t.Errorf("spectrograph not reset: %+v", b)
		}
	}
	if !f.modes.CanStartAnalysis() {
		t.Error("analysis not re-enabled after playback finished")
	}
	if f.status.Text() != "44100 Hz, 1 channel" {
		t.Errorf("status = %q, format text should persist", f.status.Text())
	}
}

func TestResetBarrierStaleEventsAfterReset(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 441000)
	old := audio.Header{Session: f.modes.Session()}
	if err := f.facade.StartAnalysis(); err != nil {
		t.Fatal(err)
	}

	f.facade.Reset()

	// The engine had already queued these before it saw the reset.
	for _, ev := range []audio.Event{
		audio.StateChanged{Header: old, Mode: audio.Output, State: audio.Active},
		audio.FormatChanged{Header: old, Format: mono},
		audio.SpectrumChanged{Header: old, Length: 4096, Spectrum: audio.FrequencySpectrum{{Frequency: 100, Amplitude: 1}}},
		audio.BufferChanged{Header: old, Length: 64, Data: pcm(64)},
		audio.LevelChanged{Header: old, RMS: 1, Peak: 1, Channels: 1},
		audio.PlayPositionChanged{Header: old, Position: 4410},
		audio.RecordPositionChanged{Header: old, Position: 4410},
		audio.BufferLengthChanged{Header: old, Length: 1 << 20},
		audio.DataLengthChanged{Header: old, Length: 441000},
	} {
		f.router.Dispatch(ev)
	}

	f.assertSinksZero(t)
	if f.modes.Mode() != ModeIdle || f.modes.Loaded() {
		t.Errorf("stale events changed mode=%s loaded=%v", f.modes.Mode(), f.modes.Loaded())
	}
}

func TestResetBarrierStaleEventsBeforeReset(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 441000)
	h := f.session()
	if err := f.facade.StartAnalysis(); err != nil {
		t.Fatal(err)
	}

	// The engine drains the old stream before the reset is processed.
	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Active})
	f.router.Dispatch(audio.SpectrumChanged{Header: h, Length: 4096, Spectrum: audio.FrequencySpectrum{{Frequency: 100, Amplitude: 1}}})
	f.router.Dispatch(audio.BufferChanged{Header: h, Length: 64, Data: pcm(64)})
	f.router.Dispatch(audio.LevelChanged{Header: h, RMS: 1, Peak: 1, Channels: 1})
	f.router.Dispatch(audio.PlayPositionChanged{Header: h, Position: 4410})

	f.facade.Reset()

	f.assertSinksZero(t)
	if f.modes.Mode() != ModeIdle {
		t.Errorf("mode = %s, want idle", f.modes.Mode())
	}
}

func TestResetKeepsStatus(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 1000)

	f.facade.Reset()

	if f.status.Text() != "44100 Hz, 1 channel" {
		t.Errorf("Reset cleared status, got %q", f.status.Text())
	}
	if f.engine.resets != 2 {
		t.Errorf("engine resets = %d, want 2", f.engine.resets)
	}
}

func TestStartCapture(t *testing.T) {
	f := newFixture(t, true)

	if err := f.facade.StartCapture(""); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("StartCapture(\"\") = %v", err)
	}
	if err := f.facade.StartCapture("take.wav"); err != nil {
		t.Fatal(err)
	}
	if f.modes.Mode() != ModeAnalyzing {
		t.Errorf("mode = %s, want analyzing", f.modes.Mode())
	}
	if len(f.engine.captures) != 1 || f.engine.lastSession() != f.modes.Session() {
		t.Errorf("capture not issued for the current session: %v", f.engine.captures)
	}

	h := f.session()
	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Input, State: audio.Active})
	f.router.Dispatch(audio.RecordPositionChanged{Header: h, Position: 882})
	if f.progress.State().RecordPosition != 882 {
		t.Error("record position not routed")
	}

	f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Input, State: audio.Stopped})
	if f.modes.Mode() != ModeIdle {
		t.Errorf("mode = %s after capture stopped", f.modes.Mode())
	}
}

func TestSourceFollowsSession(t *testing.T) {
	f := newFixture(t, true)
	if f.facade.Source() != "" {
		t.Fatalf("initial source = %q", f.facade.Source())
	}

	f.loaded(t, "/music/tone.wav", 1000)
	if got := f.facade.Source(); got != "/music/tone.wav" {
		t.Errorf("source after open = %q", got)
	}

	if err := f.facade.OpenFile("song.mp3"); err == nil {
		t.Fatal("unsupported file accepted")
	}
	if got := f.facade.Source(); got != "/music/tone.wav" {
		t.Errorf("rejected selection replaced source with %q", got)
	}

	f.facade.Reset()
	if got := f.facade.Source(); got != "" {
		t.Errorf("source after reset = %q", got)
	}

	if err := f.facade.StartCapture("take.wav"); err != nil {
		t.Fatal(err)
	}
	if got := f.facade.Source(); got != "take.wav" {
		t.Errorf("source during capture = %q", got)
	}

	f.facade.Reset()
	f.engine.loadErr = audio.ErrEngineClosed
	if err := f.facade.OpenFile("tone.wav"); err == nil {
		t.Fatal("engine rejection not reported")
	}
	if got := f.facade.Source(); got != "" {
		t.Errorf("source after rejected load = %q", got)
	}
}

func TestSecondAnalysisRestartsWaveform(t *testing.T) {
	f := newFixture(t, true)
	f.loaded(t, "tone.wav", 1000)
	h := f.session()

	for pass := 0; pass < 2; pass++ {
		if err := f.facade.StartAnalysis(); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Active})
		f.router.Dispatch(audio.BufferChanged{Header: h, Position: 0, Length: 64, Data: pcm(64)})
		f.router.Dispatch(audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped})
	}

	if st := f.wave.State(); st.DataPosition != 0 || len(st.Samples) != 32 {
		t.Errorf("waveform after two passes: position %d, %d samples; want 0, 32", st.DataPosition, len(st.Samples))
	}
}
