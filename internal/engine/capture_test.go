// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
)

// 8 kHz mono with a 320ms limit holds exactly 2.5 buffers of 1024 frames.
func captureOptions(o *Options) {
	o.Audio.SampleRate = 8000
	o.Audio.InputChannels = 1
	o.Audio.FramesPerBuffer = 1024
	o.Audio.SpectrumLength = 1024
	o.Recording.MaxDuration = 320 * time.Millisecond
}

func sineBuffer(n int, freq, rate float64) []int32 {
	buf := make([]int32, n)
	for i := range buf {
		buf[i] = int32(0.5 * math.MaxInt32 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return buf
}

func TestCaptureRecordsUntilLimit(t *testing.T) {
	h := newHarness(t, captureOptions)
	path := filepath.Join(t.TempDir(), "rec", "capture.wav")
	session := uuid.New()

	if err := h.StartCapture(session, path); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("recording not created: %v", err)
	}
	if h.Mode() != audio.Input || h.State() != audio.Active {
		t.Errorf("mode/state = %v/%v", h.Mode(), h.State())
	}

	const limit = 2560 * 2
	want := []audio.Event{
		audio.FormatChanged{Header: audio.Header{Session: session}, Format: audio.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}},
		audio.BufferLengthChanged{Header: audio.Header{Session: session}, Length: limit},
		audio.StateChanged{Header: audio.Header{Session: session}, Mode: audio.Input, State: audio.Active},
	}
	for i, w := range want {
		if got := h.next(t); got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}

	buf := sineBuffer(1024, 1000, 8000)
	for range 3 {
		h.input.callback(buf)
	}
	evs := h.until(t, isState(audio.Input, audio.Stopped))

	var positions []int64
	var spectra int
	var last audio.SpectrumChanged
	for _, ev := range evs {
		switch ev := ev.(type) {
		case audio.RecordPositionChanged:
			positions = append(positions, ev.Position)
		case audio.SpectrumChanged:
			spectra++
			last = ev
		case audio.LevelChanged:
			if math.Abs(ev.Peak-0.5) > 0.01 {
				t.Errorf("peak = %v, want about 0.5", ev.Peak)
			}
		}
	}
	if want := []int64{2048, 4096, limit}; len(positions) != 3 || positions[0] != want[0] || positions[1] != want[1] || positions[2] != want[2] {
		t.Errorf("positions = %v, want %v", positions, want)
	}
	if spectra != 3 {
		t.Errorf("got %d spectra, want 3", spectra)
	}
	if last.Position+last.Length != limit || last.Length != 2048 {
		t.Errorf("last spectrum window [%d, +%d)", last.Position, last.Length)
	}
	if f := analysis.PeakFrequency(last.Spectrum); math.Abs(f-1000) > 8 {
		t.Errorf("spectrum peak at %.1f Hz, want near 1000", f)
	}

	info, ok := h.next(t).(audio.InfoMessage)
	if !ok || !strings.Contains(info.Text, path) || info.Timeout <= 0 {
		t.Errorf("final event = %+v, want timed InfoMessage naming the file", info)
	}

	if _, stopped, closed := h.input.lifecycle(); !stopped || !closed {
		t.Errorf("input stopped=%v closed=%v", stopped, closed)
	}
	d := readWAV(t, path)
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm.Data) != 2560 {
		t.Errorf("recorded %d samples, want 2560", len(pcm.Data))
	}
}

func TestCaptureGateSuppressesSpectrum(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		captureOptions(o)
		o.Audio.GateThreshold = 0.1
	})
	session := uuid.New()
	if err := h.StartCapture(session, filepath.Join(t.TempDir(), "quiet.wav")); err != nil {
		t.Fatal(err)
	}
	h.until(t, isState(audio.Input, audio.Active))

	h.input.callback(make([]int32, 1024))
	evs := h.until(t, func(ev audio.Event) bool {
		_, ok := ev.(audio.LevelChanged)
		return ok
	})
	for _, ev := range evs {
		if lc, ok := ev.(audio.LevelChanged); ok && (lc.RMS != 0 || lc.Peak != 0) {
			t.Errorf("silence level = %+v", lc)
		}
	}
	h.expectQuiet(t)

	h.Reset()
	if _, stopped, closed := h.input.lifecycle(); !stopped || !closed {
		t.Errorf("Reset left input stopped=%v closed=%v", stopped, closed)
	}
	if h.State() != audio.Stopped {
		t.Errorf("State() = %v after Reset", h.State())
	}
}

func TestCaptureDropsWhenNoBufferFree(t *testing.T) {
	c := &captureSession{
		free:   make(chan []int32, 1),
		filled: make(chan []int32, 1),
	}
	c.free <- make([]int32, 4)
	c.callback([]int32{1, 2, 3, 4, 5, 6})
	c.callback([]int32{1})

	if got := <-c.filled; len(got) != 4 {
		t.Errorf("filled buffer len = %d, want 4 (clipped to capacity)", len(got))
	}
	if c.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", c.dropped.Load())
	}
}

func TestStartCaptureFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		mutate func(*Options)
		path   string
	}{
		{"Input open fails", func(o *Options) {
			captureOptions(o)
			o.OpenInput = func(audio.Format, func([]int32)) (Input, error) {
				return nil, errors.New("no input device")
			}
		}, filepath.Join(dir, "a.wav")},
		{"Bad bit depth", func(o *Options) {
			captureOptions(o)
			o.Recording.BitDepth = 24
		}, filepath.Join(dir, "b.wav")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mutate)
			if err := h.StartCapture(uuid.New(), tt.path); err == nil {
				t.Fatal("expected error")
			}
			if _, err := os.Stat(tt.path); !os.IsNotExist(err) {
				t.Errorf("recording left behind: %v", err)
			}
			if h.State() == audio.Active {
				t.Error("engine active after failed capture")
			}
			h.expectQuiet(t)
		})
	}
}
