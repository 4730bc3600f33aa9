// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	"spectrum/internal/log"
)

const (
	captureBuffers = 16 // Buffers in flight between the callback and the session goroutine.

	savedMessageTimeout = 5 * time.Second
)

// captureSession owns one input stream and its recording. Buffers cycle
// between free and filled so that the audio callback never allocates.
type captureSession struct {
	format   audio.Format
	size     int // Samples per buffer.
	input    Input
	recorder *Recorder

	free    chan []int32
	filled  chan []int32
	dropped atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// newCapture creates the recording and starts the input stream. On error
// nothing is left open and the file is removed.
func (e *Engine) newCapture(path string) (*captureSession, error) {
	format := e.captureFormat()
	rec, err := NewRecorder(path, format, e.opts.Recording.BitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	c := &captureSession{
		format:   format,
		size:     max(e.opts.Audio.FramesPerBuffer, 1) * format.Channels,
		recorder: rec,
		free:     make(chan []int32, captureBuffers),
		filled:   make(chan []int32, captureBuffers),
	}
	for range captureBuffers {
		c.free <- make([]int32, c.size)
	}

	abort := func(err error) (*captureSession, error) {
		rec.Close()
		os.Remove(path)
		return nil, err
	}

	in, err := e.openInput(format, c.callback)
	if err != nil {
		return abort(fmt.Errorf("failed to open input: %w", err))
	}
	if err := in.Start(); err != nil {
		in.Close()
		return abort(fmt.Errorf("failed to start input: %w", err))
	}
	c.input = in
	return c, nil
}

// callback is the core audio capture callback.
// Performance Critical:
// - Uses pre-allocated buffers only
// - Never blocks: a buffer is dropped when the session goroutine lags
func (c *captureSession) callback(in []int32) {
	select {
	case buf := <-c.free:
		n := copy(buf[:cap(buf)], in)
		// filled has room for every buffer, so this send never blocks.
		c.filled <- buf[:n]
	default:
		c.dropped.Add(1)
	}
}

// close stops the stream and finalises the recording.
func (c *captureSession) close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.input != nil {
			errs = append(errs, c.input.Stop(), c.input.Close())
		}
		errs = append(errs, c.recorder.Close())
		c.closeErr = errors.Join(errs...)
		if n := c.dropped.Load(); n > 0 {
			log.Warnf("Engine: capture dropped %d buffers", n)
		}
	})
	return c.closeErr
}

// capture drains the input stream until MaxDuration of audio has been
// recorded or the session is stopped.
func (e *Engine) capture(ctx context.Context, session uuid.UUID, c *captureSession) {
	defer e.wg.Done()
	defer func() {
		if err := c.close(); err != nil {
			log.Warnf("Engine: closing capture: %v", err)
		}
	}()
	h := audio.Header{Session: session}

	analyser, err := analysis.NewSpectrumAnalyser(e.opts.Audio.SpectrumLength, float64(c.format.SampleRate), e.window)
	if err != nil {
		e.fail(ctx, h, audio.Input, "Spectrum analyser", err)
		return
	}

	limit := c.format.BytesForDuration(e.opts.Recording.MaxDuration)
	e.bufferLength.Store(limit)
	if !e.emitAll(ctx,
		audio.FormatChanged{Header: h, Format: c.format},
		audio.BufferLengthChanged{Header: h, Length: limit},
		audio.StateChanged{Header: h, Mode: audio.Input, State: audio.Active},
	) {
		return
	}
	log.Infof("Engine: recording %s to %s", c.format, c.recorder.Path())

	channels := c.format.Channels
	bytesPerFrame := int64(c.format.BytesPerFrame())
	floats := make([]float64, c.size)
	mono := make([]float64, c.size/channels)
	pcm := make([]int16, c.size)
	history := make([]float64, analyser.Size())
	var frames, pos int64

	for pos < limit {
		var buf []int32
		select {
		case <-ctx.Done():
			return
		case buf = <-c.filled:
		}

		// Never record past the limit.
		if remaining := (limit - pos) / 2; int64(len(buf)) > remaining {
			buf = buf[:remaining-remaining%int64(channels)]
		}
		if err := c.recorder.Write(buf); err != nil {
			c.free <- buf
			e.fail(ctx, h, audio.Input, "Recording", err)
			return
		}

		for i, s := range buf {
			pcm[i] = int16(s >> 16)
		}
		prev := pos
		pos += int64(len(buf)) * 2

		f := analysis.Int32ToFloat(floats, buf)
		rms, peak := analysis.Levels(f)
		m := analysis.Downmix(mono, f, channels)
		frames += int64(len(m))
		pushHistory(history, m)
		open := e.gate.Open(buf)
		c.free <- buf

		evs := []audio.Event{
			audio.RecordPositionChanged{Header: h, Position: pos},
			audio.BufferChanged{
				Header:   h,
				Position: prev,
				Length:   pos - prev,
				Data:     analysis.Int16Bytes(make([]byte, 2*len(buf)), pcm[:len(buf)]),
			},
			audio.LevelChanged{Header: h, RMS: rms, Peak: peak, Channels: channels},
		}
		if open {
			length := min(frames, int64(len(history))) * bytesPerFrame
			evs = append(evs, audio.SpectrumChanged{
				Header:   h,
				Position: pos - length,
				Length:   length,
				Spectrum: analyser.Analyse(history[len(history)-int(length/bytesPerFrame):]),
			})
		}
		if !e.emitAll(ctx, evs...) {
			return
		}
	}

	if err := c.close(); err != nil {
		e.fail(ctx, h, audio.Input, "Recording", err)
		return
	}
	e.state.Store(int32(audio.Stopped))
	e.emitAll(ctx,
		audio.StateChanged{Header: h, Mode: audio.Input, State: audio.Stopped},
		audio.InfoMessage{Header: h, Text: "Recording saved to " + c.recorder.Path(), Timeout: savedMessageTimeout},
	)
}

// pushHistory shifts m into the end of history.
func pushHistory(history, m []float64) {
	if len(m) >= len(history) {
		copy(history, m[len(m)-len(history):])
		return
	}
	copy(history, history[len(m):])
	copy(history[len(history)-len(m):], m)
}
