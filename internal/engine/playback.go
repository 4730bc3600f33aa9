// SPDX-License-Identifier: MIT
package engine

import (
	"context"

	"github.com/google/uuid"

	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	"spectrum/internal/log"
)

// play writes src to a fresh output in NotifyInterval chunks. After each
// chunk it reports the play position, the chunk's PCM and levels, and the
// spectrum of the SpectrumLength frames ending at the play position.
func (e *Engine) play(ctx context.Context, session uuid.UUID, src *Source) {
	defer e.wg.Done()
	h := audio.Header{Session: session}

	analyser, err := analysis.NewSpectrumAnalyser(e.opts.Audio.SpectrumLength, float64(src.Format.SampleRate), e.window)
	if err != nil {
		e.fail(ctx, h, audio.Output, "Spectrum analyser", err)
		return
	}
	out, err := e.openOutput(src.Format)
	if err != nil {
		e.fail(ctx, h, audio.Output, "Audio output", err)
		return
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Warnf("Engine: closing output: %v", err)
		}
	}()

	e.mode.Store(int32(audio.Output))
	e.state.Store(int32(audio.Active))
	if !e.emit(ctx, audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Active}) {
		return
	}

	channels := src.Format.Channels
	chunk := int(float64(src.Format.SampleRate)*e.opts.Audio.NotifyInterval.Seconds()) * channels
	chunk = max(chunk, channels)
	window := analyser.Size() * channels

	levelBuf := make([]float64, chunk)
	windowBuf := make([]float64, window)
	mono := make([]float64, analyser.Size())

	log.Debugf("Engine: playing %s in %d-sample chunks", src.Path, chunk)

	for pos := 0; pos < len(src.Samples); {
		end := min(pos+chunk, len(src.Samples))
		samples := src.Samples[pos:end]
		if err := out.Write(ctx, samples); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.fail(ctx, h, audio.Output, "Audio output", err)
			return
		}

		rms, peak := analysis.Levels(analysis.Int16ToFloat(levelBuf, samples))

		start := end - min(end, window)
		f := analysis.Int16ToFloat(windowBuf, src.Samples[start:end])
		spectrum := analyser.Analyse(analysis.Downmix(mono, f, channels))

		ok := e.emitAll(ctx,
			audio.PlayPositionChanged{Header: h, Position: int64(end) * 2},
			audio.BufferChanged{
				Header:   h,
				Position: int64(pos) * 2,
				Length:   int64(len(samples)) * 2,
				Data:     analysis.Int16Bytes(make([]byte, 2*len(samples)), samples),
			},
			audio.LevelChanged{Header: h, RMS: rms, Peak: peak, Channels: channels},
			audio.SpectrumChanged{
				Header:   h,
				Position: int64(start) * 2,
				Length:   int64(end-start) * 2,
				Spectrum: spectrum,
			},
		)
		if !ok {
			return
		}
		pos = end
	}

	e.state.Store(int32(audio.Stopped))
	e.emit(ctx, audio.StateChanged{Header: h, Mode: audio.Output, State: audio.Stopped})
	log.Debugf("Engine: playback of %s complete", src.Path)
}
