// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"errors"
	"runtime"

	"github.com/benbjohnson/clock"
	"github.com/gordonklaus/portaudio"

	"spectrum/internal/audio"
	"spectrum/internal/config"
)

// Output consumes interleaved 16-bit PCM at the stream's own pace. Write
// blocks until the samples have been handed to the device, or until ctx is
// done.
type Output interface {
	Write(ctx context.Context, samples []int16) error
	Close() error
}

// OutputFunc opens an Output for format.
type OutputFunc func(format audio.Format) (Output, error)

// Input is a running capture stream. *portaudio.Stream satisfies it.
type Input interface {
	Start() error
	Stop() error
	Close() error
}

// InputFunc opens a capture stream for format that calls callback from the
// audio thread with each buffer of interleaved 32-bit samples.
type InputFunc func(format audio.Format, callback func(in []int32)) (Input, error)

// NullOutput returns an OutputFunc whose outputs discard samples but take
// as long as real playback would, measured on clk.
func NullOutput(clk clock.Clock) OutputFunc {
	return func(format audio.Format) (Output, error) {
		return &nullOutput{clock: clk, format: format}, nil
	}
}

type nullOutput struct {
	clock  clock.Clock
	format audio.Format
}

func (o *nullOutput) Write(ctx context.Context, samples []int16) error {
	d := o.format.DurationForBytes(int64(len(samples)) * 2)
	t := o.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *nullOutput) Close() error { return nil }

// PortAudioOutput returns an OutputFunc that opens blocking PortAudio
// output streams on the configured device.
func PortAudioOutput(cfg config.AudioConfig) OutputFunc {
	return func(format audio.Format) (Output, error) {
		device, err := OutputDevice(cfg.OutputDevice)
		if err != nil {
			return nil, err
		}
		latency := device.DefaultHighOutputLatency
		if cfg.LowLatency {
			latency = device.DefaultLowOutputLatency
		}

		out := &paOutput{buffer: make([]int16, cfg.FramesPerBuffer*format.Channels)}
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Channels: 0, // No input device
				Device:   nil,
			},
			Output: portaudio.StreamDeviceParameters{
				Channels: format.Channels,
				Device:   device,
				Latency:  latency,
			},
			FramesPerBuffer: cfg.FramesPerBuffer,
			SampleRate:      float64(format.SampleRate),
		}

		stream, err := portaudio.OpenStream(params, &out.buffer)
		if err != nil {
			return nil, err
		}
		if err := stream.Start(); err != nil {
			stream.Close()
			return nil, err
		}
		out.stream = stream
		return out, nil
	}
}

type paOutput struct {
	stream *portaudio.Stream
	buffer []int16
}

func (o *paOutput) Write(ctx context.Context, samples []int16) error {
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(o.buffer, samples)
		clear(o.buffer[n:])
		if err := o.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

func (o *paOutput) Close() error {
	return errors.Join(o.stream.Stop(), o.stream.Close())
}

// PortAudioInput returns an InputFunc that opens callback-driven PortAudio
// capture streams on the configured device.
func PortAudioInput(cfg config.AudioConfig) InputFunc {
	return func(format audio.Format, callback func(in []int32)) (Input, error) {
		device, err := InputDevice(cfg.InputDevice)
		if err != nil {
			return nil, err
		}
		latency := device.DefaultHighInputLatency
		if cfg.LowLatency {
			latency = device.DefaultLowInputLatency
		}

		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Channels: format.Channels,
				Device:   device,
				Latency:  latency,
			},
			Output: portaudio.StreamDeviceParameters{
				Channels: 0, // No output device
				Device:   nil,
			},
			FramesPerBuffer: cfg.FramesPerBuffer,
			SampleRate:      float64(format.SampleRate),
		}

		stream, err := portaudio.OpenStream(params, func(in []int32) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			callback(in)
		})
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}
