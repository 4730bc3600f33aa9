// SPDX-License-Identifier: MIT
/*
Package audio defines the vocabulary shared between the audio engine and the
analyser core: stream formats, frequency spectra, engine mode/state, the
event stream the engine emits and the command surface it accepts.

The package holds no behaviour beyond small value helpers so that both the
engine (producer) and the coordinator (consumer) can depend on it without
depending on each other.
*/
package audio

import (
	"fmt"
	"time"
)

// Format describes an interleaved PCM stream.
type Format struct {
	SampleRate int // Frames per second (Hz).
	Channels   int // Interleaved channel count.
	BitDepth   int // Bits per sample, 16 for everything the engine emits.
}

// IsZero reports whether f is the empty format, which the engine reports
// when a source could not be interpreted.
func (f Format) IsZero() bool {
	return f == Format{}
}

// BytesPerFrame returns the size of one frame (all channels).
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// BytesForDuration converts a duration into a frame-aligned byte length.
func (f Format) BytesForDuration(d time.Duration) int64 {
	bpf := int64(f.BytesPerFrame())
	if bpf == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return frames * bpf
}

// DurationForBytes converts a byte length into playback time.
func (f Format) DurationForBytes(n int64) time.Duration {
	bpf := int64(f.BytesPerFrame())
	if bpf == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := n / bpf
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// String renders the format for the status line, e.g. "44100 Hz, 1 channel".
// The empty format renders as an empty string.
func (f Format) String() string {
	if f.IsZero() {
		return ""
	}
	if f.Channels == 1 {
		return fmt.Sprintf("%d Hz, 1 channel", f.SampleRate)
	}
	return fmt.Sprintf("%d Hz, %d channels", f.SampleRate, f.Channels)
}

// SpectrumElement is one analysed frequency bin.
type SpectrumElement struct {
	Frequency float64 // Bin centre in Hz.
	Amplitude float64 // Normalised to [0, 1].
	Clipped   bool    // The input window contained a full-scale sample.
}

// FrequencySpectrum is the analysis of one window of the stream, ordered by
// ascending frequency. A nil or empty spectrum means "no data yet".
type FrequencySpectrum []SpectrumElement

// Mode is the direction of the engine's current stream.
type Mode int

const (
	Input  Mode = iota // Capturing from a device.
	Output             // Playing back a loaded source.
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// State is the engine's stream state.
type State int

const (
	Stopped   State = iota // No stream, or the stream ran to completion.
	Active                 // Data is flowing.
	Suspended              // Paused with a stream still open.
	Idle                   // Stream open but starved of data.
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Active:
		return "active"
	case Suspended:
		return "suspended"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// Streaming reports whether the state carries a meaningful ongoing stream.
func (s State) Streaming() bool {
	return s == Active || s == Suspended
}
