// SPDX-License-Identifier: MIT
/*
Package analysis holds the DSP used by the bundled engine: PCM conversion,
RMS/peak levels and FFT spectra (gonum dsp/fourier).

Hot-path functions write into caller-supplied buffers and do not allocate,
except Analyse, whose result is handed to another goroutine.
*/
package analysis

import (
	"encoding/binary"
	"math"
)

const (
	int16Scale = 1.0 / 32768.0
	int32Scale = 1.0 / float64(0x80000000)
)

// Levels returns the RMS and peak of samples in [-1, 1].
func Levels(samples []float64) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return math.Sqrt(sum / float64(len(samples))), math.Min(peak, 1)
}

// Int16ToFloat converts interleaved 16-bit samples into dst, normalised to
// [-1, 1). dst must be at least len(src) long; the filled prefix is returned.
func Int16ToFloat(dst []float64, src []int16) []float64 {
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float64(s) * int16Scale
	}
	return dst
}

// Int32ToFloat converts interleaved 32-bit samples into dst.
func Int32ToFloat(dst []float64, src []int32) []float64 {
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float64(s) * int32Scale
	}
	return dst
}

// Downmix averages interleaved frames into one channel. dst must hold
// len(src)/channels samples.
func Downmix(dst, src []float64, channels int) []float64 {
	if channels <= 1 {
		return append(dst[:0], src...)
	}
	frames := len(src) / channels
	dst = dst[:frames]
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += src[f*channels+c]
		}
		dst[f] = sum / float64(channels)
	}
	return dst
}

// Int16Bytes encodes samples as little-endian 16-bit PCM into dst, which must
// be at least 2*len(samples) long.
func Int16Bytes(dst []byte, samples []int16) []byte {
	dst = dst[:2*len(samples)]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
	return dst
}
