// SPDX-License-Identifier: MIT
/*
Package tone generates test signals: sine tones, linear sweeps and
harmonic-rich waves, as float samples or as 16-bit WAV files.
*/
package tone

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Tone describes a generated signal. When EndFrequency is non-zero the
// frequency sweeps linearly from Frequency to EndFrequency.
type Tone struct {
	Frequency    float64       // Start frequency (Hz).
	EndFrequency float64       // End of sweep (Hz); 0 for a fixed tone.
	Amplitude    float64       // Peak amplitude in (0, 1].
	Duration     time.Duration // Signal length.
	SampleRate   int           // Frames per second.
	Channels     int           // Every channel carries the same signal.
}

// Default is a five second 440 Hz mono tone at 44.1 kHz.
func Default() Tone {
	return Tone{
		Frequency:  440,
		Amplitude:  0.5,
		Duration:   5 * time.Second,
		SampleRate: 44100,
		Channels:   1,
	}
}

func (t Tone) Validate() error {
	if t.SampleRate <= 0 || t.Channels <= 0 {
		return errors.New("tone: sample rate and channels must be positive")
	}
	nyquist := float64(t.SampleRate) / 2
	if t.Frequency <= 0 || t.Frequency >= nyquist {
		return fmt.Errorf("tone: frequency %.1f Hz outside (0, %.0f)", t.Frequency, nyquist)
	}
	if t.EndFrequency < 0 || t.EndFrequency >= nyquist {
		return fmt.Errorf("tone: end frequency %.1f Hz outside [0, %.0f)", t.EndFrequency, nyquist)
	}
	if t.Amplitude <= 0 || t.Amplitude > 1 {
		return fmt.Errorf("tone: amplitude %.2f outside (0, 1]", t.Amplitude)
	}
	if t.Duration < 0 {
		return errors.New("tone: negative duration")
	}
	return nil
}

// Frames returns the number of frames in the signal.
func (t Tone) Frames() int {
	return int(int64(t.Duration) * int64(t.SampleRate) / int64(time.Second))
}

// Samples returns the mono signal in [-Amplitude, Amplitude].
func (t Tone) Samples() []float64 {
	n := t.Frames()
	out := make([]float64, n)
	rate := float64(t.SampleRate)
	var phase float64
	for i := range out {
		f := t.Frequency
		if t.EndFrequency > 0 && n > 1 {
			f += (t.EndFrequency - t.Frequency) * float64(i) / float64(n-1)
		}
		out[i] = t.Amplitude * math.Sin(phase)
		// Accumulating phase keeps the sweep continuous.
		phase += 2 * math.Pi * f / rate
	}
	return out
}

// Write encodes the tone as 16-bit PCM WAV.
func (t Tone) Write(w io.WriteSeeker) error {
	if err := t.Validate(); err != nil {
		return err
	}

	mono := t.Samples()
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: t.Channels, SampleRate: t.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(mono)*t.Channels),
	}
	for i, s := range mono {
		v := int(math.Round(s * math.MaxInt16))
		for c := 0; c < t.Channels; c++ {
			buf.Data[i*t.Channels+c] = v
		}
	}

	enc := wav.NewEncoder(w, t.SampleRate, 16, t.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("tone: failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("tone: failed to finalise WAV: %w", err)
	}
	return nil
}

// WriteFile writes the tone to path as a WAV file.
func (t Tone) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SineWave returns size samples of a sine at frequency, scaled by amplitude.
func SineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*tm)
	}
	return buffer
}

// ComplexWave returns a 440 Hz fundamental with its second and third
// harmonics at 0.5, 0.3 and 0.2 of full scale.
func ComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
	}
	return buffer
}
