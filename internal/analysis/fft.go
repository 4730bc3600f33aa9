// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"spectrum/internal/audio"
	"spectrum/internal/log"
	"spectrum/pkg/bitint"
)

// WindowFunc selects the FFT window function.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// SpectrumAnalyser turns windows of normalised samples into frequency
// spectra. It reuses its buffers and is not safe for concurrent use.
type SpectrumAnalyser struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64

	input  []float64    // Windowed, zero-padded input.
	coeffs []complex128 // size/2 + 1 complex results.
	window []float64    // Pre-calculated window coefficients.
	gain   float64      // Sum of window coefficients, for amplitude scaling.
}

// NewSpectrumAnalyser creates an analyser for size-point windows (a power of
// 2) of audio sampled at sampleRate.
func NewSpectrumAnalyser(size int, sampleRate float64, windowType WindowFunc) (*SpectrumAnalyser, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, size)
	applyWindow(coeffs, windowType)
	var gain float64
	for _, c := range coeffs {
		gain += c
	}

	log.Debugf("Analysis: spectrum analyser (size %d, %.0f Hz, %s window)", size, sampleRate, windowType)

	return &SpectrumAnalyser{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		window:     coeffs,
		gain:       gain,
	}, nil
}

// Size returns the number of points per window.
func (a *SpectrumAnalyser) Size() int { return a.size }

// FrequencyForBin returns the centre frequency (Hz) of bin i.
func (a *SpectrumAnalyser) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(a.coeffs) {
		return 0
	}
	return float64(i) * a.sampleRate / float64(a.size)
}

// Analyse computes the spectrum of samples, which must lie in [-1, 1].
// Shorter input is zero padded; longer input is truncated to the most recent
// Size samples. Amplitudes are scaled so that a full-scale sine reads 1; an
// element whose amplitude exceeds 1 is clamped and marked clipped.
//
// The returned spectrum is freshly allocated and excludes the DC bin.
func (a *SpectrumAnalyser) Analyse(samples []float64) audio.FrequencySpectrum {
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	for i := range a.input {
		if i < len(samples) {
			a.input[i] = samples[i] * a.window[i]
		} else {
			a.input[i] = 0
		}
	}

	a.fft.Coefficients(a.coeffs, a.input)

	spectrum := make(audio.FrequencySpectrum, len(a.coeffs)-1)
	scale := 2 / a.gain
	for i := 1; i < len(a.coeffs); i++ {
		amp := cmplx.Abs(a.coeffs[i]) * scale
		e := &spectrum[i-1]
		e.Frequency = a.FrequencyForBin(i)
		if amp > 1 {
			amp = 1
			e.Clipped = true
		}
		e.Amplitude = amp
	}
	return spectrum
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. Unknown
// names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window, Hann if unknown.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// Window functions multiply in place, so start from a rectangular window.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		log.Warnf("Analysis: unknown window function %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}

// PeakFrequency returns the frequency of the loudest element, or 0 for an
// empty spectrum.
func PeakFrequency(s audio.FrequencySpectrum) float64 {
	peak, freq := math.Inf(-1), 0.0
	for _, e := range s {
		if e.Amplitude > peak {
			peak, freq = e.Amplitude, e.Frequency
		}
	}
	return freq
}
