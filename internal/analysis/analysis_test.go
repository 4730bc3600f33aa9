// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"spectrum/pkg/tone"
)

const (
	testSize       = 4096
	testSampleRate = 44100
)

// binFrequency returns the exact centre of bin i, so a test tone there has
// no scalloping loss.
func binFrequency(i int) float64 {
	return float64(i) * testSampleRate / testSize
}

func TestNewSpectrumAnalyserErrors(t *testing.T) {
	if _, err := NewSpectrumAnalyser(1000, testSampleRate, Hann); err == nil {
		t.Error("expected error for non power of 2 size")
	}
	if _, err := NewSpectrumAnalyser(1024, 0, Hann); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestAnalyseSine(t *testing.T) {
	a, err := NewSpectrumAnalyser(testSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	freq := binFrequency(41)
	s := a.Analyse(tone.SineWave(testSize, testSampleRate, freq, 0.5))

	if len(s) != testSize/2 {
		t.Fatalf("len = %d, want %d", len(s), testSize/2)
	}
	if got := PeakFrequency(s); got != freq {
		t.Errorf("peak at %.2f Hz, want %.2f Hz", got, freq)
	}
	if amp := s[40].Amplitude; math.Abs(amp-0.5) > 0.02 {
		t.Errorf("amplitude = %v, want about 0.5", amp)
	}
	if s[40].Clipped {
		t.Error("half-scale sine marked clipped")
	}
	if s[0].Frequency != binFrequency(1) {
		t.Errorf("first element %.2f Hz, want bin 1 (DC excluded)", s[0].Frequency)
	}
}

func TestAnalyseComplexWave(t *testing.T) {
	a, err := NewSpectrumAnalyser(testSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}
	s := a.Analyse(tone.ComplexWave(testSize, testSampleRate))

	// The fundamental dominates; its harmonics stand well above the floor.
	if got := PeakFrequency(s); math.Abs(got-440) > testSampleRate/testSize {
		t.Errorf("peak at %.1f Hz, want near 440 Hz", got)
	}
	harmonic := s[int(880*testSize/testSampleRate)-1].Amplitude
	floor := s[int(5000*testSize/testSampleRate)-1].Amplitude
	if harmonic < 10*floor {
		t.Errorf("880 Hz harmonic %v not above floor %v", harmonic, floor)
	}
}

func TestAnalyseClipsAndPads(t *testing.T) {
	a, err := NewSpectrumAnalyser(1024, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	// A square wave at full scale has a fundamental above 1.
	square := make([]float64, 1024)
	for i := range square {
		if (i/32)%2 == 0 {
			square[i] = 1
		} else {
			square[i] = -1
		}
	}
	clipped := false
	for _, e := range a.Analyse(square) {
		if e.Amplitude > 1 {
			t.Fatalf("amplitude %v not clamped", e.Amplitude)
		}
		clipped = clipped || e.Clipped
	}
	if !clipped {
		t.Error("full-scale square wave produced no clipped element")
	}

	// Short input is zero padded; silence yields a silent spectrum.
	for _, e := range a.Analyse(make([]float64, 10)) {
		if e.Amplitude != 0 {
			t.Fatalf("silence produced amplitude %v", e.Amplitude)
		}
	}

	// Long input keeps the most recent window.
	long := append(make([]float64, 2048), tone.SineWave(1024, testSampleRate, 4306.640625, 0.5)...)
	if got := PeakFrequency(a.Analyse(long)); got != 4306.640625 {
		t.Errorf("peak %.2f Hz, want the tail's tone", got)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"bartletthann", BartlettHann, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"hamming", Hamming, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.name, got, err)
			}
		})
	}
}

func TestApplyWindowUnknownDefaultsToHann(t *testing.T) {
	want := make([]float64, 64)
	got := make([]float64, 64)
	applyWindow(want, Hann)
	applyWindow(got, WindowFunc(99))
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("coeff %d = %v, want Hann %v", i, got[i], want[i])
		}
	}
}

func TestLevels(t *testing.T) {
	if rms, peak := Levels(nil); rms != 0 || peak != 0 {
		t.Errorf("Levels(nil) = %v, %v", rms, peak)
	}

	rms, peak := Levels(tone.SineWave(44100, 44100, 441, 0.8))
	if math.Abs(peak-0.8) > 1e-3 {
		t.Errorf("peak = %v, want 0.8", peak)
	}
	if want := 0.8 / math.Sqrt2; math.Abs(rms-want) > 1e-3 {
		t.Errorf("rms = %v, want %v", rms, want)
	}

	rms, peak = Levels([]float64{-1, 1, -1, 1})
	if rms != 1 || peak != 1 {
		t.Errorf("square levels = %v, %v", rms, peak)
	}
}

func TestConversions(t *testing.T) {
	buf := make([]float64, 4)
	got := Int16ToFloat(buf, []int16{0, 16384, -32768, 32767})
	if got[1] != 0.5 || got[2] != -1 {
		t.Errorf("Int16ToFloat = %v", got)
	}

	got = Int32ToFloat(buf, []int32{math.MinInt32, 1 << 30})
	if len(got) != 2 || got[0] != -1 || got[1] != 0.5 {
		t.Errorf("Int32ToFloat = %v", got)
	}

	mono := Downmix(make([]float64, 2), []float64{1, 0, 0.5, -0.5}, 2)
	if len(mono) != 2 || mono[0] != 0.5 || mono[1] != 0 {
		t.Errorf("Downmix = %v", mono)
	}

	b := Int16Bytes(make([]byte, 4), []int16{1, -2})
	if b[0] != 1 || b[1] != 0 || b[2] != 0xfe || b[3] != 0xff {
		t.Errorf("Int16Bytes = %x", b)
	}
}

func TestHotPathAllocations(t *testing.T) {
	src := make([]int16, 1024)
	dst := make([]float64, 1024)
	mono := make([]float64, 512)
	allocs := testing.AllocsPerRun(100, func() {
		f := Int16ToFloat(dst, src)
		Downmix(mono, f, 2)
		Levels(f)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations in the conversion path, got %.1f", allocs)
	}
}

func BenchmarkAnalyse(b *testing.B) {
	a, err := NewSpectrumAnalyser(testSize, testSampleRate, Hann)
	if err != nil {
		b.Fatal(err)
	}
	in := tone.ComplexWave(testSize, testSampleRate)
	for b.Loop() {
		a.Analyse(in)
	}
}
