// SPDX-License-Identifier: MIT
package sink

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"spectrum/internal/audio"
)

// WaveformState is a copy of a WaveformModel.
type WaveformState struct {
	Format       audio.Format
	TileLength   int64
	WindowLength int64   // Bytes of PCM kept around the position.
	Position     int64   // Current audio position.
	DataPosition int64   // Stream offset of Samples[0], in bytes.
	Samples      []int16 // First channel only, oldest first.
}

// WaveformModel keeps the most recent window of PCM for display.
type WaveformModel struct {
	mu    sync.RWMutex
	state WaveformState
}

func NewWaveformModel() *WaveformModel { return &WaveformModel{} }

func (w *WaveformModel) Initialize(format audio.Format, tileLength int64, windowDuration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = WaveformState{
		Format:       format,
		TileLength:   tileLength,
		WindowLength: format.BytesForDuration(windowDuration),
	}
}

// BufferChanged appends data to the window, restarting it when position
// moves backwards. Data that is not 16-bit PCM, or that arrives before
// Initialize, is ignored.
func (w *WaveformModel) BufferChanged(position, length int64, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := w.state.Format
	bpf := f.BytesPerFrame()
	if len(data) == 0 || bpf == 0 || f.BitDepth != 16 {
		return
	}
	if n := int64(len(data)); length > n || length <= 0 {
		length = n
	}

	frames := int(length) / bpf
	// A buffer starting before the end of the held data belongs to a new
	// pass over the stream.
	end := w.state.DataPosition + int64(len(w.state.Samples)*bpf)
	if len(w.state.Samples) == 0 || position < end {
		w.state.Samples = w.state.Samples[:0]
		w.state.DataPosition = position
	}
	for i := 0; i < frames; i++ {
		off := i * bpf
		w.state.Samples = append(w.state.Samples, int16(binary.LittleEndian.Uint16(data[off:])))
	}

	if maxFrames := int(w.state.WindowLength) / bpf; maxFrames > 0 && len(w.state.Samples) > maxFrames {
		drop := len(w.state.Samples) - maxFrames
		w.state.Samples = append(w.state.Samples[:0], w.state.Samples[drop:]...)
		w.state.DataPosition += int64(drop * bpf)
	}
}

func (w *WaveformModel) AudioPositionChanged(position int64) {
	w.mu.Lock()
	w.state.Position = position
	w.mu.Unlock()
}

// Reset forgets the format and all data. Initialize must be called again
// before buffers are accepted.
func (w *WaveformModel) Reset() {
	w.mu.Lock()
	w.state = WaveformState{}
	w.mu.Unlock()
}

func (w *WaveformModel) State() WaveformState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.state
	s.Samples = append([]int16(nil), w.state.Samples...)
	return s
}

// Bar is one spectrograph band.
type Bar struct {
	LowHz   float64
	HighHz  float64
	Value   float64 // Loudest amplitude in the band, [0, 1].
	Clipped bool
}

func (b Bar) String() string {
	s := fmt.Sprintf("%.0f-%.0f Hz: %.2f", b.LowHz, b.HighHz, b.Value)
	if b.Clipped {
		s += " (clipped)"
	}
	return s
}

// SpectrographModel folds spectra into a fixed number of bands spread
// linearly over [lowFreq, highFreq).
type SpectrographModel struct {
	mu       sync.RWMutex
	lowFreq  float64
	highFreq float64
	bars     []Bar
}

func NewSpectrographModel(bands int, lowFreq, highFreq float64) *SpectrographModel {
	s := &SpectrographModel{}
	s.SetParams(bands, lowFreq, highFreq)
	return s
}

func (s *SpectrographModel) SetParams(bands int, lowFreq, highFreq float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bands < 1 || highFreq <= lowFreq {
		return
	}
	s.lowFreq, s.highFreq = lowFreq, highFreq
	width := (highFreq - lowFreq) / float64(bands)
	s.bars = make([]Bar, bands)
	for i := range s.bars {
		s.bars[i].LowHz = lowFreq + float64(i)*width
		s.bars[i].HighHz = s.bars[i].LowHz + width
	}
}

// SpectrumChanged replaces the bar values with the given spectrum. An empty
// spectrum is "no data yet" and leaves the bars as they are.
func (s *SpectrographModel) SpectrumChanged(spectrum audio.FrequencySpectrum) {
	if len(spectrum) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bars) == 0 {
		return
	}
	s.clear()

	width := (s.highFreq - s.lowFreq) / float64(len(s.bars))
	for _, e := range spectrum {
		if e.Frequency < s.lowFreq || e.Frequency >= s.highFreq {
			continue
		}
		i := int((e.Frequency - s.lowFreq) / width)
		if i >= len(s.bars) {
			i = len(s.bars) - 1
		}
		b := &s.bars[i]
		b.Value = math.Max(b.Value, math.Min(1, math.Max(0, e.Amplitude)))
		b.Clipped = b.Clipped || e.Clipped
	}
}

func (s *SpectrographModel) ClearBars() {
	s.mu.Lock()
	s.clear()
	s.mu.Unlock()
}

func (s *SpectrographModel) Reset() { s.ClearBars() }

func (s *SpectrographModel) clear() {
	for i := range s.bars {
		s.bars[i].Value = 0
		s.bars[i].Clipped = false
	}
}

// Bar returns band i.
func (s *SpectrographModel) Bar(i int) (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.bars) {
		return Bar{}, false
	}
	return s.bars[i], true
}

func (s *SpectrographModel) Bars() []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bar(nil), s.bars...)
}

// LevelState is a copy of a LevelMeterModel.
type LevelState struct {
	RMS      float64
	Peak     float64
	PeakHold float64 // Decaying maximum of Peak.
	Channels int
}

// LevelMeterModel holds the latest levels and a decaying peak hold.
type LevelMeterModel struct {
	mu    sync.RWMutex
	decay float64
	state LevelState
}

// NewLevelMeterModel creates a meter whose peak hold is multiplied by decay
// on every update. decay is clamped to [0, 1].
func NewLevelMeterModel(decay float64) *LevelMeterModel {
	return &LevelMeterModel{decay: math.Min(1, math.Max(0, decay))}
}

// DecayFactor converts a peak-hold decay time into the per-update factor for
// updates arriving every interval. The hold falls to 1/e after decay.
func DecayFactor(interval, decay time.Duration) float64 {
	if interval <= 0 || decay <= 0 {
		return 0
	}
	return math.Exp(-float64(interval) / float64(decay))
}

func (l *LevelMeterModel) LevelChanged(rms, peak float64, channels int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.RMS = rms
	l.state.Peak = peak
	l.state.Channels = channels
	l.state.PeakHold = math.Max(peak, l.state.PeakHold*l.decay)
}

func (l *LevelMeterModel) Reset() {
	l.mu.Lock()
	l.state = LevelState{}
	l.mu.Unlock()
}

func (l *LevelMeterModel) State() LevelState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// ProgressState is a copy of a ProgressModel.
type ProgressState struct {
	BufferLength   int64
	RecordPosition int64
	PlayPosition   int64
	WindowPosition int64
	WindowLength   int64
}

// Fraction returns how far playback (or recording, when nothing plays) has
// progressed through the buffer, in [0, 1].
func (p ProgressState) Fraction() float64 {
	if p.BufferLength <= 0 {
		return 0
	}
	pos := p.PlayPosition
	if pos == 0 {
		pos = p.RecordPosition
	}
	return math.Min(1, float64(pos)/float64(p.BufferLength))
}

// ProgressModel tracks positions within the engine's buffer.
type ProgressModel struct {
	mu    sync.RWMutex
	state ProgressState
}

func NewProgressModel() *ProgressModel { return &ProgressModel{} }

func (p *ProgressModel) BufferLengthChanged(length int64) {
	p.mu.Lock()
	p.state.BufferLength = length
	p.mu.Unlock()
}

func (p *ProgressModel) RecordPositionChanged(position int64) {
	p.mu.Lock()
	p.state.RecordPosition = position
	p.mu.Unlock()
}

func (p *ProgressModel) PlayPositionChanged(position int64) {
	p.mu.Lock()
	p.state.PlayPosition = position
	p.mu.Unlock()
}

func (p *ProgressModel) WindowChanged(position, length int64) {
	p.mu.Lock()
	p.state.WindowPosition = position
	p.state.WindowLength = length
	p.mu.Unlock()
}

func (p *ProgressModel) Reset() {
	p.mu.Lock()
	p.state = ProgressState{}
	p.mu.Unlock()
}

func (p *ProgressModel) State() ProgressState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}
