// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"spectrum/internal/audio"
)

// Recorder writes captured 32-bit samples to a WAV file at 16 or 32 bits.
// It is owned by the capture goroutine and is not safe for concurrent use.
type Recorder struct {
	path       string
	file       *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *goaudio.IntBuffer // Reusable buffer for format conversion
	shift      uint               // Right shift from 32 bits to the file depth.
	written    int64              // Bytes of PCM written to the file.
}

// NewRecorder creates path (and its directory) and writes a WAV header for
// format at bitDepth.
func NewRecorder(path string, format audio.Format, bitDepth int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 32 {
		return nil, fmt.Errorf("unsupported recording bit depth: %d", bitDepth)
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid recording format: %v", format)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		path:       path,
		file:       file,
		wavEncoder: wav.NewEncoder(file, format.SampleRate, bitDepth, format.Channels, 1),
		sampleBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			SourceBitDepth: bitDepth,
		},
		shift: uint(32 - bitDepth),
	}, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string { return r.path }

// Written returns the number of PCM bytes written so far.
func (r *Recorder) Written() int64 { return r.written }

// Write appends interleaved samples.
func (r *Recorder) Write(samples []int32) error {
	if r.wavEncoder == nil {
		return errors.New("recorder is closed")
	}
	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, sample := range samples {
		r.sampleBuf.Data[i] = int(sample >> r.shift)
	}
	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("error writing to WAV file: %w", err)
	}
	r.written += int64(len(samples)) * int64(32-r.shift) / 8
	return nil
}

// Close finalises the WAV header and closes the file. Closing twice is a
// no-op.
func (r *Recorder) Close() error {
	if r.wavEncoder == nil {
		return nil
	}
	encErr := r.wavEncoder.Close()
	r.wavEncoder = nil
	fileErr := r.file.Close()
	r.file = nil
	return errors.Join(encErr, fileErr)
}
