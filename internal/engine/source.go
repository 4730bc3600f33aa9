// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"spectrum/internal/audio"
)

// ErrUnsupportedFormat is returned for files that are not PCM WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

// Source is a decoded file held in memory as interleaved 16-bit PCM.
type Source struct {
	Path    string
	Format  audio.Format
	Samples []int16
}

// DataLength returns the size of the PCM data in bytes.
func (s *Source) DataLength() int64 {
	return int64(len(s.Samples)) * 2
}

// LoadWAV decodes an 8, 16, 24 or 32-bit integer PCM WAV file.
func LoadWAV(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrUnsupportedFormat)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV format tag %d is not PCM", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	shift, err := depthShift(int(d.BitDepth))
	if err != nil {
		return nil, err
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		if d.BitDepth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		if shift >= 0 {
			samples[i] = int16(v >> shift)
		} else {
			samples[i] = int16(v << -shift)
		}
	}

	return &Source{
		Path: path,
		Format: audio.Format{
			SampleRate: int(d.SampleRate),
			Channels:   int(d.NumChans),
			BitDepth:   16,
		},
		Samples: samples,
	}, nil
}

// depthShift returns the right shift that maps a sample of depth bits to
// 16 bits; negative values shift left.
func depthShift(depth int) (int, error) {
	switch depth {
	case 8:
		return -8, nil
	case 16:
		return 0, nil
	case 24:
		return 8, nil
	case 32:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, depth)
	}
}
