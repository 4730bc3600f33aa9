// SPDX-License-Identifier: MIT
/*
Package udp sends spectrum packets over UDP.

Packet Structure (BigEndian)

	+-----------------------------------------------------------------------------+
	| Field             | Data Type      | Size (Bytes) | Description             |
	|-------------------|----------------|--------------|-------------------------|
	| Sequence Number   | uint32         | 4            | Monotonically increasing|
	| Timestamp         | int64          | 8            | Nanoseconds since epoch |
	| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
	| Magnitudes        | []float32      | N * 4        | Spectrograph bar values |
	+-----------------------------------------------------------------------------+
*/
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the number of bytes before the magnitudes.
const HeaderSize = 4 + 8 + 2

// Packet is one decoded spectrum packet.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Magnitudes []float32
}

// AppendPacket encodes p onto dst and returns the extended slice.
func AppendPacket(dst []byte, p Packet) ([]byte, error) {
	if len(p.Magnitudes) > math.MaxUint16 {
		return dst, fmt.Errorf("too many magnitudes: %d", len(p.Magnitudes))
	}
	dst = binary.BigEndian.AppendUint32(dst, p.Sequence)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(p.Magnitudes)))
	for _, m := range p.Magnitudes {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(m))
	}
	return dst, nil
}

// ParsePacket decodes a packet produced by AppendPacket.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, errors.New("packet too short")
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+4*n {
		return Packet{}, fmt.Errorf("packet length %d does not match %d magnitudes", len(b), n)
	}
	p.Magnitudes = make([]float32, n)
	for i := range p.Magnitudes {
		off := HeaderSize + 4*i
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off : off+4]))
	}
	return p, nil
}
