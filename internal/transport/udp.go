// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	"spectrum/internal/transport/udp"
)

// UDPTransport sends the spectrograph bars of each frame as a binary packet.
type UDPTransport struct {
	sender *udp.Sender

	mu          sync.Mutex
	sequenceNum uint32 // Monotonically increasing sequence number for packets.
	packet      []byte // Reusable packet buffer.
	magnitudes  []float32
}

// NewUDPTransport dials targetAddress ("host:port").
func NewUDPTransport(targetAddress string) (*UDPTransport, error) {
	sender, err := udp.NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{sender: sender}, nil
}

// Send packs and sends the frame's bars.
func (t *UDPTransport) Send(f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.magnitudes = t.magnitudes[:0]
	for _, v := range f.Bars {
		t.magnitudes = append(t.magnitudes, float32(v))
	}
	t.sequenceNum++

	var err error
	t.packet, err = udp.AppendPacket(t.packet[:0], udp.Packet{
		Sequence:   t.sequenceNum,
		Timestamp:  f.Timestamp,
		Magnitudes: t.magnitudes,
	})
	if err != nil {
		return err
	}
	return t.sender.Send(t.packet)
}

func (t *UDPTransport) Close() error { return t.sender.Close() }

var _ Transport = (*UDPTransport)(nil)
