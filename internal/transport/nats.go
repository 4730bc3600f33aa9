// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"spectrum/internal/log"
)

// NATSConn is the part of *nats.Conn the transport uses.
type NATSConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSTransport publishes frames as JSON on a NATS subject.
type NATSTransport struct {
	conn    NATSConn
	subject string
}

// NewNATSTransport connects to the server at url.
func NewNATSTransport(url, subject string) (*NATSTransport, error) {
	nc, err := nats.Connect(url,
		nats.Name("spectrum"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATSTransport: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATSTransport: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Infof("NATSTransport: Connected to %s, publishing on %s", url, subject)
	return NewNATSTransportWithConn(nc, subject), nil
}

// NewNATSTransportWithConn publishes over an existing connection.
func NewNATSTransportWithConn(conn NATSConn, subject string) *NATSTransport {
	return &NATSTransport{conn: conn, subject: subject}
}

// Send publishes the frame.
func (t *NATSTransport) Send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return t.conn.Publish(t.subject, data)
}

// Close flushes pending frames and closes the connection.
func (t *NATSTransport) Close() error {
	return t.conn.Drain()
}

var _ Transport = (*NATSTransport)(nil)
