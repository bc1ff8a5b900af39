package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved packet types. Ping/Pong form the keepalive pair and are answered
// before the handler table is consulted. Error is only ever sent by the
// server, never accepted inbound.
const (
	PacketTypePing         = "ping"
	PacketTypePong         = "pong"
	PacketTypeError        = "error"
	PacketTypeNotification = "notification"
)

var (
	ErrPacketTypeRequired = errors.New("packet type is required")
)

// Packet is the wire unit exchanged over a socket and forwarded between
// instances. Data is an opaque payload decoded by the handler that owns
// the packet type. Endpoint optionally names a remote service to forward
// to when no local handler matches.
type Packet struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Endpoint     string          `json:"endpoint,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// DecodePacket parses one wire frame into a Packet.
func DecodePacket(data []byte) (*Packet, error) {
	var pkt Packet
	if err := json.Unmarshal(data, &pkt); err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	if pkt.Type == "" {
		return nil, ErrPacketTypeRequired
	}
	return &pkt, nil
}

// Encode serializes the packet for the wire.
func (p *Packet) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	return data, nil
}

// NewErrorPacket builds a protocol-error reply.
func NewErrorPacket(message string) *Packet {
	return &Packet{
		Type:         PacketTypeError,
		ErrorMessage: message,
	}
}

// NewUnprocessablePacket builds the reply for a packet whose type has no
// local handler and no resolvable endpoint.
func NewUnprocessablePacket(packetType string) *Packet {
	return NewErrorPacket("Unprocessable packet: " + packetType)
}

// NewNotificationPacket wraps a notification body for immediate in-band
// delivery to open sockets.
func NewNotificationPacket(n *Notification) (*Packet, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	return &Packet{Type: PacketTypeNotification, Data: body}, nil
}

// ForwardEnvelope carries a packet plus its sender identity across an
// instance boundary.
type ForwardEnvelope struct {
	AccountID int64   `json:"account_id"`
	DeviceID  string  `json:"device_id"`
	Packet    *Packet `json:"packet"`
}
