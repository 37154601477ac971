// ABOUTME: JSON wire messages exchanged with the downstream code consumer
// ABOUTME: Identify and new_code flow client to server; ack and pong flow back

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultClientType is the client_type announced in the identify message.
const DefaultClientType = "telegram_monitor"

// MessageType discriminates wire messages.
type MessageType string

const (
	TypeIdentify MessageType = "identify"
	TypeNewCode  MessageType = "new_code"
	TypeAck      MessageType = "ack"
	TypePong     MessageType = "pong"
	TypePing     MessageType = "ping"
)

// ErrMalformed is returned by Decode for payloads that are not a JSON object
// with a string type field.
var ErrMalformed = errors.New("malformed message")

// Identify is sent once, immediately after every successful connect.
type Identify struct {
	Type       MessageType `json:"type"`
	ClientType string      `json:"client_type"`
	ID         string      `json:"id"`
}

// NewIdentify builds an identify message.
func NewIdentify(clientType, clientID string) Identify {
	if clientType == "" {
		clientType = DefaultClientType
	}
	return Identify{Type: TypeIdentify, ClientType: clientType, ID: clientID}
}

// NewCode notifies the consumer of a freshly extracted code.
type NewCode struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
}

// NewCodeMessage builds a new_code message.
func NewCodeMessage(code string) NewCode {
	return NewCode{Type: TypeNewCode, Code: code}
}

// Ping is the optional client keepalive.
type Ping struct {
	Type MessageType `json:"type"`
}

// NewPing builds a ping message.
func NewPing() Ping {
	return Ping{Type: TypePing}
}

// Ack confirms receipt of a new_code. Sent by the consumer.
type Ack struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
}

// NewAck builds an ack message.
func NewAck(code string) Ack {
	return Ack{Type: TypeAck, Code: code}
}

// Pong answers a ping. Sent by the consumer.
type Pong struct {
	Type MessageType `json:"type"`
}

// NewPong builds a pong message.
func NewPong() Pong {
	return Pong{Type: TypePong}
}

// Envelope is the loose shape used to decode any message. Fields not
// relevant to Type are left empty.
type Envelope struct {
	Type       MessageType `json:"type"`
	Code       string      `json:"code,omitempty"`
	ClientType string      `json:"client_type,omitempty"`
	ID         string      `json:"id,omitempty"`
}

// Known reports whether the envelope carries a recognized type.
func (e Envelope) Known() bool {
	switch e.Type {
	case TypeIdentify, TypeNewCode, TypeAck, TypePong, TypePing:
		return true
	}
	return false
}

// Decode parses a raw frame into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Encode marshals a message for the wire.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

// Preview returns at most n bytes of a raw frame for logging.
func Preview(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
