package chat

import (
	"encoding/json"
	"strings"
)

const callPrefix = "call:"

// Frame is the wire schema in both directions: {"type": ..., "payload": ...}.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingPayload is the inbound payload of a "typing" frame. IsTyping is a
// pointer so a frame that omits the flag can be told apart from false.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       *bool  `json:"isTyping"`
}

// ParseFrame decodes an inbound frame. Callers treat failure as a
// keepalive, never as a protocol error.
func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, err
	}
	return f, nil
}

// EncodeFrame builds an outbound frame. payload may be any JSON-encodable
// value, including pre-encoded json.RawMessage.
func EncodeFrame(typ string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: typ, Payload: p})
}

// PongFrame is the canned keepalive reply for anything we don't handle.
func PongFrame() []byte {
	return []byte(`{"type":"pong"}`)
}

// IsCallSignal reports whether a frame type is call signaling
// (call:offer, call:ice, call:hangup, ...). Sub-types are opaque to the
// server; it relays them without interpreting.
func IsCallSignal(typ string) bool {
	return strings.HasPrefix(typ, callPrefix)
}
