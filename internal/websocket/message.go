// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"time"

	"github.com/goccy/go-json"
)

// MessageType identifies a frame on the wire.
type MessageType string

// Inbound message kinds (client -> server).
const (
	TypePing           MessageType = "ping"
	TypePartySync      MessageType = "party_sync"
	TypePartyChat      MessageType = "party_chat"
	TypePartyReaction  MessageType = "party_reaction"
	TypePresenceUpdate MessageType = "presence_update"
	TypeDMSend         MessageType = "dm_send"
	TypeDMTyping       MessageType = "dm_typing"
	TypeDMRead         MessageType = "dm_read"
)

// Outbound-only message kinds (server -> client).
const (
	TypePong        MessageType = "pong"
	TypeConnected   MessageType = "connected"
	TypeError       MessageType = "error"
	TypeRoomDeleted MessageType = "room_deleted"
	TypePartyState  MessageType = "party_state"
	TypePartyEnded  MessageType = "party_ended"
	TypeDMMessage   MessageType = "dm_message"
)

// inboundTypes is the closed set of kinds a client may send.
var inboundTypes = map[MessageType]struct{}{
	TypePing:           {},
	TypePartySync:      {},
	TypePartyChat:      {},
	TypePartyReaction:  {},
	TypePresenceUpdate: {},
	TypeDMSend:         {},
	TypeDMTyping:       {},
	TypeDMRead:         {},
}

// ParseInboundType resolves s to an inbound kind.
func ParseInboundType(s string) (MessageType, bool) {
	t := MessageType(s)
	_, ok := inboundTypes[t]
	return t, ok
}

// IsInbound reports whether clients may send this kind.
func (t MessageType) IsInbound() bool {
	_, ok := inboundTypes[t]
	return ok
}

// Message is an outbound frame. Fields are flattened next to "type" and
// "timestamp" when encoded:
//
//	{"type":"party_ended","timestamp":"...","party_id":"..."}
//
// Fields must not be modified after the message is handed to a send method.
type Message struct {
	Type      MessageType
	Timestamp time.Time
	Fields    map[string]interface{}
}

// NewMessage builds an outbound message without a timestamp; the send path stamps it.
func NewMessage(t MessageType, fields map[string]interface{}) Message {
	return Message{Type: t, Fields: fields}
}

// ErrorMessage builds an error frame.
func ErrorMessage(text string) Message {
	return NewMessage(TypeError, map[string]interface{}{"error": text})
}

// Get returns a field value.
func (m Message) Get(key string) interface{} {
	return m.Fields[key]
}

// MarshalJSON flattens Fields into the top-level object.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["type"] = m.Type
	if !m.Timestamp.IsZero() {
		out["timestamp"] = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

func (m Message) stamped(now time.Time) Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}

// Frame is a decoded inbound message.
type Frame struct {
	Type   MessageType
	Fields map[string]interface{}
}

// decodeFrame parses raw bytes into a Frame. ok is false when the payload is
// not a JSON object with a string "type".
func decodeFrame(data []byte) (frame Frame, typeName string, ok bool) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Frame{}, "", false
	}
	typeName, ok = fields["type"].(string)
	if !ok {
		return Frame{}, "", false
	}
	return Frame{Type: MessageType(typeName), Fields: fields}, typeName, true
}

// Str returns a string field or "".
func (f Frame) Str(key string) string {
	s, _ := f.Fields[key].(string)
	return s
}

// Float returns a numeric field.
func (f Frame) Float(key string) (float64, bool) {
	switch v := f.Fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool returns a boolean field and whether it was present.
func (f Frame) Bool(key string) (value, ok bool) {
	value, ok = f.Fields[key].(bool)
	return value, ok
}

// Map returns an object field or nil.
func (f Frame) Map(key string) map[string]interface{} {
	m, _ := f.Fields[key].(map[string]interface{})
	return m
}
