// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ProtocolVersion is the envelope version this build speaks. The
// daemon rejects any message carrying a different version.
const ProtocolVersion = 1

// Payload type tags as they appear in the envelope's "type" field.
const (
	TypePermissionRequest = "permissionRequest"
	TypeNotification      = "notification"
	TypeStatusUpdate      = "statusUpdate"
	TypeHeartbeat         = "heartbeat"
)

// Payload is the closed set of message bodies an envelope can carry.
// The concrete types are PermissionRequestEvent, NotificationEvent,
// StatusUpdateEvent, Heartbeat, and Unknown.
type Payload interface {
	// PayloadType returns the wire tag for this payload.
	PayloadType() string

	isPayload()
}

// Message is the envelope sent by hook processes.
type Message struct {
	ProtocolVersion int
	Payload         Payload
}

// NewMessage wraps payload in an envelope stamped with ProtocolVersion.
func NewMessage(payload Payload) Message {
	return Message{ProtocolVersion: ProtocolVersion, Payload: payload}
}

// PermissionRequestEvent asks the user whether a tool invocation may
// proceed. RequestID is generated by the hook and echoed in the
// Response.
type PermissionRequestEvent struct {
	RequestID string    `json:"requestId"`
	SessionID string    `json:"sessionId"`
	ToolName  string    `json:"toolName"`
	ToolInput ToolInput `json:"toolInput"`
	Cwd       string    `json:"cwd"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationEvent is a fire-and-forget message for the user.
type NotificationEvent struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdateEvent carries the latest statusline snapshot for a
// session. Only the newest event per session is meaningful.
type StatusUpdateEvent struct {
	SessionID  string         `json:"sessionId"`
	Statusline StatuslineData `json:"statusline"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Heartbeat carries no data. The daemon closes the connection on
// receipt; hooks use it to probe liveness.
type Heartbeat struct{}

// Unknown is a payload whose tag this build does not recognize. Tag is
// the raw type string and Data the raw "data" value, if any.
type Unknown struct {
	Tag  string
	Data json.RawMessage
}

func (PermissionRequestEvent) PayloadType() string { return TypePermissionRequest }
func (NotificationEvent) PayloadType() string      { return TypeNotification }
func (StatusUpdateEvent) PayloadType() string      { return TypeStatusUpdate }
func (Heartbeat) PayloadType() string              { return TypeHeartbeat }
func (u Unknown) PayloadType() string              { return u.Tag }

func (PermissionRequestEvent) isPayload() {}
func (NotificationEvent) isPayload()      {}
func (StatusUpdateEvent) isPayload()      {}
func (Heartbeat) isPayload()              {}
func (Unknown) isPayload()                {}

// wireEnvelope and wirePayload are the JSON shapes of Message.
type wireEnvelope struct {
	ProtocolVersion int         `json:"protocolVersion"`
	Payload         wirePayload `json:"payload"`
}

type wirePayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the envelope as
// {"protocolVersion":N,"payload":{"type":T,"data":...}}. Heartbeat
// omits "data".
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, errors.New("ipcwire: message has no payload")
	}
	envelope := wireEnvelope{ProtocolVersion: m.ProtocolVersion}
	envelope.Payload.Type = m.Payload.PayloadType()

	switch payload := m.Payload.(type) {
	case Heartbeat:
	case Unknown:
		envelope.Payload.Data = payload.Data
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", envelope.Payload.Type, err)
		}
		envelope.Payload.Data = data
	}
	return json.Marshal(envelope)
}

// UnmarshalJSON decodes an envelope. Unrecognized payload tags decode
// into Unknown; a missing tag or a known tag with an undecodable body
// is an error.
func (m *Message) UnmarshalJSON(data []byte) error {
	var envelope wireEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if envelope.Payload.Type == "" {
		return errors.New("ipcwire: payload is missing its type tag")
	}

	payload, err := decodePayload(envelope.Payload)
	if err != nil {
		return err
	}
	m.ProtocolVersion = envelope.ProtocolVersion
	m.Payload = payload
	return nil
}

func decodePayload(wire wirePayload) (Payload, error) {
	switch wire.Type {
	case TypePermissionRequest:
		var event PermissionRequestEvent
		if err := decodeData(wire, &event); err != nil {
			return nil, err
		}
		return event, nil
	case TypeNotification:
		var event NotificationEvent
		if err := decodeData(wire, &event); err != nil {
			return nil, err
		}
		return event, nil
	case TypeStatusUpdate:
		var event StatusUpdateEvent
		if err := decodeData(wire, &event); err != nil {
			return nil, err
		}
		return event, nil
	case TypeHeartbeat:
		return Heartbeat{}, nil
	default:
		return Unknown{Tag: wire.Type, Data: wire.Data}, nil
	}
}

func decodeData(wire wirePayload, target any) error {
	if len(wire.Data) == 0 {
		return fmt.Errorf("ipcwire: %s payload is missing its data", wire.Type)
	}
	if err := json.Unmarshal(wire.Data, target); err != nil {
		return fmt.Errorf("ipcwire: decoding %s payload: %w", wire.Type, err)
	}
	return nil
}

// EncodeMessage marshals message to JSON and frames it. The result is
// ready to write to a connection as is.
func EncodeMessage(message Message) ([]byte, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(body), nil
}

// DecodeMessage parses a frame payload into a Message. The version is
// not checked here; see CheckVersion.
func DecodeMessage(payload []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		return Message{}, err
	}
	return message, nil
}

// ErrUnsupportedVersion is wrapped by CheckVersion.
var ErrUnsupportedVersion = errors.New("protocol version mismatch")

// CheckVersion returns an error wrapping ErrUnsupportedVersion if the
// message was produced by an incompatible protocol version.
func (m Message) CheckVersion() error {
	if m.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("%w: expected %d, got %d", ErrUnsupportedVersion, ProtocolVersion, m.ProtocolVersion)
	}
	return nil
}
