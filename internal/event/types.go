// Package event provides the inbound webhook event envelope and the normalized
// notifications derived from it.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type represents the type of event posted by the upstream gateway. The set is
// open: the gateway may introduce new types at any time, so Type is a plain
// string rather than a closed enum.
type Type = string

const (
	// Message represents a message arrival event.
	Message Type = "message"
	// MessageAny represents a message arrival event including own messages.
	MessageAny Type = "message.any"
	// MessageAck represents a delivery/read acknowledgment event.
	MessageAck Type = "message.ack"
	// StateChange represents a session connectivity change event.
	StateChange Type = "state.change"
)

// WebhookEvent is a single inbound notification from the gateway. It is
// constructed by deserializing one HTTP request body, never mutated, and
// discarded once dispatch completes.
type WebhookEvent struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// Parse deserializes a raw webhook body into a WebhookEvent. The event type
// must be non-empty; the payload shape is opaque at this level and is decoded
// by the handler that claims the event.
func Parse(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("malformed webhook body: %w", err)
	}
	if ev.Event == "" {
		return nil, errors.New("webhook body is missing the event type")
	}
	return &ev, nil
}

// Notification is the flat, serialization-safe output of a handler. Ownership
// transfers to the emitter as soon as the handler produces it; nothing in the
// pipeline buffers notifications.
type Notification struct {
	Channel string            `json:"channel"`
	Session string            `json:"session"`
	Payload map[string]string `json:"payload"`
}

// MessagePayload is the payload shape of message arrival events.
type MessagePayload struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
	Body      string `json:"body"`
	HasMedia  bool   `json:"hasMedia"`
}

// ChatID returns the logical chat the message belongs to: the recipient when
// the monitored account sent it, the sender otherwise.
func (p *MessagePayload) ChatID() string {
	if p.FromMe {
		return p.To
	}
	return p.From
}

// AckPayload is the payload shape of delivery/read acknowledgment events.
type AckPayload struct {
	ID    string `json:"id"`
	Ack   int    `json:"ack"`
	From  string `json:"from"`
	To    string `json:"to"`
	AckAt int64  `json:"ackAt,omitempty"`
}

// StatePayload is the payload shape of session connectivity change events.
type StatePayload struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// AckName maps a gateway acknowledgment status code to its human-readable name.
func AckName(code int) string {
	switch code {
	case -1:
		return "ERROR"
	case 0:
		return "PENDING"
	case 1:
		return "SERVER"
	case 2:
		return "DEVICE"
	case 3:
		return "READ"
	case 4:
		return "PLAYED"
	default:
		return "UNKNOWN"
	}
}
