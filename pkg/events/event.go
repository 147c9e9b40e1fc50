package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event defines the contract for realtime events pushed to a user channel.
type Event interface {
	// EventType returns the channel event name (e.g., "new-message").
	EventType() string

	// Channel returns the per-user channel the event is addressed to.
	Channel() string

	// Payload returns the data associated with the event.
	Payload() any

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// ChannelEvent is the concrete Event used across the publisher, the relay and
// the websocket hub.
type ChannelEvent struct {
	Type       string    `json:"type"`
	Target     string    `json:"target"`
	UserID     string    `json:"user_id"`
	Data       any       `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e ChannelEvent) EventType() string {
	return e.Type
}

func (e ChannelEvent) Channel() string {
	return e.Target
}

func (e ChannelEvent) Payload() any {
	return e.Data
}

func (e ChannelEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Envelope is what travels on the wire: the event name plus its raw payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var ErrMalformedEnvelope = errors.New("malformed channel envelope")

// Encode serializes e into a channel envelope.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if string(data) == "null" {
		data = []byte("{}")
	}
	return json.Marshal(Envelope{Event: e.EventType(), Data: data})
}

// Decode parses a channel envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("{}")
	}
	return env, nil
}
