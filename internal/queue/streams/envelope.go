package streams

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventAgentMessage is the event type of a raw protocol message on a stream.
const (
	EventAgentMessage = "agent.message"
	VersionV1         = "v1"
)

// Envelope is the wrapper persisted to Redis Streams.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Attempt        int             `json:"attempt"`
	PayloadVersion string          `json:"payload_version"`
	Data           json.RawMessage `json:"data"`
}

// MessagePayload is the data of an agent.message event.
type MessagePayload struct {
	Body string `json:"body"`
}

// NewMessageEnvelope wraps a raw protocol message.
func NewMessageEnvelope(body string) (Envelope, error) {
	data, err := json.Marshal(MessagePayload{Body: body})
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal message payload: %w", err)
	}
	return Envelope{
		EventType:      EventAgentMessage,
		PayloadVersion: VersionV1,
		Data:           data,
	}, nil
}

// Body returns the raw protocol message carried by an agent.message envelope.
func (e Envelope) Body() (string, error) {
	if e.EventType != EventAgentMessage {
		return "", fmt.Errorf("event %s is not an %s", e.EventID, EventAgentMessage)
	}
	var p MessagePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return "", fmt.Errorf("unmarshal message payload: %w", err)
	}
	return p.Body, nil
}

// ValidateBasic checks the mandatory envelope fields.
func (e *Envelope) ValidateBasic() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("event_id is required")
	case e.EventType == "":
		return fmt.Errorf("event_type is required")
	case e.PayloadVersion == "":
		return fmt.Errorf("payload_version is required")
	case e.Attempt < 0:
		return fmt.Errorf("attempt must be >= 0")
	case len(e.Data) == 0:
		return fmt.Errorf("data payload is required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}

// Marshal returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope parses and validates an encoded envelope.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}
