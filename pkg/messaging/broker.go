package messaging

import (
	"context"
	"encoding/json"
	"time"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
	Close() error
}

// Message is the envelope every broker carries. Key groups messages that must
// stay ordered, which for the ledger is the booking or provider id.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
