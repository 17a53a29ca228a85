package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Message is the unit handed to a Publisher.
type Message struct {
	ID            uuid.UUID
	Topic         string
	PartitionKey  string
	Payload       json.RawMessage
	EventType     string
	Metadata      string
	SchemaVersion int
}

// Publisher delivers a message to the broker. Implementations must be safe to
// call concurrently for different partition keys and must treat every call as
// fire-once; duplicate suppression is the consumer's responsibility.
type Publisher interface {
	// Publish delivers msg or returns the failure reason.
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

// Publish implements Publisher.
func (fn PublisherFunc) Publish(ctx context.Context, msg Message) error {
	return fn(ctx, msg)
}
