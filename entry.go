package outbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxEventTypeLen is the longest accepted event type.
	MaxEventTypeLen = 100
	// MaxTopicNameLen is the longest accepted destination topic name.
	MaxTopicNameLen = 255
	// MaxPartitionKeyLen is the longest accepted partition key.
	MaxPartitionKeyLen = 500

	defaultSchemaVersion = 1
)

// Entry describes a new outbox record to be persisted. Stores enqueue an
// Entry inside the caller's storage transaction so the record is written
// atomically with the business-state change that produced it.
type Entry struct {
	// ID is optional; if zero, the store assigns a UUID v7.
	ID uuid.UUID
	// EventType names the logical payload type (e.g., "OrderCreated").
	EventType string
	// Content is the serialized event payload.
	Content json.RawMessage
	// PartitionKey orders delivery relative to other records sharing the key.
	// Empty means the record is independent.
	PartitionKey string
	// Metadata is optional free-form context (e.g., a correlation id).
	Metadata string
	// SchemaVersion supports payload evolution. Zero means version 1.
	SchemaVersion int
	// ExpiresAt, when non-zero, forbids publishing past that instant.
	ExpiresAt time.Time
}

// EntryOption customizes an entry built by NewEntry.
type EntryOption func(*Entry)

// WithEventType overrides the event type derived from the payload.
func WithEventType(eventType string) EntryOption {
	return func(e *Entry) {
		e.EventType = eventType
	}
}

// WithPartitionKey sets the partition key.
func WithPartitionKey(key string) EntryOption {
	return func(e *Entry) {
		e.PartitionKey = key
	}
}

// WithMetadata sets free-form metadata.
func WithMetadata(metadata string) EntryOption {
	return func(e *Entry) {
		e.Metadata = metadata
	}
}

// WithSchemaVersion sets the payload schema version.
func WithSchemaVersion(version int) EntryOption {
	return func(e *Entry) {
		e.SchemaVersion = version
	}
}

// WithExpiresAt sets the expiry instant.
func WithExpiresAt(at time.Time) EntryOption {
	return func(e *Entry) {
		e.ExpiresAt = at
	}
}

// WithEntryID sets an explicit record identifier.
func WithEntryID(id uuid.UUID) EntryOption {
	return func(e *Entry) {
		e.ID = id
	}
}

// NewEntry serializes payload to JSON and builds a validated Entry.
// The event type defaults to the payload's type name.
func NewEntry(payload any, opts ...EntryOption) (Entry, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("outbox: marshal payload: %w", err)
	}

	entry := Entry{
		EventType:     eventTypeOf(payload),
		Content:       content,
		SchemaVersion: defaultSchemaVersion,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}

	return entry, nil
}

// Validate checks required fields, length limits and JSON validity.
func (e Entry) Validate() error {
	if e.EventType == "" {
		return ErrEventTypeRequired
	}
	if len(e.EventType) > MaxEventTypeLen {
		return ErrEventTypeTooLong
	}
	if len(e.Content) == 0 {
		return ErrContentRequired
	}
	if !json.Valid(e.Content) {
		return ErrInvalidContent
	}
	if len(e.PartitionKey) > MaxPartitionKeyLen {
		return ErrPartitionKeyTooLong
	}
	if e.SchemaVersion < 0 {
		return ErrInvalidSchemaVersion
	}

	return nil
}

func eventTypeOf(payload any) string {
	t := reflect.TypeOf(payload)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}

	return t.Name()
}
