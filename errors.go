package outbox

import "errors"

var (
	// ErrEventTypeRequired is returned when Entry.EventType is empty and cannot be derived.
	ErrEventTypeRequired = errors.New("outbox event type is required")
	// ErrEventTypeTooLong is returned when Entry.EventType exceeds MaxEventTypeLen.
	ErrEventTypeTooLong = errors.New("outbox event type is too long")
	// ErrContentRequired is returned when Entry.Content is empty.
	ErrContentRequired = errors.New("outbox content is required")
	// ErrInvalidContent is returned when Entry.Content is not valid JSON.
	ErrInvalidContent = errors.New("outbox content must be valid JSON")
	// ErrPartitionKeyTooLong is returned when Entry.PartitionKey exceeds MaxPartitionKeyLen.
	ErrPartitionKeyTooLong = errors.New("outbox partition key is too long")
	// ErrInvalidSchemaVersion is returned when Entry.SchemaVersion is negative.
	ErrInvalidSchemaVersion = errors.New("outbox schema version must not be negative")
	// ErrTopicNameTooLong is returned when a destination topic exceeds MaxTopicNameLen.
	ErrTopicNameTooLong = errors.New("outbox topic name is too long")
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrInvalidMaxRetries indicates that the retry threshold is not positive.
	ErrInvalidMaxRetries = errors.New("outbox max retries must be positive")
	// ErrPublishPanic wraps a panic recovered from a Publisher call.
	ErrPublishPanic = errors.New("outbox publisher panic")
)
