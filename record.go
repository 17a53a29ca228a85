package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is a stored outbox message together with its delivery bookkeeping.
//
// A record is created by the producer inside the business transaction and is
// mutated exclusively by the relay: ProcessedAt/TopicName on success,
// RetryCount/LastRetryAt/LastError on failure, IsIgnored when retries are
// exhausted. Records are never deleted by the relay; retention is handled by
// the sweeper.
type Record struct {
	ID            uuid.UUID
	EventType     string
	Content       json.RawMessage
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	TopicName     *string
	PartitionKey  *string
	RetryCount    int
	LastRetryAt   *time.Time
	LastError     *string
	IsIgnored     bool
	SchemaVersion int
	Metadata      *string
	ExpiresAt     *time.Time
}

// IsProcessed reports whether the record reached the processed terminal state.
func (r Record) IsProcessed() bool {
	return r.ProcessedAt != nil
}

// IsExpired reports whether the record's expiry has passed at now.
// Records without an expiry never expire.
func (r Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// ExceededMaxRetries reports whether the record used up the retry budget.
func (r Record) ExceededMaxRetries(threshold int) bool {
	return r.RetryCount >= threshold
}

// Key returns the partition key or the empty string when the record has none.
func (r Record) Key() string {
	if r.PartitionKey == nil {
		return ""
	}

	return *r.PartitionKey
}
