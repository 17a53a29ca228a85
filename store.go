package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FetchOptions parameterizes the readiness query. All context is explicit;
// stores hold no selection state of their own.
type FetchOptions struct {
	// BatchSize limits the number of returned records.
	BatchSize int
	// MaxRetries excludes records whose retry count reached this threshold.
	MaxRetries int
	// Now is the instant eligibility is evaluated at.
	Now time.Time
	// BackoffBase, when positive, additionally requires
	// now >= lastRetryAt + BackoffBase * 2^min(retryCount, 16).
	BackoffBase time.Duration
}

// Success records a confirmed publish for a single record.
type Success struct {
	ID uuid.UUID
	// Topic is the destination topic actually used.
	Topic string
	// At becomes the record's processedAt.
	At time.Time
}

// FailureReport records a failed publish attempt for a single record.
type FailureReport struct {
	ID uuid.UUID
	// Err is the failure description; stored truncated as lastError.
	Err error
	// At becomes the record's lastRetryAt.
	At time.Time
	// MaxRetries dead-letters the record when the post-increment retry count
	// reaches it.
	MaxRetries int
	// DeadLetter forces the ignored state regardless of the retry count.
	DeadLetter bool
}

// FailOutcome describes the state a failure update left the record in.
type FailOutcome struct {
	// Applied is false when the conditional update lost to a concurrent
	// terminal transition (benign no-op).
	Applied bool
	// RetryCount is the post-increment retry count.
	RetryCount int
	// Ignored reports whether the update dead-lettered the record.
	Ignored bool
}

// Store is the relay-facing storage contract. Every terminal transition is a
// conditional update keyed on "still pending" so concurrent relay instances
// cannot double-finalize a record.
type Store interface {
	// FetchPending returns eligible records ordered by ascending CreatedAt.
	// An empty result is a valid no-op, not an error. The read must not hold
	// locks that would block the producer's writes.
	FetchPending(ctx context.Context, opts FetchOptions) ([]Record, error)
	// MarkProcessed atomically sets processedAt and topicName and clears
	// lastError, provided the record is still pending. It reports false when
	// the conditional update lost the race.
	MarkProcessed(ctx context.Context, success Success) (bool, error)
	// MarkFailed atomically increments retryCount, sets lastRetryAt and
	// lastError, and flips isIgnored when the retry budget is exhausted or
	// the failure is non-retryable.
	MarkFailed(ctx context.Context, failure FailureReport) (FailOutcome, error)
}

// PendingCounter optionally reports the number of pending records.
type PendingCounter interface {
	// PendingCount returns the current number of pending records.
	PendingCount(ctx context.Context) (int, error)
}

// Sweeper moves expired pending records into the ignored terminal state.
// The relay itself never mutates expired records; sweeping is an
// administrative action.
type Sweeper interface {
	// SweepExpired ignores up to limit records whose expiry passed before now
	// and returns the number of records affected.
	SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// Purger deletes terminal records older than a cutoff.
type Purger interface {
	// Purge removes up to limit processed or ignored records older than
	// before and returns the number of rows deleted.
	Purge(ctx context.Context, before time.Time, limit int) (int64, error)
}
