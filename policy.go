package outbox

import (
	"math/rand"
	"time"
)

// Action defines how a failed record should be handled.
type Action int

const (
	// RetryLater leaves the record pending for a later cycle.
	RetryLater Action = iota
	// DeadLetter permanently excludes the record from further attempts.
	DeadLetter
)

// Classifier decides whether a failure is retryable before the retry budget
// is consulted. Returning DeadLetter moves the record to the ignored state
// immediately, regardless of its retry count.
type Classifier func(record Record, err error) Action

const (
	// DefaultMaxRetries is the retry budget applied when none is configured.
	DefaultMaxRetries = 3

	defaultBackoffCap = 30 * time.Minute
	maxBackoffShift   = 16
)

// Policy decides, after a failed publish, whether a record is retried or
// dead-lettered, and how long to wait before reselecting it.
type Policy struct {
	// MaxRetries is the number of failed attempts after which a record is
	// dead-lettered. Zero or negative means DefaultMaxRetries.
	MaxRetries int
	// BackoffBase enables exponential backoff between attempts. Zero disables
	// the backoff gate in the readiness query.
	BackoffBase time.Duration
	// BackoffCap bounds the computed backoff. Zero means 30 minutes.
	BackoffCap time.Duration
	// Jitter randomizes the backoff to spread retries across relay instances.
	Jitter bool
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = defaultBackoffCap
	}

	return p
}

// Decide maps a post-failure retry count to the next action.
func (p Policy) Decide(retryCountAfterFailure int) Action {
	if retryCountAfterFailure >= p.withDefaults().MaxRetries {
		return DeadLetter
	}

	return RetryLater
}

// Backoff returns the minimum delay since the last failed attempt before the
// record becomes eligible again. Zero when backoff is disabled.
func (p Policy) Backoff(retryCount int) time.Duration {
	p = p.withDefaults()
	if p.BackoffBase <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > maxBackoffShift {
		retryCount = maxBackoffShift
	}

	d := p.BackoffBase << retryCount
	if d > p.BackoffCap || d <= 0 {
		d = p.BackoffCap
	}
	if p.Jitter {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}

	return d
}
