package outbox

import (
	"sort"
	"time"
)

// Eligible reports whether rec may be attempted under opts. It is the
// canonical readiness predicate; SQL backends implement the same semantics in
// their SELECTs and the relay re-checks it between fetch and attempt.
//
// A record is eligible when it is not processed, not ignored, not expired at
// opts.Now, below the retry threshold, and past its backoff window.
func Eligible(rec Record, opts FetchOptions) bool {
	if rec.IsProcessed() || rec.IsIgnored {
		return false
	}
	if rec.IsExpired(opts.Now) {
		return false
	}
	if rec.ExceededMaxRetries(opts.MaxRetries) {
		return false
	}

	return backoffElapsed(rec, opts.Now, opts.BackoffBase)
}

// SelectReady filters records through Eligible, orders them by ascending
// CreatedAt and truncates to opts.BatchSize. It never mutates its input.
func SelectReady(records []Record, opts FetchOptions) []Record {
	ready := make([]Record, 0, len(records))
	for _, rec := range records {
		if Eligible(rec, opts) {
			ready = append(ready, rec)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	if opts.BatchSize > 0 && len(ready) > opts.BatchSize {
		ready = ready[:opts.BatchSize]
	}

	return ready
}

func backoffElapsed(rec Record, now time.Time, base time.Duration) bool {
	if base <= 0 || rec.LastRetryAt == nil {
		return true
	}

	shift := rec.RetryCount
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	return !now.Before(rec.LastRetryAt.Add(base << shift))
}
