package outbox

import "time"

// Clock supplies the relay's notion of now. Readiness checks, backoff windows
// and expiry all flow through it, so tests can substitute a fixed clock and
// drive those paths deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock; it reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
