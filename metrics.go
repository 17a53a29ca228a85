package outbox

import "time"

// Metrics captures relay-level telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time spent on one poll cycle.
	ObserveCycleDuration(duration time.Duration)
	// AddPublished increments the count of successfully published records.
	AddPublished(count int)
	// AddRetried increments the count of failed attempts left retryable.
	AddRetried(count int)
	// AddDeadLettered increments the count of records moved to the ignored state.
	AddDeadLettered(count int)
	// AddConflicts increments the count of lost conditional updates.
	AddConflicts(count int)
	// SetPending updates the current pending record count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(time.Duration) {}

// AddPublished implements Metrics.
func (NopMetrics) AddPublished(int) {}

// AddRetried implements Metrics.
func (NopMetrics) AddRetried(int) {}

// AddDeadLettered implements Metrics.
func (NopMetrics) AddDeadLettered(int) {}

// AddConflicts implements Metrics.
func (NopMetrics) AddConflicts(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
