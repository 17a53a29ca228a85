// Package outbox implements the transactional outbox pattern: domain events
// are persisted in the same storage transaction as the business-state change
// that produced them, then relayed to a message broker at-least-once.
//
// Typical flow:
//  1. Within a business transaction, enqueue entries using a storage-specific
//     store (see the postgres and mysql packages).
//  2. Run a Relay with the store and a Publisher (see the kafka package) to
//     poll, publish, and record per-record outcomes.
//  3. On success the relay marks the record processed; on failure it
//     increments the retry count and dead-letters the record once the retry
//     budget is exhausted.
//
// Records sharing a partition key are published strictly in creation order;
// independent records proceed concurrently. All terminal state transitions
// are conditional updates, so any number of relay instances can share one
// table.
package outbox
