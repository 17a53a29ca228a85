package outbox

import (
	"testing"
	"time"
)

func TestRecordIsProcessed(t *testing.T) {
	var rec Record
	if rec.IsProcessed() {
		t.Fatalf("expected fresh record to be unprocessed")
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.ProcessedAt = &at
	if !rec.IsProcessed() {
		t.Fatalf("expected record with processedAt to be processed")
	}
}

func TestRecordIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var rec Record
	if rec.IsExpired(now) {
		t.Fatalf("record without expiry must never expire")
	}

	expiry := now
	rec.ExpiresAt = &expiry
	if rec.IsExpired(now) {
		t.Fatalf("expiry exactly at now must not count as expired")
	}
	if !rec.IsExpired(now.Add(time.Nanosecond)) {
		t.Fatalf("expected record to be expired after expiry")
	}
}

func TestRecordExceededMaxRetries(t *testing.T) {
	rec := Record{RetryCount: 2}
	if rec.ExceededMaxRetries(3) {
		t.Fatalf("retry count below threshold must not exceed")
	}
	rec.RetryCount = 3
	if !rec.ExceededMaxRetries(3) {
		t.Fatalf("retry count at threshold must exceed")
	}
}

func TestRecordKey(t *testing.T) {
	var rec Record
	if rec.Key() != "" {
		t.Fatalf("expected empty key for nil partition key")
	}
	key := "order-42"
	rec.PartitionKey = &key
	if rec.Key() != "order-42" {
		t.Fatalf("unexpected key: %s", rec.Key())
	}
}
