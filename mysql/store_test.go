package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/seqra/outbox"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeExecutor struct {
	query string
	args  []any
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	return fakeResult{}, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	return &Store{
		cfg:     Config{Clock: fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}}.withDefaults(),
		queries: newQueries("outbox"),
		table:   "outbox",
	}
}

func TestStoreEnqueueAssignsID(t *testing.T) {
	store := newTestStore(t)
	exec := &fakeExecutor{}

	rec, err := store.Enqueue(context.Background(), exec, outbox.Entry{
		EventType: "OrderCreated",
		Content:   json.RawMessage(`{"id":1}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec.ID == (uuid.UUID{}) {
		t.Fatalf("expected generated id")
	}
	if rec.ID.Version() != 7 {
		t.Fatalf("expected UUID v7, got v%d", rec.ID.Version())
	}
	if exec.query == "" {
		t.Fatalf("expected query to be executed")
	}
	if len(exec.args) != 8 {
		t.Fatalf("expected 8 args, got %d", len(exec.args))
	}
	if exec.args[0] != rec.ID.String() {
		t.Fatalf("expected string-encoded id, got %v", exec.args[0])
	}
}

func TestStoreEnqueueKeepsExplicitID(t *testing.T) {
	store := newTestStore(t)
	exec := &fakeExecutor{}
	id := uuid.New()

	rec, err := store.Enqueue(context.Background(), exec, outbox.Entry{
		ID:        id,
		EventType: "OrderCreated",
		Content:   json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec.ID != id {
		t.Fatalf("expected explicit id to be kept")
	}
}

func TestStoreEnqueueRequiresExecutor(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Enqueue(context.Background(), nil, outbox.Entry{
		EventType: "OrderCreated",
		Content:   json.RawMessage(`{}`),
	})
	if !errors.Is(err, ErrExecutorRequired) {
		t.Fatalf("expected ErrExecutorRequired, got %v", err)
	}
}

func TestStoreEnqueueValidates(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Enqueue(context.Background(), &fakeExecutor{}, outbox.Entry{
		Content: json.RawMessage(`{}`),
	})
	if !errors.Is(err, outbox.ErrEventTypeRequired) {
		t.Fatalf("expected ErrEventTypeRequired, got %v", err)
	}
}

func TestStoreMarkProcessedRejectsOversizedTopic(t *testing.T) {
	store := newTestStore(t)

	_, err := store.MarkProcessed(context.Background(), outbox.Success{
		ID:    uuid.New(),
		Topic: strings.Repeat("t", outbox.MaxTopicNameLen+1),
	})
	if !errors.Is(err, outbox.ErrTopicNameTooLong) {
		t.Fatalf("expected ErrTopicNameTooLong, got %v", err)
	}
}

func TestNewStoreRejectsBadTable(t *testing.T) {
	if _, err := NewStore(&sql.DB{}, WithTable("bad table")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}

func TestQueriesAreConditionalOnPendingState(t *testing.T) {
	q := newQueries("outbox")

	if !strings.Contains(q.markProcessed, "processed_at IS NULL AND is_ignored = FALSE") {
		t.Fatalf("markProcessed must be conditional on pending state: %s", q.markProcessed)
	}
	if !strings.Contains(q.markFailed, "cur.processed_at IS NULL AND cur.is_ignored = FALSE") {
		t.Fatalf("markFailed must be conditional on pending state: %s", q.markFailed)
	}
}

func TestMarkFailedReadsPreUpdateRetryCount(t *testing.T) {
	q := newQueries("outbox")

	// A single-table UPDATE would evaluate the dead-letter expression
	// against the already incremented counter and flip records one attempt
	// early. The query must join the pre-update row and derive both the
	// increment and the threshold from it.
	if !strings.Contains(q.markFailed, "JOIN outbox AS prev ON prev.id = cur.id") {
		t.Fatalf("markFailed must self-join the pre-update row: %s", q.markFailed)
	}
	if !strings.Contains(q.markFailed, "cur.retry_count = prev.retry_count + 1") {
		t.Fatalf("markFailed must increment from the pre-update counter: %s", q.markFailed)
	}
	if !strings.Contains(q.markFailed, "prev.retry_count + 1 >= ?") {
		t.Fatalf("markFailed must compare the pre-update counter against the limit: %s", q.markFailed)
	}
}

func TestBackoffQueryGatesOnLastRetry(t *testing.T) {
	q := newQueries("outbox")
	if !strings.Contains(q.selectPendingBackoff, "POW(2, LEAST(retry_count, 16))") {
		t.Fatalf("expected exponential gate in backoff query: %s", q.selectPendingBackoff)
	}
}

func TestTruncateError(t *testing.T) {
	if got := truncateError(nil); got != "" {
		t.Fatalf("expected empty string for nil error, got %q", got)
	}

	long := errors.New(strings.Repeat("э", maxErrorLen+1))
	got := truncateError(long)
	if count := len([]rune(got)); count != maxErrorLen {
		t.Fatalf("expected %d runes, got %d", maxErrorLen, count)
	}
}

func TestSanitizeTableName(t *testing.T) {
	if _, err := sanitizeTableName("app.outbox"); err != nil {
		t.Fatalf("expected dotted name to be valid: %v", err)
	}
	if _, err := sanitizeTableName("outbox; DROP"); err == nil {
		t.Fatalf("expected injection attempt to be rejected")
	}
}

func TestSchemaUsesMicrosecondTimestamps(t *testing.T) {
	schema, err := Schema("outbox")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(schema, "DATETIME(6)") {
		t.Fatalf("expected DATETIME(6) columns:\n%s", schema)
	}
}
