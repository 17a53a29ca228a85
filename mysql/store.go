package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/seqra/outbox"
)

const (
	maxErrorLen = 1024

	// sweepReason is stored as lastError when an expired record is ignored.
	sweepReason = "expired before publish"
)

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements a MySQL-backed outbox using snapshot reads and conditional
// updates.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ outbox.Store = (*Store)(nil)
var _ outbox.PendingCounter = (*Store)(nil)
var _ outbox.Sweeper = (*Store)(nil)
var _ outbox.Purger = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Enqueue inserts an outbox record using the provided executor (transaction
// preferred).
func (s *Store) Enqueue(ctx context.Context, exec Executor, entry outbox.Entry) (outbox.Record, error) {
	if exec == nil {
		return outbox.Record{}, ErrExecutorRequired
	}
	if err := entry.Validate(); err != nil {
		return outbox.Record{}, err
	}

	id := entry.ID
	if id == (uuid.UUID{}) {
		var err error
		id, err = uuid.NewV7()
		if err != nil {
			return outbox.Record{}, fmt.Errorf("outbox mysql: generate id failed: %w", err)
		}
	}

	rec := outbox.Record{
		ID:            id,
		EventType:     entry.EventType,
		Content:       entry.Content,
		CreatedAt:     s.cfg.Clock.Now(),
		SchemaVersion: entry.SchemaVersion,
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = 1
	}
	if entry.PartitionKey != "" {
		key := entry.PartitionKey
		rec.PartitionKey = &key
	}
	if entry.Metadata != "" {
		meta := entry.Metadata
		rec.Metadata = &meta
	}
	if !entry.ExpiresAt.IsZero() {
		expiry := entry.ExpiresAt
		rec.ExpiresAt = &expiry
	}

	var expiresAt any
	if rec.ExpiresAt != nil {
		expiresAt = *rec.ExpiresAt
	}

	_, err := exec.ExecContext(
		ctx,
		s.queries.insert,
		rec.ID.String(),
		rec.EventType,
		[]byte(rec.Content),
		rec.PartitionKey,
		rec.Metadata,
		rec.SchemaVersion,
		expiresAt,
		rec.CreatedAt,
	)
	if err != nil {
		return outbox.Record{}, fmt.Errorf("outbox mysql: insert failed: %w", err)
	}

	return rec, nil
}

// FetchPending returns eligible records ordered by ascending created_at. The
// read takes no row locks.
func (s *Store) FetchPending(ctx context.Context, opts outbox.FetchOptions) ([]outbox.Record, error) {
	if opts.BatchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = outbox.DefaultMaxRetries
	}
	now := opts.Now
	if now.IsZero() {
		now = s.cfg.Clock.Now()
	}

	var (
		rows *sql.Rows
		err  error
	)
	if opts.BackoffBase > 0 {
		rows, err = s.db.QueryContext(ctx, s.queries.selectPendingBackoff,
			now, maxRetries, now, opts.BackoffBase.Seconds(), opts.BatchSize)
	} else {
		rows, err = s.db.QueryContext(ctx, s.queries.selectPending, now, maxRetries, opts.BatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: select failed: %w", err)
	}
	defer rows.Close()

	records := make([]outbox.Record, 0, opts.BatchSize)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox mysql: rows failed: %w", err)
	}

	return records, nil
}

func scanRecord(rows *sql.Rows) (outbox.Record, error) {
	var (
		rec         outbox.Record
		content     []byte
		processedAt sql.NullTime
		topicName   sql.NullString
		key         sql.NullString
		lastRetryAt sql.NullTime
		lastError   sql.NullString
		metadata    sql.NullString
		expiresAt   sql.NullTime
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.EventType,
		&content,
		&rec.CreatedAt,
		&processedAt,
		&topicName,
		&key,
		&rec.RetryCount,
		&lastRetryAt,
		&lastError,
		&rec.IsIgnored,
		&rec.SchemaVersion,
		&metadata,
		&expiresAt,
	); err != nil {
		return outbox.Record{}, fmt.Errorf("outbox mysql: scan failed: %w", err)
	}

	rec.Content = content
	if processedAt.Valid {
		rec.ProcessedAt = &processedAt.Time
	}
	if topicName.Valid {
		rec.TopicName = &topicName.String
	}
	if key.Valid {
		rec.PartitionKey = &key.String
	}
	if lastRetryAt.Valid {
		rec.LastRetryAt = &lastRetryAt.Time
	}
	if lastError.Valid {
		rec.LastError = &lastError.String
	}
	if metadata.Valid {
		rec.Metadata = &metadata.String
	}
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}

	return rec, nil
}

// MarkProcessed finalizes the record if it is still pending. A zero-row
// update means another instance got there first.
func (s *Store) MarkProcessed(ctx context.Context, success outbox.Success) (bool, error) {
	if len(success.Topic) > outbox.MaxTopicNameLen {
		return false, outbox.ErrTopicNameTooLong
	}

	res, err := s.db.ExecContext(ctx, s.queries.markProcessed, success.At, success.Topic, success.ID.String())
	if err != nil {
		return false, fmt.Errorf("outbox mysql: mark processed failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox mysql: mark processed result failed: %w", err)
	}

	return affected == 1, nil
}

// MarkFailed increments the retry count, stores the failure and flips
// is_ignored when the budget is exhausted or the failure is non-retryable.
// The update and the state read-back run in one short transaction.
func (s *Store) MarkFailed(ctx context.Context, failure outbox.FailureReport) (outbox.FailOutcome, error) {
	maxRetries := failure.MaxRetries
	if maxRetries <= 0 {
		maxRetries = outbox.DefaultMaxRetries
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return outbox.FailOutcome{}, fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		s.queries.markFailed,
		failure.At,
		truncateError(failure.Err),
		failure.DeadLetter,
		maxRetries,
		failure.ID.String(),
	)
	if err != nil {
		rollbackErr := tx.Rollback()

		return outbox.FailOutcome{}, errors.Join(fmt.Errorf("outbox mysql: fail update failed: %w", err), rollbackErr)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		rollbackErr := tx.Rollback()

		return outbox.FailOutcome{}, errors.Join(fmt.Errorf("outbox mysql: fail result failed: %w", err), rollbackErr)
	}
	if affected == 0 {
		_ = tx.Rollback()

		return outbox.FailOutcome{}, nil
	}

	var outcome outbox.FailOutcome
	if err := tx.QueryRowContext(ctx, s.queries.selectOutcome, failure.ID.String()).
		Scan(&outcome.RetryCount, &outcome.Ignored); err != nil {
		rollbackErr := tx.Rollback()

		return outbox.FailOutcome{}, errors.Join(fmt.Errorf("outbox mysql: fail readback failed: %w", err), rollbackErr)
	}
	outcome.Applied = true

	if err := tx.Commit(); err != nil {
		return outbox.FailOutcome{}, fmt.Errorf("outbox mysql: fail commit failed: %w", err)
	}

	return outcome, nil
}

// PendingCount returns the number of pending outbox rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox mysql: pending count failed: %w", err)
	}

	return count, nil
}

// SweepExpired moves up to limit expired pending records into the ignored
// state, recording why.
func (s *Store) SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, ErrSweepLimitInvalid
	}

	res, err := s.db.ExecContext(ctx, s.queries.sweepExpired, sweepReason, now, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: sweep failed: %w", err)
	}

	return res.RowsAffected()
}

// Purge deletes up to limit terminal records created before the cutoff.
func (s *Store) Purge(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, ErrPurgeLimitInvalid
	}

	res, err := s.db.ExecContext(ctx, s.queries.purge, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: purge failed: %w", err)
	}

	return res.RowsAffected()
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	runes := []rune(msg)

	return string(runes[:maxErrorLen])
}
