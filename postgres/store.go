package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seqra/outbox"
)

const (
	maxErrorLen = 1024

	// sweepReason is stored as lastError when an expired record is ignored.
	sweepReason = "expired before publish"
)

// Executor allows enqueuing within an existing transaction. It is satisfied
// by pgx.Tx, *pgx.Conn and *pgxpool.Pool.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is the handle the store reads and updates through, satisfied by
// *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements a PostgreSQL-backed outbox using snapshot reads and
// conditional updates.
type Store struct {
	db      DB
	cfg     Config
	queries queries
	table   string
}

var _ outbox.Store = (*Store)(nil)
var _ outbox.PendingCounter = (*Store)(nil)
var _ outbox.Sweeper = (*Store)(nil)
var _ outbox.Purger = (*Store)(nil)

// NewStore constructs a PostgreSQL store with validated configuration.
func NewStore(db DB, opts ...Option) (*Store, error) {
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

// MustNewStore constructs a PostgreSQL store or panics on error.
func MustNewStore(db DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Enqueue inserts an outbox record using the provided executor. Pass the
// producer's transaction so the record commits atomically with the business
// change that produced it.
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
			return outbox.Record{}, fmt.Errorf("outbox postgres: generate id failed: %w", err)
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

	_, err := exec.Exec(
		ctx,
		s.queries.insert,
		rec.ID,
		rec.EventType,
		rec.Content,
		rec.PartitionKey,
		rec.Metadata,
		rec.SchemaVersion,
		rec.ExpiresAt,
		rec.CreatedAt,
	)
	if err != nil {
		return outbox.Record{}, fmt.Errorf("outbox postgres: insert failed: %w", err)
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
		rows pgx.Rows
		err  error
	)
	if opts.BackoffBase > 0 {
		rows, err = s.db.Query(ctx, s.queries.selectPendingBackoff, now, maxRetries, opts.BatchSize, opts.BackoffBase.Seconds())
	} else {
		rows, err = s.db.Query(ctx, s.queries.selectPending, now, maxRetries, opts.BatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: select failed: %w", err)
	}
	defer rows.Close()

	records := make([]outbox.Record, 0, opts.BatchSize)
	for rows.Next() {
		var rec outbox.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.EventType,
			&rec.Content,
			&rec.CreatedAt,
			&rec.ProcessedAt,
			&rec.TopicName,
			&rec.PartitionKey,
			&rec.RetryCount,
			&rec.LastRetryAt,
			&rec.LastError,
			&rec.IsIgnored,
			&rec.SchemaVersion,
			&rec.Metadata,
			&rec.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("outbox postgres: scan failed: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox postgres: rows failed: %w", err)
	}

	return records, nil
}

// MarkProcessed finalizes the record if it is still pending. A zero-row
// update means another instance got there first.
func (s *Store) MarkProcessed(ctx context.Context, success outbox.Success) (bool, error) {
	if len(success.Topic) > outbox.MaxTopicNameLen {
		return false, outbox.ErrTopicNameTooLong
	}

	tag, err := s.db.Exec(ctx, s.queries.markProcessed, success.ID, success.At, success.Topic)
	if err != nil {
		return false, fmt.Errorf("outbox postgres: mark processed failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkFailed increments the retry count, stores the failure and flips
// is_ignored in the same statement when the budget is exhausted or the
// failure is non-retryable.
func (s *Store) MarkFailed(ctx context.Context, failure outbox.FailureReport) (outbox.FailOutcome, error) {
	maxRetries := failure.MaxRetries
	if maxRetries <= 0 {
		maxRetries = outbox.DefaultMaxRetries
	}

	var outcome outbox.FailOutcome
	err := s.db.QueryRow(
		ctx,
		s.queries.markFailed,
		failure.ID,
		failure.At,
		truncateError(failure.Err),
		failure.DeadLetter,
		maxRetries,
	).Scan(&outcome.RetryCount, &outcome.Ignored)
	if errors.Is(err, pgx.ErrNoRows) {
		return outbox.FailOutcome{}, nil
	}
	if err != nil {
		return outbox.FailOutcome{}, fmt.Errorf("outbox postgres: mark failed failed: %w", err)
	}
	outcome.Applied = true

	return outcome, nil
}

// PendingCount returns the number of pending outbox rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox postgres: pending count failed: %w", err)
	}

	return count, nil
}

// SweepExpired moves up to limit expired pending records into the ignored
// state, recording why.
func (s *Store) SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, ErrSweepLimitInvalid
	}

	tag, err := s.db.Exec(ctx, s.queries.sweepExpired, sweepReason, now, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: sweep failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Purge deletes up to limit terminal records created before the cutoff.
func (s *Store) Purge(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, ErrPurgeLimitInvalid
	}

	tag, err := s.db.Exec(ctx, s.queries.purge, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: purge failed: %w", err)
	}

	return tag.RowsAffected(), nil
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
