//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/seqra/outbox"
	"github.com/seqra/outbox/postgres"
)

func TestStoreEnqueueFetchMarkIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, pool := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, pool)

	store, err := postgres.NewStore(pool)
	require.NoError(t, err)

	var ids []outbox.Record
	for i := 1; i <= 3; i++ {
		entry, err := outbox.NewEntry(map[string]int{"n": i}, outbox.WithEventType("OrderCreated"))
		require.NoError(t, err)
		rec, err := store.Enqueue(ctx, pool, entry)
		require.NoError(t, err)
		ids = append(ids, rec)
	}

	records, err := store.FetchPending(ctx, outbox.FetchOptions{BatchSize: 10, MaxRetries: 3, Now: time.Now().UTC()})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i := 1; i < len(records); i++ {
		require.False(t, records[i].CreatedAt.Before(records[i-1].CreatedAt))
	}

	won, err := store.MarkProcessed(ctx, outbox.Success{ID: records[0].ID, Topic: "orders", At: time.Now().UTC()})
	require.NoError(t, err)
	require.True(t, won)

	// A second finalize of the same record must lose.
	won, err = store.MarkProcessed(ctx, outbox.Success{ID: records[0].ID, Topic: "orders", At: time.Now().UTC()})
	require.NoError(t, err)
	require.False(t, won)

	records, err = store.FetchPending(ctx, outbox.FetchOptions{BatchSize: 10, MaxRetries: 3, Now: time.Now().UTC()})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestStoreMarkFailedDeadLettersIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, pool := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, pool)

	store, err := postgres.NewStore(pool)
	require.NoError(t, err)

	entry, err := outbox.NewEntry(map[string]int{"n": 1}, outbox.WithEventType("OrderCreated"))
	require.NoError(t, err)
	rec, err := store.Enqueue(ctx, pool, entry)
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		outcome, err := store.MarkFailed(ctx, outbox.FailureReport{
			ID:         rec.ID,
			Err:        fmt.Errorf("failure %d", attempt),
			At:         time.Now().UTC(),
			MaxRetries: 3,
		})
		require.NoError(t, err)
		require.True(t, outcome.Applied)
		require.Equal(t, attempt, outcome.RetryCount)
		require.Equal(t, attempt == 3, outcome.Ignored)
	}

	// The record is terminal now; further failures must not apply.
	outcome, err := store.MarkFailed(ctx, outbox.FailureReport{
		ID:         rec.ID,
		Err:        errors.New("late failure"),
		At:         time.Now().UTC(),
		MaxRetries: 3,
	})
	require.NoError(t, err)
	require.False(t, outcome.Applied)

	var retryCount int
	var isIgnored bool
	var lastError string
	err = pool.QueryRow(ctx, "SELECT retry_count, is_ignored, last_error FROM outbox WHERE id = $1", rec.ID).
		Scan(&retryCount, &isIgnored, &lastError)
	require.NoError(t, err)
	require.Equal(t, 3, retryCount)
	require.True(t, isIgnored)
	require.Equal(t, "failure 3", lastError)

	records, err := store.FetchPending(ctx, outbox.FetchOptions{BatchSize: 10, MaxRetries: 3, Now: time.Now().UTC()})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStoreBackoffGateIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, pool := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, pool)

	store, err := postgres.NewStore(pool)
	require.NoError(t, err)

	entry, err := outbox.NewEntry(map[string]int{"n": 1}, outbox.WithEventType("OrderCreated"))
	require.NoError(t, err)
	rec, err := store.Enqueue(ctx, pool, entry)
	require.NoError(t, err)

	failedAt := time.Now().UTC()
	_, err = store.MarkFailed(ctx, outbox.FailureReport{ID: rec.ID, Err: errors.New("boom"), At: failedAt, MaxRetries: 5})
	require.NoError(t, err)

	// retry_count is 1, so the gate requires base * 2^1 after the failure.
	opts := outbox.FetchOptions{BatchSize: 10, MaxRetries: 5, BackoffBase: 10 * time.Second}

	opts.Now = failedAt.Add(5 * time.Second)
	records, err := store.FetchPending(ctx, opts)
	require.NoError(t, err)
	require.Empty(t, records)

	opts.Now = failedAt.Add(25 * time.Second)
	records, err = store.FetchPending(ctx, opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestStoreSweepAndPurgeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, pool := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, pool)

	store, err := postgres.NewStore(pool)
	require.NoError(t, err)

	expired, err := outbox.NewEntry(json.RawMessage(`{"n":1}`),
		outbox.WithEventType("OrderCreated"),
		outbox.WithExpiresAt(time.Now().UTC().Add(-time.Hour)),
	)
	require.NoError(t, err)
	expiredRec, err := store.Enqueue(ctx, pool, expired)
	require.NoError(t, err)

	fresh, err := outbox.NewEntry(json.RawMessage(`{"n":2}`), outbox.WithEventType("OrderCreated"))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, pool, fresh)
	require.NoError(t, err)

	swept, err := store.SweepExpired(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)

	var isIgnored bool
	var lastError string
	err = pool.QueryRow(ctx, "SELECT is_ignored, last_error FROM outbox WHERE id = $1", expiredRec.ID).
		Scan(&isIgnored, &lastError)
	require.NoError(t, err)
	require.True(t, isIgnored)
	require.Equal(t, "expired before publish", lastError)

	purged, err := store.Purge(ctx, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *pgxpool.Pool) {
	t.Helper()
	port := nat.Port("5432/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_USER":     "outbox",
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "outbox",
		},
		WaitingFor: wait.ForSQL(port, "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://outbox:secret@%s:%s/outbox?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://outbox:secret@%s:%s/outbox?sslmode=disable", host, mappedPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open pool: %v", err)
	}
	return container, pool
}

func setupSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	schema, err := postgres.Schema("outbox")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)
}
