package postgres

import "errors"

var (
	// ErrDBRequired is returned when a nil database handle is provided.
	ErrDBRequired = errors.New("outbox postgres: db is required")
	// ErrExecutorRequired is returned when enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("outbox postgres: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox postgres: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox postgres: invalid table name")
	// ErrSweepLimitInvalid is returned when the sweep limit is not positive.
	ErrSweepLimitInvalid = errors.New("outbox postgres: sweep limit must be positive")
	// ErrPurgeLimitInvalid is returned when the purge limit is not positive.
	ErrPurgeLimitInvalid = errors.New("outbox postgres: purge limit must be positive")
)
