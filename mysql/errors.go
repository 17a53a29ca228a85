package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("outbox mysql: db is required")
	// ErrExecutorRequired is returned when enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("outbox mysql: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox mysql: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox mysql: invalid table name")
	// ErrSweepLimitInvalid is returned when the sweep limit is not positive.
	ErrSweepLimitInvalid = errors.New("outbox mysql: sweep limit must be positive")
	// ErrPurgeLimitInvalid is returned when the purge limit is not positive.
	ErrPurgeLimitInvalid = errors.New("outbox mysql: purge limit must be positive")
)
