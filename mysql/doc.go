// Package mysql provides a MySQL 8.0+ outbox store on database/sql.
//
// It follows the same contract as the PostgreSQL store: lock-free snapshot
// reads for fetching and conditional updates for every terminal transition.
// MySQL has no RETURNING, so the failure transition runs a short transaction
// that applies the conditional update and reads back the resulting state.
package mysql
