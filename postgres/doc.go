// Package postgres provides a PostgreSQL outbox store built on pgx.
//
// The store keeps no locks across publish attempts. FetchPending is a plain
// snapshot read of eligible rows; every terminal transition (processed,
// ignored, retry bookkeeping) is a single conditional UPDATE keyed on the row
// still being pending, so concurrent relay instances race safely and the
// loser's update affects zero rows.
//
// See Schema for the table definition and Store.Enqueue for inserting records
// inside the producer's transaction.
package postgres
