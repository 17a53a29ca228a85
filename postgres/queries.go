package postgres

import "fmt"

type queries struct {
	insert               string
	selectPending        string
	selectPendingBackoff string
	markProcessed        string
	markFailed           string
	countPending         string
	sweepExpired         string
	purge                string
}

func newQueries(table string) queries {
	cols := "id, event_type, content, created_at, processed_at, topic_name, partition_key, " +
		"retry_count, last_retry_at, last_error, is_ignored, schema_version, metadata, expires_at"
	pending := "processed_at IS NULL AND is_ignored = FALSE"

	insert := fmt.Sprintf(
		"INSERT INTO %s (id, event_type, content, partition_key, metadata, schema_version, expires_at, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		table,
	)
	selectPending := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s AND (expires_at IS NULL OR expires_at > $1) AND retry_count < $2 "+
			"ORDER BY created_at ASC, id ASC LIMIT $3",
		cols,
		table,
		pending,
	)
	selectPendingBackoff := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s AND (expires_at IS NULL OR expires_at > $1) AND retry_count < $2 "+
			"AND (last_retry_at IS NULL OR $1 >= last_retry_at + make_interval(secs => $4::double precision * power(2, LEAST(retry_count, 16)))) "+
			"ORDER BY created_at ASC, id ASC LIMIT $3",
		cols,
		table,
		pending,
	)
	markProcessed := fmt.Sprintf(
		"UPDATE %s SET processed_at = $2, topic_name = $3, last_error = NULL WHERE id = $1 AND %s",
		table,
		pending,
	)
	markFailed := fmt.Sprintf(
		"UPDATE %s SET retry_count = retry_count + 1, last_retry_at = $2, last_error = $3, "+
			"is_ignored = ($4 OR retry_count + 1 >= $5) "+
			"WHERE id = $1 AND %s RETURNING retry_count, is_ignored",
		table,
		pending,
	)
	countPending := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, pending)
	sweepExpired := fmt.Sprintf(
		"UPDATE %s SET is_ignored = TRUE, last_error = $1 WHERE id IN "+
			"(SELECT id FROM %s WHERE %s AND expires_at IS NOT NULL AND expires_at <= $2 ORDER BY created_at ASC LIMIT $3)",
		table,
		table,
		pending,
	)
	purge := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN "+
			"(SELECT id FROM %s WHERE (processed_at IS NOT NULL OR is_ignored = TRUE) AND created_at < $1 ORDER BY created_at ASC LIMIT $2)",
		table,
		table,
	)

	return queries{
		insert:               insert,
		selectPending:        selectPending,
		selectPendingBackoff: selectPendingBackoff,
		markProcessed:        markProcessed,
		markFailed:           markFailed,
		countPending:         countPending,
		sweepExpired:         sweepExpired,
		purge:                purge,
	}
}
