package mysql

import "fmt"

type queries struct {
	insert               string
	selectPending        string
	selectPendingBackoff string
	markProcessed        string
	markFailed           string
	selectOutcome        string
	countPending         string
	sweepExpired         string
	purge                string
}

func newQueries(table string) queries {
	cols := "id, event_type, content, created_at, processed_at, topic_name, partition_key, " +
		"retry_count, last_retry_at, last_error, is_ignored, schema_version, metadata, expires_at"
	pending := "processed_at IS NULL AND is_ignored = FALSE"
	backoffGate := "(last_retry_at IS NULL OR ? >= DATE_ADD(last_retry_at, INTERVAL (POW(2, LEAST(retry_count, 16)) * ?) SECOND))"

	insert := fmt.Sprintf(
		"INSERT INTO %s (id, event_type, content, partition_key, metadata, schema_version, expires_at, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		table,
	)
	selectPending := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s AND (expires_at IS NULL OR expires_at > ?) AND retry_count < ? "+
			"ORDER BY created_at ASC, id ASC LIMIT ?",
		cols,
		table,
		pending,
	)
	selectPendingBackoff := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s AND (expires_at IS NULL OR expires_at > ?) AND retry_count < ? AND %s "+
			"ORDER BY created_at ASC, id ASC LIMIT ?",
		cols,
		table,
		pending,
		backoffGate,
	)
	markProcessed := fmt.Sprintf(
		"UPDATE %s SET processed_at = ?, topic_name = ?, last_error = NULL WHERE id = ? AND %s",
		table,
		pending,
	)
	// MySQL applies single-table SET assignments left to right using already
	// updated values, which would make the is_ignored expression see the
	// post-increment retry_count. The self-join pins every read to the
	// pre-update row.
	markFailed := fmt.Sprintf(
		"UPDATE %s AS cur "+
			"JOIN %s AS prev ON prev.id = cur.id "+
			"SET cur.retry_count = prev.retry_count + 1, cur.last_retry_at = ?, cur.last_error = ?, "+
			"cur.is_ignored = (? OR prev.retry_count + 1 >= ?) "+
			"WHERE cur.id = ? AND cur.processed_at IS NULL AND cur.is_ignored = FALSE",
		table,
		table,
	)
	selectOutcome := fmt.Sprintf("SELECT retry_count, is_ignored FROM %s WHERE id = ?", table)
	countPending := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, pending)
	sweepExpired := fmt.Sprintf(
		"UPDATE %s SET is_ignored = TRUE, last_error = ? "+
			"WHERE %s AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY created_at ASC LIMIT ?",
		table,
		pending,
	)
	purge := fmt.Sprintf(
		"DELETE FROM %s WHERE (processed_at IS NOT NULL OR is_ignored = TRUE) AND created_at < ? "+
			"ORDER BY created_at ASC LIMIT ?",
		table,
	)

	return queries{
		insert:               insert,
		selectPending:        selectPending,
		selectPendingBackoff: selectPendingBackoff,
		markProcessed:        markProcessed,
		markFailed:           markFailed,
		selectOutcome:        selectOutcome,
		countPending:         countPending,
		sweepExpired:         sweepExpired,
		purge:                purge,
	}
}
