package postgres

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id UUID NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	content JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ NULL,
	topic_name VARCHAR(255) NULL,
	partition_key VARCHAR(500) NULL,
	retry_count INT NOT NULL DEFAULT 0,
	last_retry_at TIMESTAMPTZ NULL,
	last_error VARCHAR(1024) NULL,
	is_ignored BOOLEAN NOT NULL DEFAULT FALSE,
	schema_version INT NOT NULL DEFAULT 1,
	metadata TEXT NULL,
	expires_at TIMESTAMPTZ NULL,
	PRIMARY KEY (id)
);
CREATE INDEX IF NOT EXISTS idx_%s_pending ON %s (created_at)
	WHERE processed_at IS NULL AND is_ignored = FALSE;`

// Schema returns the outbox table DDL, including the partial index the
// readiness query relies on.
func Schema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name, indexSuffix(name), name), nil
}

func indexSuffix(table string) string {
	out := make([]byte, len(table))
	for i := 0; i < len(table); i++ {
		if table[i] == '.' {
			out[i] = '_'

			continue
		}
		out[i] = table[i]
	}

	return string(out)
}
