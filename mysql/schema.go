package mysql

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id CHAR(36) NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	content JSON NOT NULL,
	created_at DATETIME(6) NOT NULL,
	processed_at DATETIME(6) NULL,
	topic_name VARCHAR(255) NULL,
	partition_key VARCHAR(500) NULL,
	retry_count INT NOT NULL DEFAULT 0,
	last_retry_at DATETIME(6) NULL,
	last_error VARCHAR(1024) NULL,
	is_ignored TINYINT(1) NOT NULL DEFAULT 0,
	schema_version INT NOT NULL DEFAULT 1,
	metadata TEXT NULL,
	expires_at DATETIME(6) NULL,
	PRIMARY KEY (id),
	INDEX idx_pending (is_ignored, created_at)
);`

// Schema returns the outbox table DDL.
func Schema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}
