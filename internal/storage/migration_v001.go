package storage

import "database/sql"

// migrateV001 creates the initial tracker schema: the durable key/value
// table and the undelivered-batch spool. Every statement uses IF NOT EXISTS
// for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS spool (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			payload    BLOB NOT NULL,
			byte_size  INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_spool_created_at ON spool (created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
