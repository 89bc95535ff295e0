package storage

import (
	"database/sql"
	"fmt"
)

// schemaMigrations is the registry of tracker schema migrations, applied in
// version order. Each entry runs once inside its own transaction and is
// recorded in schema_migrations.
var schemaMigrations = []schemaMigration{
	{version: 1, name: "initial_schema", up: migrateV001},
}

type schemaMigration struct {
	version int
	name    string
	up      func(tx *sql.Tx) error
}

// connectionPragmas are applied before any migration: WAL keeps status reads
// cheap while a flush is writing the spool, and foreign keys are enforced for
// the schema.
var connectionPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
}

// MigrationRunner brings a tracker database up to the current schema.
type MigrationRunner struct {
	db *sql.DB
}

// NewMigrationRunner creates a MigrationRunner over the given database.
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run applies the connection pragmas, ensures the schema_migrations tracking
// table exists, then applies every migration not yet recorded, in version
// order.
func (r *MigrationRunner) Run() error {
	for _, pragma := range connectionPragmas {
		if _, err := r.db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied, err := r.appliedVersions()
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range schemaMigrations {
		if applied[m.version] {
			continue
		}
		if err := r.apply(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// appliedVersions returns the set of migration versions already recorded.
func (r *MigrationRunner) appliedVersions() (map[int]bool, error) {
	rows, err := r.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// apply executes one migration inside a transaction and records it.
func (r *MigrationRunner) apply(m schemaMigration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.up(tx); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.version, m.name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}
