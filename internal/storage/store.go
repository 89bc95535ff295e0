package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store defines persistence for the tracker's headless hosts: a durable
// key/value area (visitor identity, consent decision) and a spool of
// undelivered batch payloads.
type Store interface {
	GetKey(ctx context.Context, key string) (string, bool, error)
	SetKey(ctx context.Context, key, value string) error
	DeleteKey(ctx context.Context, key string) error
	SpoolBatch(ctx context.Context, payload []byte) error
	PendingBatches(ctx context.Context, limit int) ([]SpooledBatch, error)
	DeleteBatch(ctx context.Context, id int64) error
	PruneBatches(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	getKey      *sql.Stmt
	setKey      *sql.Stmt
	deleteKey   *sql.Stmt
	insertBatch *sql.Stmt
	deleteBatch *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and
// migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getKey, err = s.db.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	s.setKey, err = s.db.Prepare(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.deleteKey, err = s.db.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	s.insertBatch, err = s.db.Prepare(`
		INSERT INTO spool (payload, byte_size, created_at) VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.deleteBatch, err = s.db.Prepare(`DELETE FROM spool WHERE id = ?`)
	if err != nil {
		return err
	}

	return nil
}

// GetKey retrieves a durable key. The second return reports presence.
func (s *SQLiteStore) GetKey(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.getKey.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get key: %w", err)
	}
	return value, true, nil
}

// SetKey upserts a durable key.
func (s *SQLiteStore) SetKey(ctx context.Context, key, value string) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.setKey.ExecContext(ctx, key, value, ts); err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

// DeleteKey removes a durable key. Deleting an absent key is not an error.
func (s *SQLiteStore) DeleteKey(ctx context.Context, key string) error {
	if _, err := s.deleteKey.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// SpoolBatch stores an undelivered payload for a later flush.
func (s *SQLiteStore) SpoolBatch(ctx context.Context, payload []byte) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.insertBatch.ExecContext(ctx, payload, len(payload), ts); err != nil {
		return fmt.Errorf("spool batch: %w", err)
	}
	return nil
}

// PendingBatches returns up to limit spooled batches, oldest first, so a
// flush preserves the original delivery order.
func (s *SQLiteStore) PendingBatches(ctx context.Context, limit int) ([]SpooledBatch, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, created_at FROM spool ORDER BY id ASC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query spool: %w", err)
	}
	defer rows.Close()

	batches := []SpooledBatch{}
	for rows.Next() {
		var b SpooledBatch
		var tsStr string
		if err := rows.Scan(&b.ID, &b.Payload, &tsStr); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.CreatedAt, _ = parseTimestamp(tsStr)
		batches = append(batches, b)
	}

	return batches, rows.Err()
}

// DeleteBatch removes a spooled batch after successful delivery.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, id int64) error {
	res, err := s.deleteBatch.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %d not found", id)
	}
	return nil
}

// PruneBatches deletes spooled batches created before olderThan.
func (s *SQLiteStore) PruneBatches(ctx context.Context, olderThan time.Time) (int64, error) {
	tsFormatted := olderThan.UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, "DELETE FROM spool WHERE created_at < ?", tsFormatted)
	if err != nil {
		return 0, fmt.Errorf("prune spool: %w", err)
	}
	return res.RowsAffected()
}

// PurgeAll deletes every durable key and spooled batch. This is the storage
// side of the right-to-be-forgotten path.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	stmts := []string{
		"DELETE FROM spool",
		"DELETE FROM kv",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge (%s): %w", stmt, err)
		}
	}
	return nil
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&stats.Keys)
	if err != nil {
		return nil, fmt.Errorf("count keys: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(byte_size), 0) FROM spool",
	).Scan(&stats.SpooledBatches, &stats.SpooledBytes)
	if err != nil {
		return nil, fmt.Errorf("count spool: %w", err)
	}

	if stats.SpooledBatches > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM spool").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("spool time range: %w", err)
		}
		stats.OldestBatch, _ = parseTimestamp(oldestStr)
		stats.NewestBatch, _ = parseTimestamp(newestStr)
	}

	return stats, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.getKey, s.setKey, s.deleteKey,
		s.insertBatch, s.deleteBatch,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}
