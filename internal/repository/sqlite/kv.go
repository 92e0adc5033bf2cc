package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/js-playground/internal/store"
)

// KV is the progress key-value store backed by the kv table.
type KV struct {
	conn *sql.DB
}

var _ store.Store = (*KV)(nil)

// KV returns a store.Store sharing db's connection pool.
func (db *DB) KV() *KV {
	return &KV{conn: db.conn}
}

// Get reports whether key exists along with its value.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := kv.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: getting key %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces key.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	_, err := kv.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting key %s: %w", key, err)
	}
	return nil
}

// Delete is a no-op for missing keys.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if _, err := kv.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: deleting key %s: %w", key, err)
	}
	return nil
}
