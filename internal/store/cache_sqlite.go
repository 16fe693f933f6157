package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteCacheSchema = `
CREATE TABLE IF NOT EXISTS local_cache (
	collection TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// OpenSQLiteCache opens (and creates) the on-disk cache database
func OpenSQLiteCache(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite cache: %w", err)
	}
	return db, nil
}

// SQLiteCache keeps one JSON document per collection in a local SQLite file,
// so the cache survives restarts without a Redis server.
type SQLiteCache[T any] struct {
	db         *sql.DB
	collection string
}

func NewSQLiteCache[T any](db *sql.DB, collection string) *SQLiteCache[T] {
	return &SQLiteCache[T]{db: db, collection: collection}
}

func (c *SQLiteCache[T]) Load(ctx context.Context) ([]T, error) {
	var payload string
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM local_cache WHERE collection = ?`, c.collection,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s cache: %w", c.collection, err)
	}

	var records []T
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("decode %s cache: %w", c.collection, err)
	}
	return records, nil
}

func (c *SQLiteCache[T]) Save(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", c.collection, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO local_cache (collection, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, c.collection, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %s cache: %w", c.collection, err)
	}
	return nil
}
