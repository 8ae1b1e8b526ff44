package cacheproxy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Response is a buffered upstream answer as stored in the cache.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Cache stores the last good response per key.
type Cache interface {
	Get(ctx context.Context, key string) (Response, bool, error)
	Put(ctx context.Context, key string, resp Response) error
}

type SQLiteCache struct {
	db *sql.DB
}

func OpenSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			key TEXT PRIMARY KEY,
			status INTEGER NOT NULL,
			header_json TEXT NOT NULL,
			body BLOB NOT NULL,
			stored_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (Response, bool, error) {
	var (
		resp       Response
		headerJSON string
		storedAt   int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status, header_json, body, stored_at FROM responses WHERE key = ?`, key,
	).Scan(&resp.Status, &headerJSON, &resp.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, err
	}
	if err := json.Unmarshal([]byte(headerJSON), &resp.Header); err != nil {
		return Response{}, false, err
	}
	resp.StoredAt = time.UnixMilli(storedAt).UTC()
	return resp, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, resp Response) error {
	hb, err := json.Marshal(resp.Header)
	if err != nil {
		return err
	}
	if resp.StoredAt.IsZero() {
		resp.StoredAt = time.Now()
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO responses (key, status, header_json, body, stored_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET status = excluded.status, header_json = excluded.header_json,
		 body = excluded.body, stored_at = excluded.stored_at`,
		key, resp.Status, string(hb), body, resp.StoredAt.UnixMilli(),
	)
	return err
}
