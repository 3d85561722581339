// Package client is the Go client for the chat service: a websocket
// transport with bounded reconnection, plus a durable offline queue that
// replays state-changing requests once connectivity returns.
package client

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultQueueFileName is the SQLite filename under the data dir.
	DefaultQueueFileName = "outbox.db"
	// DefaultRetention is how long undelivered requests are kept before
	// the purge drops them.
	DefaultRetention = 24 * time.Hour
)

// ErrNotFound is returned when a queued request id does not exist.
var ErrNotFound = errors.New("client: request not found")

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS offline_requests (
  id          TEXT PRIMARY KEY,
  method      TEXT NOT NULL,
  target      TEXT NOT NULL,
  payload     TEXT NOT NULL DEFAULT '',
  headers     TEXT NOT NULL DEFAULT '{}',
  created_at  INTEGER NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_offline_requests_created_at
ON offline_requests (created_at, id);
`,
}

// OfflineRequest is one state-changing request captured while the client
// was disconnected. Payload holds the request body verbatim; Headers holds
// whatever the caller needs replayed, typically the Authorization header.
type OfflineRequest struct {
	ID         string
	Method     string
	Target     string
	Payload    []byte
	Headers    map[string]string
	CreatedAt  time.Time
	RetryCount int
}

// QueueStore is a thin wrapper around a SQLite connection holding the
// offline request outbox.
type QueueStore struct {
	db *sql.DB
}

// OpenQueue opens (or creates) outbox.db under the given data directory
// and runs migrations.
func OpenQueue(dataDir string) (*QueueStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}
	return OpenQueuePath(filepath.Join(dataDir, DefaultQueueFileName))
}

// OpenQueuePath opens SQLite at an explicit path and runs migrations.
func OpenQueuePath(dbPath string) (*QueueStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue database: %w", err)
	}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply queue migration %d: %w", i, err)
		}
	}
	return &QueueStore{db: db}, nil
}

// Close closes the SQLite connection.
func (s *QueueStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue captures a request for later replay and returns its id.
func (s *QueueStore) Enqueue(req OfflineRequest) (string, error) {
	if req.Method == "" || req.Target == "" {
		return "", errors.New("client: method and target are required")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	headers, err := json.Marshal(req.Headers)
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO offline_requests (id, method, target, payload, headers, created_at, retry_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Method, req.Target, string(req.Payload), string(headers),
		req.CreatedAt.UnixMilli(), req.RetryCount,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue request: %w", err)
	}
	return req.ID, nil
}

// List returns queued requests oldest first, up to limit (0 means all).
func (s *QueueStore) List(limit int) ([]OfflineRequest, error) {
	q := `SELECT id, method, target, payload, headers, created_at, retry_count
	      FROM offline_requests ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []OfflineRequest
	for rows.Next() {
		var (
			req       OfflineRequest
			payload   string
			headers   string
			createdAt int64
		)
		if err := rows.Scan(&req.ID, &req.Method, &req.Target, &payload, &headers, &createdAt, &req.RetryCount); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		req.Payload = []byte(payload)
		req.CreatedAt = time.UnixMilli(createdAt)
		if headers != "" {
			_ = json.Unmarshal([]byte(headers), &req.Headers)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Count returns how many requests are waiting.
func (s *QueueStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM offline_requests`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// Remove deletes a delivered (or abandoned) request.
func (s *QueueStore) Remove(id string) error {
	res, err := s.db.Exec(`DELETE FROM offline_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementRetry bumps the retry counter after a failed replay and returns
// the new count.
func (s *QueueStore) IncrementRetry(id string) (int, error) {
	res, err := s.db.Exec(`UPDATE offline_requests SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("increment retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	var count int
	if err := s.db.QueryRow(`SELECT retry_count FROM offline_requests WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read retry count: %w", err)
	}
	return count, nil
}

// PurgeOlderThan drops requests older than the retention window and returns
// how many were removed. Zero or negative retention uses the default.
func (s *QueueStore) PurgeOlderThan(retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.Exec(`DELETE FROM offline_requests WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge requests: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
