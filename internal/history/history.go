// Package history keeps a SQLite log of every mod update attempt.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modupdater/internal/logging"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Result values stored for an attempt.
const (
	ResultUpdated = "updated"
	ResultFailed  = "failed"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT    NOT NULL,
	from_version  TEXT    NOT NULL DEFAULT '',
	to_version    TEXT    NOT NULL DEFAULT '',
	expected_hash TEXT    NOT NULL DEFAULT '',
	url           TEXT    NOT NULL DEFAULT '',
	result        TEXT    NOT NULL,
	error         TEXT    NOT NULL DEFAULT '',
	bytes         INTEGER NOT NULL DEFAULT 0,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_finished_at ON attempts (finished_at DESC);
`

var log = logging.L("history")

// Attempt is one run of the download, verify and install pipeline for a mod.
type Attempt struct {
	ID           int64
	Name         string
	FromVersion  string
	ToVersion    string
	ExpectedHash string
	URL          string
	Result       string
	Error        string
	Bytes        int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the attempt took.
func (a Attempt) Duration() time.Duration {
	if a.FinishedAt.Before(a.StartedAt) {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Succeeded reports whether the archive was replaced.
func (a Attempt) Succeeded() bool {
	return a.Result == ResultUpdated
}

// Store persists attempts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(trimmed))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	log.WithField("path", trimmed).Debug("history store opened")
	return &Store{db: db, path: trimmed}, nil
}

// buildDSN creates a read-write WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record appends an attempt.
func (s *Store) Record(ctx context.Context, a Attempt) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("record attempt: name is empty")
	}
	if a.Result == "" {
		a.Result = ResultFailed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (name, from_version, to_version, expected_hash, url, result, error, bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.FromVersion, a.ToVersion, a.ExpectedHash, a.URL, a.Result, a.Error, a.Bytes,
		a.StartedAt.UnixMilli(), a.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts, most recently finished first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, from_version, to_version, expected_hash, url, result, error, bytes, started_at, finished_at
		FROM attempts
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		var started, finished int64
		if err := rows.Scan(&a.ID, &a.Name, &a.FromVersion, &a.ToVersion, &a.ExpectedHash, &a.URL,
			&a.Result, &a.Error, &a.Bytes, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.StartedAt = time.UnixMilli(started)
		a.FinishedAt = time.UnixMilli(finished)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
