package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	fingerprint TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	topic       TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	acquired_at TEXT NOT NULL
)`

// SQLiteBackend stores membership in an embedded SQLite database. Writes
// are durable on Append, so Flush is a no-op.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, subject, topic, origin, name, path, acquired_at FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var acquired string
		if err := rows.Scan(&e.Fingerprint, &e.Subject, &e.Topic, &e.Origin, &e.Name, &e.Path, &acquired); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, acquired); err == nil {
			e.AcquiredAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents (fingerprint, subject, topic, origin, name, path, acquired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Fingerprint, e.Subject, e.Topic, e.Origin, e.Name, e.Path, e.AcquiredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Flush(context.Context) error { return nil }

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
