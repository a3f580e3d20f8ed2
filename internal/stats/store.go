// Package stats persists per-command click counters in SQLite.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Counter is one persisted click counter row.
type Counter struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	ClickedCount int64  `json:"clicked_count"`
}

// DefaultCounters lists the command names seeded on first open.
var DefaultCounters = []string{"start", "categories", "dailyrule"}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("stats store closed")

// Store is a SQLite-backed click counter store safe for concurrent use,
// including Close racing with reads and writes.
type Store struct {
	db atomic.Pointer[sql.DB]
}

// Open opens or creates the counter database at path and seeds
// DefaultCounters.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open stats store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open stats store: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats store: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &Store{}
	store.db.Store(db)
	if err := store.init(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS handlers (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			title         TEXT NOT NULL UNIQUE,
			clicked_count INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("init stats schema: %w", err)
	}

	for _, title := range DefaultCounters {
		if _, err := db.ExecContext(
			ctx,
			`INSERT INTO handlers (title, clicked_count) VALUES (?, 0) ON CONFLICT(title) DO NOTHING`,
			title,
		); err != nil {
			return fmt.Errorf("seed stats counter %s: %w", title, err)
		}
	}

	return nil
}

// Increment adds one click to the named counter. It reports false without
// error when no counter with that name exists.
func (s *Store) Increment(ctx context.Context, title string) (bool, error) {
	db := s.db.Load()
	if db == nil {
		return false, ErrClosed
	}

	result, err := db.ExecContext(
		ctx,
		`UPDATE handlers SET clicked_count = clicked_count + 1 WHERE title = ?`,
		title,
	)
	if err != nil {
		return false, fmt.Errorf("increment counter %s: %w", title, s.closedOr(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment counter %s rows: %w", title, err)
	}

	return affected > 0, nil
}

// List returns all counters ordered by id.
func (s *Store) List(ctx context.Context) ([]Counter, error) {
	db := s.db.Load()
	if db == nil {
		return nil, ErrClosed
	}

	rows, err := db.QueryContext(ctx, `SELECT id, title, clicked_count FROM handlers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", s.closedOr(err))
	}
	defer rows.Close()

	counters := make([]Counter, 0, len(DefaultCounters))
	for rows.Next() {
		var counter Counter
		if err := rows.Scan(&counter.ID, &counter.Title, &counter.ClickedCount); err != nil {
			return nil, fmt.Errorf("scan counter: %w", s.closedOr(err))
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", s.closedOr(err))
	}

	return counters, nil
}

// Close releases the database handle. Later calls are no-ops; operations
// after it fail with ErrClosed.
func (s *Store) Close() error {
	db := s.db.Swap(nil)
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close stats store: %w", err)
	}

	return nil
}

// closedOr reports ErrClosed for a failure caused by a concurrent Close.
func (s *Store) closedOr(err error) error {
	if s.db.Load() == nil {
		return errors.Join(ErrClosed, err)
	}

	return err
}
