// Package pagestore persists the last visited page of each form session in
// SQLite so that reopening a form resumes where the user left it.
package pagestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/goliatone/go-formruntime/pkg/layout"
)

//go:embed schema.sql
var schemaSQL string

var _ layout.PageStore = (*Store)(nil)

// Store implements layout.PageStore on a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("pagestore: database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pagestore: connect: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pagestore: execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("pagestore: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LastPage implements layout.PageStore.
func (s *Store) LastPage(ctx context.Context, key string) (string, bool, error) {
	var page string
	err := s.db.QueryRowContext(ctx,
		`SELECT page_id FROM last_pages WHERE cache_key = ?`, key,
	).Scan(&page)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("pagestore: read last page %q: %w", key, err)
	}
	return page, true, nil
}

// SaveLastPage implements layout.PageStore.
func (s *Store) SaveLastPage(ctx context.Context, key, page string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO last_pages (cache_key, page_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET page_id = excluded.page_id, updated_at = excluded.updated_at`,
		key, page, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("pagestore: save last page %q: %w", key, err)
	}
	return nil
}

// Forget removes the stored page of key.
func (s *Store) Forget(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM last_pages WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("pagestore: forget %q: %w", key, err)
	}
	return nil
}
