package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"newsbot/internal/model"
	"newsbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
//
// The pool is limited to a single connection, so every statement and
// transaction goes through one serialized path.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// HasEntry checks whether an entry link has already been dispatched.
func (s *SQLite) HasEntry(ctx context.Context, link string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sent_articles WHERE link = ?`, link)
	if err != nil {
		return false, fmt.Errorf("check sent: %w", err)
	}
	return count > 0, nil
}

// RecordEntry marks an entry link as dispatched. Recording a link twice is a no-op.
func (s *SQLite) RecordEntry(ctx context.Context, link string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_articles (link, sent_at) VALUES (?, ?)`,
		link, now,
	)
	if err != nil {
		return fmt.Errorf("record sent: %w", err)
	}
	return nil
}

// EnsureUser registers a user if it does not exist yet.
func (s *SQLite) EnsureUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// Sources returns the names of the sources the user selected, sorted.
func (s *SQLite) Sources(ctx context.Context, userID int64) ([]string, error) {
	var sources []string
	err := s.db.SelectContext(ctx, &sources,
		`SELECT source FROM user_sources WHERE user_id = ? ORDER BY source`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	return sources, nil
}

// Categories returns the category labels the user selected for source, sorted.
func (s *SQLite) Categories(ctx context.Context, userID int64, source string) ([]string, error) {
	var categories []string
	err := s.db.SelectContext(ctx, &categories,
		`SELECT category FROM user_categories WHERE user_id = ? AND source = ? ORDER BY category`,
		userID, source,
	)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	return categories, nil
}

// ReplacePreferences overwrites the user's whole subscription in one
// transaction. Categories for sources that are not selected are dropped.
func (s *SQLite) ReplacePreferences(ctx context.Context, userID int64, prefs model.Preferences) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_categories WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user_categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_sources WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user_sources: %w", err)
	}

	for _, source := range prefs.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_sources (user_id, source) VALUES (?, ?)`, userID, source,
		); err != nil {
			return fmt.Errorf("insert user_source %q: %w", source, err)
		}
		for _, category := range prefs.Categories[source] {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_categories (user_id, source, category) VALUES (?, ?, ?)`,
				userID, source, category,
			); err != nil {
				return fmt.Errorf("insert user_category %q/%q: %w", source, category, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit preferences: %w", err)
	}
	return nil
}

// AllUsers returns the IDs of every registered user.
func (s *SQLite) AllUsers(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return ids, nil
}
