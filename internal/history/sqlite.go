// Package history persists finished update attempts in SQLite so the
// status and history commands can show what happened and when.
package history

import (
	"database/sql"
	"fmt"

	"molt/internal/history/migrations"
	"molt/internal/molt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements molt.HistoryStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the attempt database at path and
// brings its schema up to date. path can be a file path or ":memory:"
// for an in-memory database. Updates run unattended, so pending
// migrations are applied here rather than by a separate tool.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := openConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating attempt database: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// openConnection opens and configures a SQLite connection with the
// PRAGMAs the store relies on.
func openConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// RecordAttempt appends one finished attempt.
func (s *SQLiteStore) RecordAttempt(rec *molt.AttemptRecord) error {
	if rec == nil {
		return fmt.Errorf("nil attempt record")
	}
	_, err := s.db.Exec(`
		INSERT INTO attempts (id, started_at, finished_at, from_version, to_version, phase, outcome, error, rolled_back, backup_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.FromVersion, rec.ToVersion,
		rec.Phase, rec.Outcome, rec.Error, rec.RolledBack, rec.BackupDir)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive
// limit returns all records.
func (s *SQLiteStore) Recent(limit int) ([]*molt.AttemptRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, from_version, to_version, phase, outcome, error, rolled_back, backup_dir
		FROM attempts
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	var records []*molt.AttemptRecord
	for rows.Next() {
		rec := &molt.AttemptRecord{}
		err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.FinishedAt, &rec.FromVersion, &rec.ToVersion,
			&rec.Phase, &rec.Outcome, &rec.Error, &rec.RolledBack, &rec.BackupDir)
		if err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	return records, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ molt.HistoryStore = (*SQLiteStore)(nil)
