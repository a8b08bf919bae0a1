package molt

import "time"

// AttemptRecord is the durable trace of one finished update attempt.
type AttemptRecord struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	FromVersion string
	ToVersion   string
	// Phase is the last phase the attempt reached (Phase.String form).
	Phase   string
	Outcome string
	// Error holds the failure message for failed attempts, empty
	// otherwise.
	Error      string
	RolledBack bool
	// BackupDir is set when a backup directory was retained for manual
	// recovery.
	BackupDir string
}

// HistoryStore persists attempt records.
type HistoryStore interface {
	// RecordAttempt appends one finished attempt.
	RecordAttempt(rec *AttemptRecord) error
	// Recent returns up to limit records, newest first.
	Recent(limit int) ([]*AttemptRecord, error)
	Close() error
}
