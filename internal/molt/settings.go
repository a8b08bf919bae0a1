package molt

import "molt/internal/settings"

// SettingsStore persists the UpdateSettings record. Save failures are
// non-fatal to the pipeline: callers log a warning and continue without
// the gate memorized.
type SettingsStore interface {
	Load() (*settings.Settings, error)
	Save(s *settings.Settings) error
}
