// Package settings holds the mutable update preferences that survive
// upgrades: the repository identity, credentials, the check-interval
// gate, and the auto-apply switch. The engine rewrites this file
// explicitly and never lets an update touch it.
package settings

import "time"

// SchemaVersion is the current settings file format version.
const SchemaVersion = 1

// DefaultCheckIntervalHours gates how often the registry is consulted.
const DefaultCheckIntervalHours = 24

// Settings is the persisted update-preferences record.
type Settings struct {
	SchemaVersion      int       `toml:"schema_version"`
	Repository         string    `toml:"repository"`
	AuthToken          string    `toml:"auth_token,omitempty"`
	CheckIntervalHours int       `toml:"check_interval_hours"`
	AutoApply          bool      `toml:"auto_apply"`
	LastCheck          time.Time `toml:"last_check"`
}

// Default returns settings for a fresh installation of the given
// repository: daily checks, auto-apply off, never checked.
func Default(repository string) *Settings {
	return &Settings{
		SchemaVersion:      SchemaVersion,
		Repository:         repository,
		CheckIntervalHours: DefaultCheckIntervalHours,
	}
}

// Interval returns the check interval as a duration, substituting the
// default when the configured value is zero or negative.
func (s *Settings) Interval() time.Duration {
	hours := s.CheckIntervalHours
	if hours <= 0 {
		hours = DefaultCheckIntervalHours
	}
	return time.Duration(hours) * time.Hour
}

// ShouldCheck reports whether enough time has passed since the last
// successful registry query. A never-checked installation always
// qualifies.
func (s *Settings) ShouldCheck(now time.Time) bool {
	if s.LastCheck.IsZero() {
		return true
	}
	return now.Sub(s.LastCheck) >= s.Interval()
}

// RecordCheck marks a successful registry query. The caller persists
// the change; persistence failures must not abort the pipeline.
func (s *Settings) RecordCheck(now time.Time) {
	s.LastCheck = now.UTC()
}
