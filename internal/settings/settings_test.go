package settings_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"molt/internal/settings"
	"molt/internal/testutil"
)

func TestSettings_ShouldCheck(t *testing.T) {
	t.Parallel()

	t.Run("true when never checked", func(t *testing.T) {
		t.Parallel()
		s := settings.Default("acme/editor")
		if !s.ShouldCheck(time.Now()) {
			t.Error("ShouldCheck() = false for fresh settings")
		}
	})

	t.Run("false immediately after RecordCheck", func(t *testing.T) {
		t.Parallel()
		clock := testutil.FixedClock()
		s := settings.Default("acme/editor")

		s.RecordCheck(clock.Now())

		if s.ShouldCheck(clock.Now()) {
			t.Error("ShouldCheck() = true immediately after RecordCheck()")
		}
	})

	t.Run("true once the interval elapses", func(t *testing.T) {
		t.Parallel()
		clock := testutil.FixedClock()
		s := settings.Default("acme/editor")
		s.CheckIntervalHours = 24

		s.RecordCheck(clock.Now())

		clock.Advance(23 * time.Hour)
		if s.ShouldCheck(clock.Now()) {
			t.Error("ShouldCheck() = true before interval elapsed")
		}

		clock.Advance(time.Hour)
		if !s.ShouldCheck(clock.Now()) {
			t.Error("ShouldCheck() = false after interval elapsed")
		}
	})

	t.Run("zero interval falls back to default", func(t *testing.T) {
		t.Parallel()
		s := settings.Default("acme/editor")
		s.CheckIntervalHours = 0

		if got, want := s.Interval(), 24*time.Hour; got != want {
			t.Errorf("Interval() = %v, want %v", got, want)
		}
	})
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.toml"))

	s := settings.Default("acme/editor")
	s.AuthToken = "secret-token"
	s.AutoApply = true
	s.RecordCheck(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))

	if err := store.Save(s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Repository != "acme/editor" {
		t.Errorf("Repository = %q, want acme/editor", got.Repository)
	}
	if got.AuthToken != "secret-token" {
		t.Errorf("AuthToken = %q, want secret-token", got.AuthToken)
	}
	if !got.AutoApply {
		t.Error("AutoApply = false, want true")
	}
	if !got.LastCheck.Equal(s.LastCheck) {
		t.Errorf("LastCheck = %v, want %v", got.LastCheck, s.LastCheck)
	}
}

func TestFileStore_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "absent.toml"))

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.CheckIntervalHours != settings.DefaultCheckIntervalHours {
		t.Errorf("CheckIntervalHours = %d, want %d", got.CheckIntervalHours, settings.DefaultCheckIntervalHours)
	}
	if !got.LastCheck.IsZero() {
		t.Errorf("LastCheck = %v, want zero", got.LastCheck)
	}
}

func TestFileStore_SaveRestrictsPermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("file modes not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "settings.toml")
	store := settings.NewFileStore(path)

	s := settings.Default("acme/editor")
	s.AuthToken = "secret"
	if err := store.Save(s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("settings file mode = %o, want 0600", perm)
	}
}

func TestFileStore_RejectsNewerSchema(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.toml")
	content := "schema_version = 99\nrepository = \"acme/editor\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := settings.NewFileStore(path).Load(); err == nil {
		t.Error("Load() expected error for newer schema version")
	}
}
