package app_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"molt/internal/app"
	"molt/internal/config"
	"molt/internal/hostproc"
)

// newTestConfig builds a config whose every path lives under temp dirs,
// with backends that need no external services.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir(), t.TempDir())
	cfg.Registry.BaseURL = "http://registry.invalid"
	cfg.Database.Type = "memory"
	return cfg
}

func TestNewApp(t *testing.T) {
	t.Parallel()

	t.Run("wires a working app from config", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)

		a, err := app.NewApp(context.Background(), cfg)
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		defer a.Close()

		st, err := a.Status()
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if st.InstallDir != cfg.InstallDir {
			t.Errorf("Status().InstallDir = %q, want %q", st.InstallDir, cfg.InstallDir)
		}
		if st.CurrentVersion != "" {
			t.Errorf("Status().CurrentVersion = %q, want empty before first inventory", st.CurrentVersion)
		}

		recs, err := a.History(10)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("History() returned %d records, want none", len(recs))
		}
	})

	t.Run("requires install_dir", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		cfg.InstallDir = ""

		if _, err := app.NewApp(context.Background(), cfg); err == nil {
			t.Error("NewApp() accepted a config without install_dir")
		}
	})

	t.Run("requires base_url for http registry", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		cfg.Registry.BaseURL = ""

		if _, err := app.NewApp(context.Background(), cfg); err == nil {
			t.Error("NewApp() accepted an http registry without base_url")
		}
	})

	t.Run("rejects unknown registry type", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		cfg.Registry.Type = "ftp"

		if _, err := app.NewApp(context.Background(), cfg); err == nil {
			t.Error("NewApp() accepted an unknown registry type")
		}
	})

	t.Run("close is idempotent on resources", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)

		a, err := app.NewApp(context.Background(), cfg)
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		if err := a.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
}

func TestAppHost(t *testing.T) {
	t.Parallel()

	newApp := func(t *testing.T, cfg *config.Config) *app.App {
		t.Helper()
		a, err := app.NewApp(context.Background(), cfg)
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		t.Cleanup(func() { a.Close() })
		return a
	}

	t.Run("explicit pid wins over pidfile", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		pidfile := filepath.Join(t.TempDir(), "host.pid")
		if err := os.WriteFile(pidfile, []byte("9999"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg.Host.PIDFile = pidfile
		a := newApp(t, cfg)

		host, err := a.Host(os.Getpid())
		if err != nil {
			t.Fatalf("Host() error = %v", err)
		}
		proc, ok := host.(hostproc.PIDProcess)
		if !ok {
			t.Fatalf("Host() = %T, want hostproc.PIDProcess", host)
		}
		if proc.PID != os.Getpid() {
			t.Errorf("Host() resolved pid %d, want %d from the flag", proc.PID, os.Getpid())
		}
	})

	t.Run("falls back to pidfile", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		pidfile := filepath.Join(t.TempDir(), "host.pid")
		want := os.Getpid()
		if err := os.WriteFile(pidfile, []byte(strconv.Itoa(want)+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg.Host.PIDFile = pidfile
		a := newApp(t, cfg)

		host, err := a.Host(0)
		if err != nil {
			t.Fatalf("Host() error = %v", err)
		}
		proc, ok := host.(hostproc.PIDProcess)
		if !ok {
			t.Fatalf("Host() = %T, want hostproc.PIDProcess", host)
		}
		if proc.PID != want {
			t.Errorf("Host() resolved pid %d, want %d from the pidfile", proc.PID, want)
		}
	})

	t.Run("missing pidfile means host already exited", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		cfg.Host.PIDFile = filepath.Join(t.TempDir(), "gone.pid")
		a := newApp(t, cfg)

		host, err := a.Host(0)
		if err != nil {
			t.Fatalf("Host() error = %v", err)
		}
		if host != nil {
			t.Errorf("Host() = %v, want nil for a missing pidfile", host)
		}
	})

	t.Run("malformed pidfile is an error", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		pidfile := filepath.Join(t.TempDir(), "host.pid")
		if err := os.WriteFile(pidfile, []byte("not-a-pid"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg.Host.PIDFile = pidfile
		a := newApp(t, cfg)

		if _, err := a.Host(0); err == nil {
			t.Error("Host() accepted a malformed pidfile")
		}
	})

	t.Run("no pid configured anywhere", func(t *testing.T) {
		t.Parallel()
		cfg := newTestConfig(t)
		a := newApp(t, cfg)

		host, err := a.Host(0)
		if err != nil {
			t.Fatalf("Host() error = %v", err)
		}
		if host != nil {
			t.Errorf("Host() = %v, want nil when nothing names a pid", host)
		}
	})
}
