package molt

import (
	"context"
	"time"

	"molt/internal/manifest"
)

// HostProcess is the running host application the applier must wait out
// before touching its files. Implementations identify the process by
// PID; a nil HostProcess in an ApplyRequest means the host has already
// exited.
type HostProcess interface {
	// SignalQuit requests a cooperative shutdown. It must not force-kill.
	SignalQuit() error
	// Running reports whether the process is still alive.
	Running() (bool, error)
}

// Launcher starts the host application as a fresh process, fully
// detached from the updater's lifetime.
type Launcher interface {
	Launch(spec RelaunchSpec) (pid int, err error)
}

// RelaunchSpec names the executable to start after a successful swap.
// Path is relative to the installation directory unless absolute. An
// empty Path disables relaunching.
type RelaunchSpec struct {
	Path string
	Args []string
}

// ApplyRequest carries everything the applier needs for one swap.
type ApplyRequest struct {
	InstallDir  string
	Plan        *manifest.DeltaPlan
	NewManifest *manifest.Manifest
	Staged      *StagedFiles
	Manifests   ManifestStore
	BackupRoot  string
	Host        HostProcess
	Launcher    Launcher
	Relaunch    RelaunchSpec
	ExitTimeout time.Duration
	Attempt     *Attempt
	Sink        EventSink
}

// ApplyReport is the applier's terminal report. BackupDir is set
// whenever a backup directory exists at return: retained for inspection
// after a rollback, cleaned up after success.
type ApplyReport struct {
	Relaunched bool
	RolledBack bool
	BackupDir  string
}

// Applier drives the swap state machine from Staged to a terminal
// phase.
//
// Error set: ErrHostBusy when the host does not exit in time (nothing
// touched, no backup created), IO errors during backup (aborted in
// place, nothing touched), IO errors during replacement or manifest
// write (rolled back from backup), and *UnrecoverableError when that
// rollback fails on a critical file. Cancellation via ctx is honored
// only until the backup begins; after that the machine runs to a
// terminal state regardless of ctx.
type Applier interface {
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyReport, error)
}

// ManifestStore loads and saves the installation's local manifest and
// can rebuild it from disk when absent.
type ManifestStore interface {
	// Load returns the local manifest, or an error wrapping
	// os.ErrNotExist when no manifest has been written yet.
	Load() (*manifest.Manifest, error)
	// Save writes the manifest atomically (temp file + rename).
	Save(m *manifest.Manifest) error
	// ComputeFromDisk hashes the installation tree into a fresh
	// manifest carrying the given version.
	ComputeFromDisk(version string, builtAt time.Time) (*manifest.Manifest, error)
}
