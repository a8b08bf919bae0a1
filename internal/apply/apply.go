// Package apply drives the swap state machine that turns a verified
// staged delta into the live installation: wait for the host process to
// exit, back up every file the plan touches, replace files, write the
// new manifest, relaunch. Any failure after backup rolls the live tree
// back from the backup just taken.
package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"molt/internal/fs"
	"molt/internal/manifest"
	"molt/internal/molt"
)

// DefaultPollInterval is how often the host process is probed while
// waiting for it to exit.
const DefaultPollInterval = 250 * time.Millisecond

// Config carries the Applier's dependencies.
type Config struct {
	Logger molt.Logger
	// PollInterval overrides how often the host process is probed.
	PollInterval time.Duration
}

// Applier implements molt.Applier against the real filesystem.
type Applier struct {
	logger       molt.Logger
	pollInterval time.Duration

	// Seams for deterministic tests.
	sleep    func(time.Duration)
	copyFile func(src, dst string) error
}

// New creates an Applier.
func New(cfg Config) *Applier {
	a := &Applier{
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		sleep:        time.Sleep,
		copyFile:     fs.CopyFile,
	}
	if a.logger == nil {
		a.logger = molt.NewNopLogger()
	}
	if a.pollInterval <= 0 {
		a.pollInterval = DefaultPollInterval
	}
	return a
}

// Apply runs the swap from Staged to a terminal phase. See
// molt.Applier for the error contract.
func (a *Applier) Apply(ctx context.Context, req *molt.ApplyRequest) (*molt.ApplyReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	at, sink := req.Attempt, req.Sink
	if !at.Phase.CanTransition(molt.PhaseAwaitingExit) {
		return nil, fmt.Errorf("cannot apply from phase %s", at.Phase)
	}
	report := &molt.ApplyReport{}

	at.Advance(molt.PhaseAwaitingExit, sink)
	if err := a.awaitExit(ctx, req); err != nil {
		return nil, err
	}

	// Last cancellation point: from here the machine runs to a terminal
	// state so the installation is never left half-modified.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("attempt cancelled: %w", err)
	}

	at.Advance(molt.PhaseBackingUp, sink)
	backup, err := a.backUp(req)
	if err != nil {
		// A partial backup cannot guarantee rollback; abort with the
		// live tree untouched.
		os.RemoveAll(filepath.Join(req.BackupRoot, at.ID))
		return nil, fmt.Errorf("backing up: %w", err)
	}
	at.BackupDir = backup.dir
	report.BackupDir = backup.dir

	at.Advance(molt.PhaseReplacing, sink)
	if err := a.replace(req); err != nil {
		return a.rollback(req, backup, report, fmt.Errorf("replacing files: %w", err))
	}

	if err := req.Manifests.Save(req.NewManifest); err != nil {
		return a.rollback(req, backup, report, fmt.Errorf("writing manifest: %w", err))
	}
	at.Advance(molt.PhaseManifestWritten, sink)

	relaunched, err := a.relaunch(req)
	report.Relaunched = relaunched
	if err != nil {
		// The swap is complete and the manifest records the new version;
		// a dead launcher is not a reason to undo a consistent
		// installation. The backup stays for inspection.
		return report, fmt.Errorf("relaunching host: %w", err)
	}
	at.Advance(molt.PhaseRelaunched, sink)

	if err := os.RemoveAll(backup.dir); err != nil {
		a.logger.Warn("cleaning backup directory", "dir", backup.dir, "error", err)
	} else {
		report.BackupDir = ""
	}
	return report, nil
}

func validateRequest(req *molt.ApplyRequest) error {
	switch {
	case req.InstallDir == "":
		return fmt.Errorf("apply requires an install dir")
	case req.BackupRoot == "":
		return fmt.Errorf("apply requires a backup root")
	case req.Plan == nil:
		return fmt.Errorf("apply requires a delta plan")
	case req.NewManifest == nil:
		return fmt.Errorf("apply requires the new manifest")
	case req.Staged == nil:
		return fmt.Errorf("apply requires staged files")
	case req.Manifests == nil:
		return fmt.Errorf("apply requires a manifest store")
	case req.Attempt == nil:
		return fmt.Errorf("apply requires an attempt")
	}
	return nil
}

// awaitExit asks the host process to quit and polls until it is gone or
// the timeout elapses. A nil host means it already exited.
func (a *Applier) awaitExit(ctx context.Context, req *molt.ApplyRequest) error {
	host := req.Host
	if host == nil {
		return nil
	}
	running, err := host.Running()
	if err != nil {
		return fmt.Errorf("probing host process: %w", err)
	}
	if !running {
		return nil
	}

	if err := host.SignalQuit(); err != nil {
		return fmt.Errorf("requesting host shutdown: %w", err)
	}
	a.logger.Info("waiting for host process to exit")

	timeout := req.ExitTimeout
	if timeout <= 0 {
		timeout = molt.DefaultExitTimeout
	}
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("attempt cancelled: %w", err)
		}
		running, err := host.Running()
		if err != nil {
			return fmt.Errorf("probing host process: %w", err)
		}
		if !running {
			return nil
		}
		if waited >= timeout {
			return fmt.Errorf("%w: no exit within %s", molt.ErrHostBusy, timeout)
		}
		a.sleep(a.pollInterval)
		waited += a.pollInterval
	}
}

// backupSet records what was copied aside and where.
type backupSet struct {
	dir   string
	files []backedUpFile
}

type backedUpFile struct {
	path     string
	critical bool
}

// backUp copies every file the plan will overwrite or remove into
// <backup-root>/<attempt-id>/<path>. Files the manifest lists but the
// disk has lost are skipped with a warning; there is nothing to
// preserve for them.
func (a *Applier) backUp(req *molt.ApplyRequest) (*backupSet, error) {
	set := &backupSet{dir: filepath.Join(req.BackupRoot, req.Attempt.ID)}
	if err := os.MkdirAll(set.dir, 0700); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	targets := make([]manifest.FileEntry, 0, len(req.Plan.Update)+len(req.Plan.Remove))
	targets = append(targets, req.Plan.Update...)
	targets = append(targets, req.Plan.Remove...)

	for _, entry := range targets {
		live := filepath.Join(req.InstallDir, filepath.FromSlash(entry.Path))
		if _, err := os.Stat(live); errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("file listed in manifest is missing on disk, nothing to back up", "path", entry.Path)
			continue
		}
		dst := filepath.Join(set.dir, filepath.FromSlash(entry.Path))
		if err := a.copyFile(live, dst); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", entry.Path, err)
		}
		set.files = append(set.files, backedUpFile{path: entry.Path, critical: entry.Critical})
	}
	return set, nil
}

// replace applies the plan to the live tree: additions and updates
// first, removals last, so an interruption leaves a superset of the
// required files rather than a hole.
func (a *Applier) replace(req *molt.ApplyRequest) error {
	for _, entry := range req.Plan.Fetched() {
		staged, err := req.Staged.Path(entry.Path)
		if err != nil {
			return err
		}
		live := filepath.Join(req.InstallDir, filepath.FromSlash(entry.Path))
		if err := a.copyFile(staged, live); err != nil {
			return fmt.Errorf("installing %s: %w", entry.Path, err)
		}
	}
	for _, entry := range req.Plan.Remove {
		live := filepath.Join(req.InstallDir, filepath.FromSlash(entry.Path))
		if err := os.Remove(live); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", entry.Path, err)
		}
	}
	return nil
}

// rollback restores every backed-up file. Added files stay in place;
// they were not present before and never collide with restored paths.
// Failing to restore a critical file escalates to UnrecoverableError
// with the backup preserved for manual recovery; the backup directory
// is also retained after a successful rollback for inspection.
func (a *Applier) rollback(req *molt.ApplyRequest, backup *backupSet, report *molt.ApplyReport, cause error) (*molt.ApplyReport, error) {
	at, sink := req.Attempt, req.Sink
	at.Advance(molt.PhaseRollingBack, sink)
	a.logger.Warn("update failed, rolling back", "error", cause)

	for _, f := range backup.files {
		src := filepath.Join(backup.dir, filepath.FromSlash(f.path))
		live := filepath.Join(req.InstallDir, filepath.FromSlash(f.path))
		if err := a.copyFile(src, live); err != nil {
			if f.critical {
				return report, &molt.UnrecoverableError{Path: f.path, BackupDir: backup.dir, Err: err}
			}
			a.logger.Error("rollback could not restore file", "path", f.path, "error", err)
		}
	}

	at.Advance(molt.PhaseRolledBack, sink)
	report.RolledBack = true
	a.logger.Info("rollback complete", "backup_dir", backup.dir)
	return report, cause
}

// relaunch starts the host again when a relaunch spec is configured.
func (a *Applier) relaunch(req *molt.ApplyRequest) (bool, error) {
	if req.Relaunch.Path == "" {
		return false, nil
	}
	if req.Launcher == nil {
		return false, fmt.Errorf("relaunch configured but no launcher available")
	}
	pid, err := req.Launcher.Launch(req.Relaunch)
	if err != nil {
		return false, err
	}
	a.logger.Info("host relaunched", "pid", pid, "path", req.Relaunch.Path)
	return true, nil
}

// Compile-time check that Applier implements molt.Applier
var _ molt.Applier = (*Applier)(nil)
