//go:build unix

package hostproc

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"syscall"

	"molt/internal/molt"
)

// ExecLauncher starts the host application detached from the updater:
// its own session, no inherited stdio, released immediately so the
// updater can exit without reaping it.
type ExecLauncher struct {
	// Dir is the installation directory. Relative launch paths resolve
	// against it and the child starts with it as working directory.
	Dir string
}

func (l ExecLauncher) Launch(spec molt.RelaunchSpec) (int, error) {
	if spec.Path == "" {
		return 0, fmt.Errorf("launch spec has no path")
	}
	path := spec.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Dir, path)
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = l.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", path, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("releasing pid %d: %w", pid, err)
	}
	return pid, nil
}

// Compile-time check that ExecLauncher implements molt.Launcher
var _ molt.Launcher = ExecLauncher{}
