//go:build unix

package hostproc

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"molt/internal/molt"
)

// PIDProcess is the host application identified by its PID. PID 0 means
// the host already exited; such a process is never running and needs no
// signal.
type PIDProcess struct {
	PID int
}

// SignalQuit sends SIGTERM, the cooperative shutdown request. A process
// that is already gone is not an error.
func (p PIDProcess) SignalQuit() error {
	if p.PID <= 0 {
		return nil
	}
	proc, err := os.FindProcess(p.PID)
	if err != nil {
		return fmt.Errorf("finding pid %d: %w", p.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("signalling pid %d: %w", p.PID, err)
	}
	return nil
}

// Running probes the process with signal 0.
func (p PIDProcess) Running() (bool, error) {
	if p.PID <= 0 {
		return false, nil
	}
	proc, err := os.FindProcess(p.PID)
	if err != nil {
		return false, fmt.Errorf("finding pid %d: %w", p.PID, err)
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		// Alive but owned by someone else.
		return true, nil
	}
	return false, fmt.Errorf("probing pid %d: %w", p.PID, err)
}

// Compile-time check that PIDProcess implements molt.HostProcess
var _ molt.HostProcess = PIDProcess{}
