package molt

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classes callers branch on with errors.Is.
var (
	// ErrAlreadyInProgress is returned when an update attempt is started
	// while another attempt owns the in-flight slot.
	ErrAlreadyInProgress = errors.New("update already in progress")

	// ErrNetwork wraps transport-level failures talking to the registry
	// or downloading an archive. Retryable.
	ErrNetwork = errors.New("network failure")

	// ErrUnauthorized means the registry rejected the configured
	// credentials. Not retryable until the token is fixed.
	ErrUnauthorized = errors.New("registry rejected credentials")

	// ErrRegistryEmpty means the registry answered but listed no
	// releases for the repository.
	ErrRegistryEmpty = errors.New("registry has no releases")

	// ErrHostBusy means the host application did not exit within the
	// shutdown window. The installation has not been touched.
	ErrHostBusy = errors.New("host application still running")
)

// HashMismatchError reports a staged file whose content hash does not
// match the remote manifest. The attempt is aborted and nothing from the
// staging area is handed to the applier.
type HashMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: manifest says %s, archive delivered %s", e.Path, shortHash(e.Want), shortHash(e.Got))
}

// UnrecoverableError means a rollback could not restore a critical file.
// The installation may be inconsistent; BackupDir names the preserved
// backup for manual repair.
type UnrecoverableError struct {
	Path      string
	BackupDir string
	Err       error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("rollback failed for critical file %s (backup preserved at %s): %v", e.Path, e.BackupDir, e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure class is worth retrying on a
// later attempt without operator intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var unrecoverable *UnrecoverableError
	if errors.As(err, &unrecoverable) {
		return false
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrAlreadyInProgress):
		return false
	}
	return true
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
