// Package hostproc identifies the running host application and starts
// it again after a swap. The applier must replace files belonging to a
// live executable, so the updater runs as a separate process: it waits
// for the host (found by PID) to exit, and relaunches it fully detached
// when the swap is done.
package hostproc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadPIDFile parses a pidfile written by the host application.
// A missing file means the host is not running; callers get pid 0.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading pidfile: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("pidfile %s: malformed pid %q", path, raw)
	}
	if pid < 0 {
		return 0, fmt.Errorf("pidfile %s: negative pid %d", path, pid)
	}
	return pid, nil
}
