//go:build !windows

package sandbox

import (
	"errors"
	"os"
	"strings"
	"syscall"
)

// isProcessRunning probes a PID with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false
	}
	// EPERM means the process exists but belongs to someone else.
	return strings.Contains(err.Error(), "operation not permitted")
}
