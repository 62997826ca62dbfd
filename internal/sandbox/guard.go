package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LockFileName is the ownership marker inside a sandbox root. Two processes
// mounting the same root would fight over files, so the root is exclusive.
const LockFileName = ".devroom.lock"

// ErrSandboxBusy is returned when another live process holds the sandbox.
var ErrSandboxBusy = errors.New("sandbox is in use by another process")

// A lock older than this is reclaimed even if its PID looks alive; PIDs get
// recycled.
const lockMaxAge = time.Hour

// Guard is the exclusive claim one process holds on a sandbox root.
type Guard struct {
	path    string
	file    *os.File
	project string
	locked  bool
}

// NewGuard prepares a guard for the sandbox at root. Nothing is locked until
// Acquire.
func NewGuard(root string) *Guard {
	return &Guard{path: filepath.Join(root, LockFileName)}
}

// Acquire claims the sandbox for the given project. A marker left behind by
// a dead or ancient process is reclaimed; a marker held by a live process
// fails with ErrSandboxBusy.
func (g *Guard) Acquire(project string) error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	file, err := os.OpenFile(g.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if os.IsExist(err) {
		holder, stale := g.inspect()
		if !stale {
			return fmt.Errorf("%w: %s", ErrSandboxBusy, holder)
		}
		if err := os.Remove(g.path); err != nil {
			return fmt.Errorf("failed to reclaim stale sandbox lock: %w", err)
		}
		file, err = os.OpenFile(g.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("failed to relock sandbox: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to lock sandbox: %w", err)
	}

	g.file = file
	g.project = project
	g.locked = true

	record := fmt.Sprintf("%d\n%s\n%s\n", os.Getpid(), project, time.Now().Format(time.RFC3339))
	if _, err := file.WriteString(record); err != nil {
		g.Release()
		return fmt.Errorf("failed to write sandbox lock: %w", err)
	}
	if err := file.Sync(); err != nil {
		g.Release()
		return fmt.Errorf("failed to sync sandbox lock: %w", err)
	}
	return nil
}

// inspect reads the existing marker and decides whether it still protects a
// live owner. Anything unreadable counts as stale.
func (g *Guard) inspect() (holder string, stale bool) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return "", true
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return "", true
	}

	if alive := isProcessRunning(pid); !alive {
		return "", true
	}

	if len(lines) >= 3 {
		if stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[2])); err == nil {
			if time.Since(stamp) > lockMaxAge {
				return "", true
			}
		}
	}

	holder = fmt.Sprintf("pid %d", pid)
	if len(lines) >= 2 && strings.TrimSpace(lines[1]) != "" {
		holder += ", project " + strings.TrimSpace(lines[1])
	}
	return holder, false
}

// Release gives the sandbox up and removes the marker. Safe to call when the
// guard never acquired.
func (g *Guard) Release() error {
	if !g.locked {
		return nil
	}

	var err error
	if g.file != nil {
		err = g.file.Close()
		g.file = nil
	}
	if removeErr := os.Remove(g.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err != nil {
			err = fmt.Errorf("%v; failed to remove sandbox lock: %w", err, removeErr)
		} else {
			err = fmt.Errorf("failed to remove sandbox lock: %w", removeErr)
		}
	}

	g.locked = false
	return err
}

// Held reports whether this guard currently owns the sandbox.
func (g *Guard) Held() bool {
	return g.locked
}

// Project returns the project recorded at acquisition.
func (g *Guard) Project() string {
	return g.project
}
