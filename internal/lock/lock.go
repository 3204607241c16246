package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/starload/starload/internal/config"
)

const DefaultPath = "~/.starload/starload.lock"

// ErrHeld is returned by Acquire when a live process owns the lock.
var ErrHeld = errors.New("lock held")

var errCorrupt = errors.New("corrupt lock file")

// Owner describes the process holding the lock.
type Owner struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
}

// Acquire records the current process as lock owner. A lock left behind by a
// dead process is taken over.
func Acquire(path, command string) error {
	path = resolve(path)

	if owner, err := read(path); err == nil && isProcessRunning(owner.PID) {
		return fmt.Errorf("%w: starload %s is already running (PID %d since %s)",
			ErrHeld, owner.Command, owner.PID, owner.StartedAt.Format(time.RFC3339))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	data, err := json.Marshal(Owner{PID: os.Getpid(), Command: command, StartedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding lock: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Release removes the lock file.
func Release(path string) error {
	err := os.Remove(resolve(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld reports whether a running process holds the lock, and which.
func IsHeld(path string) (bool, *Owner, error) {
	owner, err := read(resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		if errors.Is(err, errCorrupt) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return isProcessRunning(owner.PID), owner, nil
}

func resolve(path string) string {
	if path == "" {
		return config.ExpandHome(DefaultPath)
	}
	return path
}

func read(path string) (*Owner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return &o, nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
