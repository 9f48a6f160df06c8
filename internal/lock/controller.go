// Package lock keeps a single dispatcher attached to each controller.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattjoyce/portmark/internal/storage"
)

// ErrHeld is returned when another process is driving the same controller.
var ErrHeld = errors.New("controller already in use")

// ControllerLock is a flock(2)-held file naming the owning process. The lock
// lives as long as the file descriptor stays open.
type ControllerLock struct {
	path    string
	address string
	f       *os.File
}

// PathFor returns the lock file for a controller address inside dir.
func PathFor(dir, address string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "[", "", "]", "").Replace(address)
	return filepath.Join(dir, "controller-"+name+".lock")
}

// Acquire takes an exclusive non-blocking lock for address inside dir and
// records "pid address" in it.
func Acquire(dir, address string) (*ControllerLock, error) {
	if dir == "" || address == "" {
		return nil, fmt.Errorf("lock directory and controller address are required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := PathFor(dir, address)
	if err := storage.RequireLocal(path, "controller lock"); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			if pid, ok := Holder(path); ok {
				return nil, fmt.Errorf("%w: %s held by pid %d", ErrHeld, address, pid)
			}
			return nil, fmt.Errorf("%w: %s", ErrHeld, address)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	l := &ControllerLock{path: path, address: address, f: f}
	if err := l.stamp(); err != nil {
		_ = l.Release()
		return nil, err
	}
	return l, nil
}

func (l *ControllerLock) stamp() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(l.f, "%d %s\n", os.Getpid(), l.address); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

// Holder reads the pid recorded in a lock file.
func Holder(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return pid, true
}

func (l *ControllerLock) Path() string { return l.path }

func (l *ControllerLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
