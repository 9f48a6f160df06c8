package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesPIDAndAddress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := Acquire(dir, "10.0.0.7:30004")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	if filepath.Base(l.Path()) != "controller-10.0.0.7_30004.lock" {
		t.Fatalf("unexpected lock path %q", l.Path())
	}
	b, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(string(b)), "10.0.0.7:30004") {
		t.Fatalf("lock file = %q, want address", b)
	}
	pid, ok := Holder(l.Path())
	if !ok || pid != os.Getpid() {
		t.Fatalf("Holder = %d, %v; want %d", pid, ok, os.Getpid())
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := Acquire(dir, "127.0.0.1:30004")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = Acquire(dir, "127.0.0.1:30004")
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire error = %v, want ErrHeld", err)
	}

	other, err := Acquire(dir, "127.0.0.1:30005")
	if err != nil {
		t.Fatalf("Acquire for a different controller: %v", err)
	}
	_ = other.Release()

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := Acquire(dir, "127.0.0.1:30004")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *ControllerLock
	if err := l.Release(); err != nil {
		t.Fatalf("Release on nil lock: %v", err)
	}
}
