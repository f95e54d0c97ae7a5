package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquire_Exclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("lock file missing: %v", err)
	}

	if _, err := Acquire(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire: expected ErrLocked, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Errorf("second release should be a no-op: %v", err)
	}

	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquire_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "work")
	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = l.Release() }()

	if l.Path() != filepath.Join(dir, FileName) {
		t.Errorf("Path = %q", l.Path())
	}
}
