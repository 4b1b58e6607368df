package lockfile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestTryAcquireExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	first, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if _, err := TryAcquire(path); !errors.Is(err, ErrLocked) {
		t.Errorf("second TryAcquire: got %v, want ErrLocked", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	again, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire after release failed: %v", err)
	}
	_ = again.Release()
	_ = again.Release()
}

func TestAcquireTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	held, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	defer held.Release()

	start := time.Now()
	_, err = Acquire(context.Background(), path, 250*time.Millisecond)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Acquire: got %v, want ErrLocked", err)
	}
	if time.Since(start) < 200*time.Millisecond {
		t.Errorf("Acquire returned before the timeout")
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	held, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = held.Release()
	}()
	l, err := Acquire(context.Background(), path, 2*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.Path() != path {
		t.Errorf("Path = %q", l.Path())
	}
	_ = l.Release()
}
