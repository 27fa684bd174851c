//go:build linux

package workload

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRootLockSerializesHolders(t *testing.T) {
	layout, err := NewLayout(t.TempDir(), "")
	if err != nil {
		t.Fatalf("layout error: %v", err)
	}
	first, err := AcquireRootLock(layout)
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}

	acquired := make(chan *RootLock, 1)
	go func() {
		second, err := AcquireRootLock(layout)
		if err != nil {
			t.Errorf("second acquire error: %v", err)
			acquired <- nil
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired the lock while the first still holds it")
	case <-time.After(100 * time.Millisecond):
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release error: %v", err)
	}
	select {
	case second := <-acquired:
		if second == nil {
			t.Fatalf("second acquire failed")
		}
		if err := second.Release(); err != nil {
			t.Fatalf("release error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second holder never acquired the lock")
	}
}

func TestRootLockReleaseIsIdempotent(t *testing.T) {
	lock, err := acquireRootLockAt(filepath.Join(t.TempDir(), "nested", "test.lock"))
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release error: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second release error: %v", err)
	}
	var nilLock *RootLock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil release error: %v", err)
	}
}
