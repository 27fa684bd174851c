//go:build linux

package workload

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// RootLock 在安装根目录的锁文件上持有排他 flock，用于满足“同一安装根目录
// 同时至多一个变更操作”的要求。锁文件为空文件，进程退出后内核自动释放。
type RootLock struct {
	file *os.File
}

// AcquireRootLock 阻塞直到获得 layout 对应安装根目录的排他锁。
func AcquireRootLock(layout Layout) (*RootLock, error) {
	return acquireRootLockAt(layout.LockPath())
}

func acquireRootLockAt(path string) (*RootLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &RootLock{file: f}, nil
}

// Release 释放锁，可重复调用。
func (l *RootLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("flock unlock: %w", unlockErr)
	}
	return closeErr
}
