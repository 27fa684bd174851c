//go:build !linux

package workload

// RootLock 在非 Linux 平台上不可用，调用方需自行保证串行。
type RootLock struct{}

// AcquireRootLock 在非 Linux 平台上总是返回 ErrLockUnavailable。
func AcquireRootLock(Layout) (*RootLock, error) {
	return nil, ErrLockUnavailable
}

// Release 为空操作。
func (l *RootLock) Release() error { return nil }
