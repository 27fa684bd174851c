package workload

import (
	"errors"
	"fmt"
)

// 错误分类，调用方通过 errors.Is 判断具体类型。
var (
	ErrNotSupported       = errors.New("not supported")
	ErrDownloadFailure    = errors.New("download failure")
	ErrIOFailure          = errors.New("io failure")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrLockUnavailable    = errors.New("install root lock not available on this platform")
	errUnknownPack        = errors.New("pack not known to the resolver")
)

// OpError 记录失败的操作、涉及路径以及错误分类。
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (%v)", msg, e.Kind)
}

// Unwrap 同时暴露分类哨兵与底层原因。
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Kind: ErrIOFailure, Err: err}
}

func downloadError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDownloadFailure) {
		return err
	}
	return &OpError{Op: op, Path: target, Kind: ErrDownloadFailure, Err: err}
}

func invariantError(path, reason string) error {
	return &OpError{Op: "inspect record", Path: path, Kind: ErrInvariantViolation, Err: errors.New(reason)}
}
