package workload

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const (
	moveAttempts = 3
	moveBackoff  = 50 * time.Millisecond
)

// PackStore 管理 pack 正文的存在性、落盘与删除，按 Kind 区分单文件与目录树。
type PackStore struct {
	rename func(oldPath, newPath string) error
	sleep  func(time.Duration)
}

// NewPackStore 返回基于本地文件系统的 PackStore。
func NewPackStore() *PackStore {
	return &PackStore{rename: os.Rename, sleep: time.Sleep}
}

// Exists 对单文件 pack 检查文件，对目录 pack 检查目录。
func (s *PackStore) Exists(pack PackInfo) bool {
	info, err := os.Stat(pack.Path)
	if err != nil {
		return false
	}
	if pack.Kind.IsSingleFile() {
		return info.Mode().IsRegular()
	}
	return info.IsDir()
}

// Place 将 sourcePath 放到 pack.Path。单文件 pack 通过同目录临时文件 + rename
// 写入；目录 pack 要求 sourcePath 已完整解压，最后一步整体移动到位，
// 因此 pack.Path 上不会出现半解压的目录树。
func (s *PackStore) Place(pack PackInfo, sourcePath string) error {
	if pack.Path == "" {
		return ioError("place pack", pack.String(), errors.New("pack path required"))
	}
	if err := os.MkdirAll(filepath.Dir(pack.Path), 0o755); err != nil {
		return ioError("create pack parent", filepath.Dir(pack.Path), err)
	}
	if pack.Kind.IsSingleFile() {
		return s.placeFile(pack.Path, sourcePath)
	}
	return s.placeTree(pack.Path, sourcePath)
}

func (s *PackStore) placeFile(dst, src string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".pack-*")
	if err != nil {
		return ioError("create temp file", filepath.Dir(dst), err)
	}
	tmpName := tmp.Name()

	err = copyInto(tmp, src)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return ioError("copy pack file", src, err)
	}

	if err := s.move(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return ioError("move pack file", dst, err)
	}
	return nil
}

func (s *PackStore) placeTree(dst, src string) error {
	err := s.move(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return ioError("move pack directory", dst, err)
	}

	// 跨卷：先复制到目标同级的临时目录，再 rename 保证目标只在完整时出现。
	staging, mkErr := os.MkdirTemp(filepath.Dir(dst), ".pack-*")
	if mkErr != nil {
		return ioError("create staging directory", filepath.Dir(dst), mkErr)
	}
	if cpErr := copyTree(src, staging); cpErr != nil {
		os.RemoveAll(staging)
		return ioError("copy pack directory", src, cpErr)
	}
	if mvErr := s.move(staging, dst); mvErr != nil {
		os.RemoveAll(staging)
		return ioError("move pack directory", dst, mvErr)
	}
	return nil
}

// move 在权限类的瞬时失败上做有限重试（杀毒软件/索引器短暂占用文件时常见）。
func (s *PackStore) move(src, dst string) error {
	var err error
	for attempt := 1; attempt <= moveAttempts; attempt++ {
		err = s.rename(src, dst)
		if err == nil || !errors.Is(err, fs.ErrPermission) {
			return err
		}
		s.sleep(time.Duration(attempt) * moveBackoff)
	}
	return err
}

// Delete 删除 pack 正文。目录 pack 删除后会顺带清理已空的 pack id 目录，
// 避免 id/version 层级残留空目录。
func (s *PackStore) Delete(pack PackInfo) error {
	if !s.Exists(pack) {
		return nil
	}
	if pack.Kind.IsSingleFile() {
		if err := os.Remove(pack.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ioError("delete pack file", pack.Path, err)
		}
		return nil
	}

	if err := os.RemoveAll(pack.Path); err != nil {
		return ioError("delete pack directory", pack.Path, err)
	}
	if err := removeIfEmpty(filepath.Dir(pack.Path)); err != nil {
		return ioError("prune pack id directory", filepath.Dir(pack.Path), err)
	}
	return nil
}

func copyInto(dst io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}
