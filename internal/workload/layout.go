package workload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	metadataDirName          = "metadata"
	workloadsDirName         = "workloads"
	installedWorkloadDirName = "InstalledWorkloads"
	installedPacksDirName    = "InstalledPacks"
	installedPacksVersion    = "v1"
	tempDirName              = "temp"
	lockFileName             = ".workpack.lock"
)

// Layout 描述安装根目录下的磁盘布局：
//
//	<root>/metadata/workloads/<band>/InstalledWorkloads/<workloadId>
//	<root>/metadata/workloads/InstalledPacks/v1/<packId>/<packVersion>/<band>
//	<root>/metadata/temp/
//
// pack 正文的位置由 PackInfo.Path 决定，通常位于 PacksRoot 之下。
type Layout struct {
	Root      string
	PacksRoot string
}

// NewLayout 以 root 为安装根目录；packsRoot 为空时默认 <root>/packs。
func NewLayout(root, packsRoot string) (Layout, error) {
	if root == "" {
		return Layout{}, errors.New("install root required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve install root: %w", err)
	}
	if packsRoot == "" {
		packsRoot = filepath.Join(absRoot, "packs")
	}
	absPacks, err := filepath.Abs(packsRoot)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve packs root: %w", err)
	}
	return Layout{Root: absRoot, PacksRoot: absPacks}, nil
}

// WorkloadMetadataDir 返回 metadata/workloads。
func (l Layout) WorkloadMetadataDir() string {
	return filepath.Join(l.Root, metadataDirName, workloadsDirName)
}

// TempDir 返回下载/解压使用的临时目录。
func (l Layout) TempDir() string {
	return filepath.Join(l.Root, metadataDirName, tempDirName)
}

// InstalledPacksDir 返回 pack 记录的根目录。
func (l Layout) InstalledPacksDir() string {
	return filepath.Join(l.WorkloadMetadataDir(), installedPacksDirName, installedPacksVersion)
}

func (l Layout) packVersionRecordDir(id, version string) string {
	return filepath.Join(l.InstalledPacksDir(), id, version)
}

func (l Layout) packRecordPath(id, version string, band SdkFeatureBand) string {
	return filepath.Join(l.packVersionRecordDir(id, version), band.String())
}

func (l Layout) installedWorkloadsDir(band SdkFeatureBand) string {
	return filepath.Join(l.WorkloadMetadataDir(), band.String(), installedWorkloadDirName)
}

func (l Layout) workloadRecordPath(id WorkloadID, band SdkFeatureBand) string {
	return filepath.Join(l.installedWorkloadsDir(band), id.String())
}

// LockPath 返回安装根目录级别的进程间锁文件。
func (l Layout) LockPath() string {
	return filepath.Join(l.WorkloadMetadataDir(), lockFileName)
}

// DefaultPackPath 按原始布局计算 pack 正文位置：单文件 pack 位于
// <root>/template-packs/<id>.<version>.nupkg，其余位于 <packsRoot>/<id>/<version>。
func (l Layout) DefaultPackPath(id, version string, kind PackKind) string {
	if kind.IsSingleFile() {
		name := strings.ToLower(id) + "." + strings.ToLower(version) + ".nupkg"
		return filepath.Join(l.Root, "template-packs", name)
	}
	return filepath.Join(l.PacksRoot, id, version)
}

// validSegment 拒绝会逃逸出记录目录的名称。
func validSegment(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid path segment %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("path segment %q contains a separator", name)
	}
	return nil
}
