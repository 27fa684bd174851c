package workload

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// PackKind 描述 pack 的内容形态，决定磁盘上是单文件还是目录树。
type PackKind string

const (
	PackKindSdk       PackKind = "Sdk"
	PackKindFramework PackKind = "Framework"
	PackKindTemplate  PackKind = "Template"
	PackKindLibrary   PackKind = "Library"
)

// ParsePackKind 大小写不敏感地解析配置中的 Kind 字段。
func ParsePackKind(raw string) (PackKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sdk":
		return PackKindSdk, nil
	case "framework":
		return PackKindFramework, nil
	case "template":
		return PackKindTemplate, nil
	case "library":
		return PackKindLibrary, nil
	default:
		return "", fmt.Errorf("unknown pack kind %q", raw)
	}
}

// IsSingleFile 表示 Template/Library 类型的 pack 以单个文件存放。
func (k PackKind) IsSingleFile() bool {
	return k == PackKindTemplate || k == PackKindLibrary
}

// SdkFeatureBand 是共享 pack 缓存的一组 SDK 安装的不透明作用域键。
type SdkFeatureBand string

func (b SdkFeatureBand) String() string { return string(b) }

// WorkloadID 标识一个由若干 pack 组成的 workload。
type WorkloadID string

func (w WorkloadID) String() string { return string(w) }

// PackInfo 由外部 Resolver 产出，本包只读取不持久化。
type PackInfo struct {
	ID      string
	Version string
	Kind    PackKind
	Path    string
}

func (p PackInfo) String() string {
	return p.ID + "@" + p.Version
}

// ValidVersion 判断版本号是否为合法语义化版本（允许省略 v 前缀）。
func ValidVersion(version string) bool {
	if version == "" {
		return false
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return semver.IsValid(version)
}

// Downloader 负责从上游拉取 pack 归档并解压，错误统一视为 DownloadFailure。
type Downloader interface {
	DownloadPackage(id, version string) (archivePath string, err error)
	ExtractPackage(archivePath, destDir string) (files []string, err error)
}

// Resolver 将 workload 映射到 pack，并提供 pack 的元数据。
type Resolver interface {
	GetPacksInWorkload(id WorkloadID) []string
	TryGetPackInfo(packID string) (PackInfo, bool)
}

// Reporter 是面向用户的逐行状态输出，仅用于提示，不影响控制流。
type Reporter interface {
	WriteLine(format string, args ...any)
}

type nopReporter struct{}

func (nopReporter) WriteLine(string, ...any) {}
