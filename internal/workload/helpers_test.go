package workload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeDownloader 在本地生成归档文件，记录调用次数并支持注入失败。
type fakeDownloader struct {
	dir          string
	downloads    int
	extracts     int
	failDownload error
	failExtract  error
}

func (d *fakeDownloader) DownloadPackage(id, version string) (string, error) {
	d.downloads++
	if d.failDownload != nil {
		return "", d.failDownload
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(d.dir, fmt.Sprintf("%s.%s.nupkg", id, version))
	if err := os.WriteFile(path, []byte("archive:"+id+"@"+version), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *fakeDownloader) ExtractPackage(archivePath, destDir string) ([]string, error) {
	d.extracts++
	partial := filepath.Join(destDir, "data", "lib.dll")
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(partial, []byte("lib"), 0o644); err != nil {
		return nil, err
	}
	if d.failExtract != nil {
		return nil, d.failExtract
	}
	manifest := filepath.Join(destDir, "manifest.json")
	if err := os.WriteFile(manifest, []byte("{}"), 0o644); err != nil {
		return nil, err
	}
	return []string{partial, manifest}, nil
}

// fakeResolver 以静态表模拟 workload → pack 映射。
type fakeResolver struct {
	packs     map[string]PackInfo
	workloads map[WorkloadID][]string
}

func (r *fakeResolver) GetPacksInWorkload(id WorkloadID) []string {
	return r.workloads[id]
}

func (r *fakeResolver) TryGetPackInfo(packID string) (PackInfo, bool) {
	pack, ok := r.packs[packID]
	return pack, ok
}

// recordingReporter 收集输出行，便于断言提示信息。
type recordingReporter struct {
	lines []string
}

func (r *recordingReporter) WriteLine(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// failingRecords 在写 pack 记录时返回错误，用于验证回滚。
type failingRecords struct {
	*FileRecordStore
	failWrite error
}

func (f *failingRecords) WritePackRecord(pack PackInfo, band SdkFeatureBand) error {
	if f.failWrite != nil {
		return ioError("write pack record", pack.String(), f.failWrite)
	}
	return f.FileRecordStore.WritePackRecord(pack, band)
}

type testEnv struct {
	layout     Layout
	records    *FileRecordStore
	packs      *PackStore
	downloader *fakeDownloader
	resolver   *fakeResolver
	reporter   *recordingReporter
	installer  *Installer
	gc         *GarbageCollector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	layout, err := NewLayout(t.TempDir(), "")
	if err != nil {
		t.Fatalf("layout error: %v", err)
	}
	env := &testEnv{
		layout:     layout,
		records:    NewFileRecordStore(layout),
		packs:      NewPackStore(),
		downloader: &fakeDownloader{dir: layout.TempDir()},
		resolver:   &fakeResolver{packs: map[string]PackInfo{}, workloads: map[WorkloadID][]string{}},
		reporter:   &recordingReporter{},
	}
	env.build(t, env.records)
	return env
}

// build 以指定 RecordStore 重建 installer 与 gc。
func (e *testEnv) build(t *testing.T, records RecordStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	installer, err := NewInstaller(InstallerOptions{
		Layout:     e.layout,
		Packs:      e.packs,
		Records:    records,
		Downloader: e.downloader,
		Resolver:   e.resolver,
		Reporter:   e.reporter,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("installer error: %v", err)
	}
	gc, err := NewGarbageCollector(GCOptions{
		Layout:   e.layout,
		Packs:    e.packs,
		Records:  records,
		Resolver: e.resolver,
		Reporter: e.reporter,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("gc error: %v", err)
	}
	e.installer = installer
	e.gc = gc
}

// pack 按默认布局构造 PackInfo 并登记到 resolver。
func (e *testEnv) pack(id, version string, kind PackKind) PackInfo {
	pack := PackInfo{ID: id, Version: version, Kind: kind, Path: e.layout.DefaultPackPath(id, version, kind)}
	e.resolver.packs[id] = pack
	return pack
}

func (e *testEnv) mustInstall(t *testing.T, pack PackInfo, band SdkFeatureBand) {
	t.Helper()
	if err := e.installer.Install(pack, band, false); err != nil {
		t.Fatalf("install %s for %s failed: %v", pack, band, err)
	}
}

func (e *testEnv) bands(t *testing.T, pack PackInfo) []SdkFeatureBand {
	t.Helper()
	bands, err := e.records.ListBandsWithPackRecord(pack)
	if err != nil {
		t.Fatalf("list bands error: %v", err)
	}
	return bands
}

// assertIntegrity 检查 Exists(p) ⟺ ListBandsWithPackRecord(p) ≠ ∅。
func (e *testEnv) assertIntegrity(t *testing.T, packs ...PackInfo) {
	t.Helper()
	for _, pack := range packs {
		exists := e.packs.Exists(pack)
		bands := e.bands(t, pack)
		if exists != (len(bands) > 0) {
			t.Fatalf("integrity violated for %s: exists=%v bands=%v", pack, exists, bands)
		}
	}
}

func hasBand(bands []SdkFeatureBand, band SdkFeatureBand) bool {
	return slices.Contains(bands, band)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// snapshot 返回 root 下全部相对路径，用于比较磁盘状态。
func snapshot(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("snapshot error: %v", err)
	}
	return paths
}
