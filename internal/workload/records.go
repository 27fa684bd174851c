package workload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RecordStore 是按 (id, version, band) 计数的多写者引用表：记录存在即表示
// 该 band 仍需要对应 pack。当前实现以空文件编码在文件系统中，接口保持
// add/remove 语义，以便将来替换为真正的事务存储而不影响调用方。
type RecordStore interface {
	WritePackRecord(pack PackInfo, band SdkFeatureBand) error
	DeletePackRecord(pack PackInfo, band SdkFeatureBand) error
	ListBandsWithPackRecord(pack PackInfo) ([]SdkFeatureBand, error)

	WriteWorkloadRecord(id WorkloadID, band SdkFeatureBand) error
	DeleteWorkloadRecord(id WorkloadID, band SdkFeatureBand) error
	ListInstalledWorkloads(band SdkFeatureBand) ([]WorkloadID, error)
	ListBandsWithAnyWorkloadRecord() ([]SdkFeatureBand, error)

	// ListPackRecords 遍历全部 (id, version) 记录目录。格式异常的条目以
	// ErrInvariantViolation 的形式收集在 problems 中，而不是中断遍历。
	ListPackRecords() (groups []PackRecordGroup, problems []error, err error)
	// PruneVersion 删除已空的 version 记录目录以及随之变空的 id 目录。
	PruneVersion(id, version string) error
}

// PackRecordGroup 是一个 (id, version) 记录目录及其中的 band 标记。
type PackRecordGroup struct {
	ID      string
	Version string
	Bands   []SdkFeatureBand
}

// FileRecordStore 是 RecordStore 的文件系统实现。
type FileRecordStore struct {
	layout Layout
}

// NewFileRecordStore 基于安装根目录布局构建记录存储。
func NewFileRecordStore(layout Layout) *FileRecordStore {
	return &FileRecordStore{layout: layout}
}

func (s *FileRecordStore) WritePackRecord(pack PackInfo, band SdkFeatureBand) error {
	if err := validatePackKey(pack, band); err != nil {
		return err
	}
	path := s.layout.packRecordPath(pack.ID, pack.Version, band)
	return ioError("write pack record", path, createMarker(path))
}

// DeletePackRecord 幂等删除记录，并清理变空的 version/id 目录。
func (s *FileRecordStore) DeletePackRecord(pack PackInfo, band SdkFeatureBand) error {
	if err := validatePackKey(pack, band); err != nil {
		return err
	}
	path := s.layout.packRecordPath(pack.ID, pack.Version, band)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("delete pack record", path, err)
	}
	return s.PruneVersion(pack.ID, pack.Version)
}

func (s *FileRecordStore) PruneVersion(id, version string) error {
	versionDir := s.layout.packVersionRecordDir(id, version)
	if err := removeIfEmpty(versionDir); err != nil {
		return ioError("prune pack version records", versionDir, err)
	}
	idDir := filepath.Dir(versionDir)
	if err := removeIfEmpty(idDir); err != nil {
		return ioError("prune pack id records", idDir, err)
	}
	return nil
}

func (s *FileRecordStore) ListBandsWithPackRecord(pack PackInfo) ([]SdkFeatureBand, error) {
	dir := s.layout.packVersionRecordDir(pack.ID, pack.Version)
	names, err := listNames(dir, isMarker)
	if err != nil {
		return nil, ioError("list pack records", dir, err)
	}
	return toBands(names), nil
}

func (s *FileRecordStore) WriteWorkloadRecord(id WorkloadID, band SdkFeatureBand) error {
	if err := validateWorkloadKey(id, band); err != nil {
		return err
	}
	path := s.layout.workloadRecordPath(id, band)
	return ioError("write workload record", path, createMarker(path))
}

func (s *FileRecordStore) DeleteWorkloadRecord(id WorkloadID, band SdkFeatureBand) error {
	if err := validateWorkloadKey(id, band); err != nil {
		return err
	}
	path := s.layout.workloadRecordPath(id, band)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("delete workload record", path, err)
	}
	return nil
}

func (s *FileRecordStore) ListInstalledWorkloads(band SdkFeatureBand) ([]WorkloadID, error) {
	dir := s.layout.installedWorkloadsDir(band)
	names, err := listNames(dir, isMarker)
	if err != nil {
		return nil, ioError("list workload records", dir, err)
	}
	ids := make([]WorkloadID, 0, len(names))
	for _, name := range names {
		ids = append(ids, WorkloadID(name))
	}
	return ids, nil
}

// ListBandsWithAnyWorkloadRecord 返回至少有一条 workload 记录的 band。
func (s *FileRecordStore) ListBandsWithAnyWorkloadRecord() ([]SdkFeatureBand, error) {
	root := s.layout.WorkloadMetadataDir()
	names, err := listNames(root, isDir)
	if err != nil {
		return nil, ioError("list feature bands", root, err)
	}
	var bands []SdkFeatureBand
	for _, name := range names {
		if name == installedPacksDirName {
			continue
		}
		workloads, err := s.ListInstalledWorkloads(SdkFeatureBand(name))
		if err != nil {
			return nil, err
		}
		if len(workloads) > 0 {
			bands = append(bands, SdkFeatureBand(name))
		}
	}
	return bands, nil
}

func (s *FileRecordStore) ListPackRecords() ([]PackRecordGroup, []error, error) {
	root := s.layout.InstalledPacksDir()
	idEntries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, ioError("list pack records", root, err)
	}

	var (
		groups   []PackRecordGroup
		problems []error
	)
	for _, idEntry := range idEntries {
		idDir := filepath.Join(root, idEntry.Name())
		if !idEntry.IsDir() {
			problems = append(problems, invariantError(idDir, "expected pack id directory"))
			continue
		}
		versionEntries, err := os.ReadDir(idDir)
		if err != nil {
			problems = append(problems, ioError("list pack versions", idDir, err))
			continue
		}
		for _, versionEntry := range versionEntries {
			versionDir := filepath.Join(idDir, versionEntry.Name())
			if !versionEntry.IsDir() {
				problems = append(problems, invariantError(versionDir, "expected pack version directory"))
				continue
			}
			if !ValidVersion(versionEntry.Name()) {
				problems = append(problems, invariantError(versionDir, "pack version directory is not a semantic version"))
				continue
			}
			markers, err := os.ReadDir(versionDir)
			if err != nil {
				problems = append(problems, ioError("list band records", versionDir, err))
				continue
			}
			group := PackRecordGroup{ID: idEntry.Name(), Version: versionEntry.Name()}
			for _, marker := range markers {
				if !isMarker(marker) {
					problems = append(problems, invariantError(filepath.Join(versionDir, marker.Name()), "expected band record file"))
					continue
				}
				group.Bands = append(group.Bands, SdkFeatureBand(marker.Name()))
			}
			groups = append(groups, group)
		}
	}
	return groups, problems, nil
}

func toBands(names []string) []SdkFeatureBand {
	bands := make([]SdkFeatureBand, 0, len(names))
	for _, name := range names {
		bands = append(bands, SdkFeatureBand(name))
	}
	return bands
}

func validatePackKey(pack PackInfo, band SdkFeatureBand) error {
	for _, segment := range []string{pack.ID, pack.Version, band.String()} {
		if err := validSegment(segment); err != nil {
			return &OpError{Op: "validate pack record key", Path: pack.String(), Kind: ErrInvariantViolation, Err: err}
		}
	}
	return nil
}

func validateWorkloadKey(id WorkloadID, band SdkFeatureBand) error {
	for _, segment := range []string{id.String(), band.String()} {
		if err := validSegment(segment); err != nil {
			return &OpError{Op: "validate workload record key", Path: id.String(), Kind: ErrInvariantViolation, Err: err}
		}
	}
	if reservedBandName(band) {
		err := fmt.Errorf("band name %q collides with workload metadata", band)
		return &OpError{Op: "validate workload record key", Path: id.String(), Kind: ErrInvariantViolation, Err: err}
	}
	return nil
}

// reservedBandName 报告 band 是否与 metadata/workloads 下的其他条目同名。
func reservedBandName(band SdkFeatureBand) bool {
	for _, name := range []string{installedPacksDirName, lockFileName} {
		if strings.EqualFold(band.String(), name) {
			return true
		}
	}
	return false
}
