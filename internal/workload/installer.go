package workload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// InstallerOptions 汇总 Installer 的依赖，便于测试注入替身。
type InstallerOptions struct {
	Layout     Layout
	Packs      *PackStore
	Records    RecordStore
	Downloader Downloader
	Resolver   Resolver
	Reporter   Reporter
	Logger     *logrus.Logger
	Metrics    Metrics
}

// Installer 以 “stage → commit → finalize” 的顺序安装 pack：
// 下载/解压到私有临时目录（对外不可见），移动到位并写入记录，最后无条件
// 清理临时产物。任一步失败都会先执行 Rollback 再返回原始错误。
// 注意：正文移动与写记录之间崩溃会留下零记录的正文，见 GarbageCollector.ReclaimOrphans。
type Installer struct {
	layout     Layout
	packs      *PackStore
	records    RecordStore
	downloader Downloader
	resolver   Resolver
	reporter   Reporter
	logger     *logrus.Logger
	metrics    Metrics
}

// NewInstaller 校验必需依赖并构建 Installer。
func NewInstaller(opts InstallerOptions) (*Installer, error) {
	if opts.Layout.Root == "" {
		return nil, errors.New("install root is required")
	}
	if opts.Records == nil {
		return nil, errors.New("record store is required")
	}
	if opts.Downloader == nil {
		return nil, errors.New("downloader is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Packs == nil {
		opts.Packs = NewPackStore()
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Installer{
		layout:     opts.Layout,
		packs:      opts.Packs,
		records:    opts.Records,
		downloader: opts.Downloader,
		resolver:   opts.Resolver,
		reporter:   opts.Reporter,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// staging 记录本次安装产生的临时文件与目录，finalize 时统一删除。
type staging struct {
	files []string
	dirs  []string
}

// Install 安装 pack 并为 band 写入记录；重复调用只会重写记录，不会重复下载。
func (i *Installer) Install(pack PackInfo, band SdkFeatureBand, useOfflineCache bool) error {
	if useOfflineCache {
		return &OpError{Op: "install pack from offline cache", Path: pack.String(), Kind: ErrNotSupported}
	}
	if err := validatePackInfo(pack); err != nil {
		return err
	}
	// 记录键须在下载之前校验，回滚依赖同一个键。
	if err := validatePackKey(pack, band); err != nil {
		return err
	}

	started := time.Now()
	i.reporter.WriteLine("Installing pack %s version %s...", pack.ID, pack.Version)

	st := &staging{}
	err := i.stageAndCommit(pack, band, st)
	if err != nil {
		i.rollbackAfterFailure(pack, band, err)
	}
	i.finalize(st)

	if i.metrics != nil {
		i.metrics.ObserveInstall(pack.Kind, resultLabel(err), time.Since(started))
	}
	fields := i.packFields("install", pack, band)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		i.logger.WithError(err).WithFields(fields).Error("pack_install_failed")
		return err
	}
	i.logger.WithFields(fields).Info("pack_installed")
	return nil
}

func (i *Installer) stageAndCommit(pack PackInfo, band SdkFeatureBand, st *staging) error {
	if i.packs.Exists(pack) {
		i.reporter.WriteLine("Workload pack %s version %s is already installed", pack.ID, pack.Version)
	} else if err := i.stage(pack, st); err != nil {
		return err
	}

	i.reporter.WriteLine("Writing workload pack installation record for %s version %s...", pack.ID, pack.Version)
	return i.records.WritePackRecord(pack, band)
}

// stage 下载并解压到临时目录，再通过 PackStore.Place 一次性提交到位。
func (i *Installer) stage(pack PackInfo, st *staging) error {
	archivePath, err := i.downloader.DownloadPackage(pack.ID, pack.Version)
	if archivePath != "" {
		st.files = append(st.files, archivePath)
	}
	if err != nil {
		return downloadError("download pack", pack.String(), err)
	}

	if pack.Kind.IsSingleFile() {
		return i.packs.Place(pack, archivePath)
	}

	extractDir := filepath.Join(i.layout.TempDir(), fmt.Sprintf("%s-%s-extracted", pack.ID, pack.Version))
	st.dirs = append(st.dirs, extractDir)
	// 上一次崩溃可能遗留同名解压目录。
	if err := os.RemoveAll(extractDir); err != nil {
		return ioError("clear extraction directory", extractDir, err)
	}
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return ioError("create extraction directory", extractDir, err)
	}
	if _, err := i.downloader.ExtractPackage(archivePath, extractDir); err != nil {
		return downloadError("extract pack", archivePath, err)
	}
	return i.packs.Place(pack, extractDir)
}

// finalize 无论成败都删除临时产物，失败只记录日志。
func (i *Installer) finalize(st *staging) {
	for _, file := range st.files {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			i.logger.WithError(err).WithFields(logrus.Fields{"action": "cleanup", "path": file}).Warn("temp_file_cleanup_failed")
		}
	}
	for _, dir := range st.dirs {
		if err := os.RemoveAll(dir); err != nil {
			i.logger.WithError(err).WithFields(logrus.Fields{"action": "cleanup", "path": dir}).Warn("temp_dir_cleanup_failed")
		}
	}
}

// Rollback 删除 band 的记录；若已无任何 band 引用该 pack，则删除正文。
// 也用于显式卸载单个 pack。
func (i *Installer) Rollback(pack PackInfo, band SdkFeatureBand) error {
	if err := validatePackKey(pack, band); err != nil {
		return err
	}
	i.reporter.WriteLine("Rolling back workload pack %s version %s for band %s...", pack.ID, pack.Version, band)
	err := i.rollback(pack, band)
	if i.metrics != nil {
		i.metrics.ObserveRollback(resultLabel(err))
	}
	return err
}

func (i *Installer) rollback(pack PackInfo, band SdkFeatureBand) error {
	if err := i.records.DeletePackRecord(pack, band); err != nil {
		return err
	}
	bands, err := i.records.ListBandsWithPackRecord(pack)
	if err != nil {
		return err
	}
	if len(bands) > 0 {
		return nil
	}
	if err := i.packs.Delete(pack); err != nil {
		return err
	}
	i.logger.WithFields(i.packFields("rollback", pack, band)).Info("pack_content_deleted")
	return nil
}

// rollbackAfterFailure 吞掉回滚自身的错误，避免掩盖首要失败原因。
func (i *Installer) rollbackAfterFailure(pack PackInfo, band SdkFeatureBand, cause error) {
	if err := i.Rollback(pack, band); err != nil {
		fields := i.packFields("rollback", pack, band)
		fields["cause"] = cause.Error()
		i.logger.WithError(err).WithFields(fields).Warn("rollback_failed")
	}
}

// InstallWorkload 安装 workload 引用的全部 pack 后写入 workload 记录。
// 失败时只回滚本次新写入记录的 pack，已有的记录保持不变。
func (i *Installer) InstallWorkload(id WorkloadID, band SdkFeatureBand) error {
	if i.resolver == nil {
		return errors.New("workload resolver is not configured")
	}
	if err := validateWorkloadKey(id, band); err != nil {
		return err
	}

	var added []PackInfo
	undo := func(cause error) error {
		for idx := len(added) - 1; idx >= 0; idx-- {
			i.rollbackAfterFailure(added[idx], band, cause)
		}
		return cause
	}

	var seen []string
	for _, packID := range i.resolver.GetPacksInWorkload(id) {
		if slices.Contains(seen, packID) {
			continue
		}
		seen = append(seen, packID)

		pack, ok := i.resolver.TryGetPackInfo(packID)
		if !ok {
			return undo(&OpError{
				Op:   "resolve workload pack",
				Path: id.String() + "/" + packID,
				Kind: ErrInvariantViolation,
				Err:  errUnknownPack,
			})
		}
		bands, err := i.records.ListBandsWithPackRecord(pack)
		if err != nil {
			return undo(err)
		}
		if err := i.Install(pack, band, false); err != nil {
			return undo(err)
		}
		if !slices.Contains(bands, band) {
			added = append(added, pack)
		}
	}

	i.reporter.WriteLine("Writing workload installation record for %s...", id)
	if err := i.records.WriteWorkloadRecord(id, band); err != nil {
		return undo(err)
	}
	i.logger.WithFields(logrus.Fields{"action": "install_workload", "workload": id.String(), "band": band.String()}).Info("workload_installed")
	return nil
}

// UninstallWorkload 仅删除 workload 记录，pack 正文由垃圾回收统一清理。
func (i *Installer) UninstallWorkload(id WorkloadID, band SdkFeatureBand) error {
	i.reporter.WriteLine("Removing workload installation record for %s...", id)
	return i.records.DeleteWorkloadRecord(id, band)
}

func (i *Installer) packFields(action string, pack PackInfo, band SdkFeatureBand) logrus.Fields {
	return logrus.Fields{
		"action":       action,
		"pack_id":      pack.ID,
		"pack_version": pack.Version,
		"pack_kind":    string(pack.Kind),
		"band":         band.String(),
	}
}

func validatePackInfo(pack PackInfo) error {
	var reason string
	switch {
	case pack.ID == "":
		reason = "pack id required"
	case !ValidVersion(pack.Version):
		reason = "pack version is not a semantic version"
	case pack.Path == "":
		reason = "pack path required"
	default:
		return nil
	}
	return &OpError{Op: "validate pack", Path: pack.String(), Kind: ErrInvariantViolation, Err: errors.New(reason)}
}
