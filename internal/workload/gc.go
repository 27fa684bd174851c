package workload

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// GCOptions 汇总 GarbageCollector 的依赖。
type GCOptions struct {
	Layout   Layout
	Packs    *PackStore
	Records  RecordStore
	Resolver Resolver
	Reporter Reporter
	Logger   *logrus.Logger
	Metrics  Metrics
}

// CollectResult 汇总一次回收的结果，Skipped 统计被记录日志后跳过的条目。
type CollectResult struct {
	RecordsDeleted int
	PacksDeleted   int
	Skipped        int
}

// GarbageCollector 通过遍历记录目录来回收不再被需要的记录与 pack 正文。
type GarbageCollector struct {
	layout   Layout
	packs    *PackStore
	records  RecordStore
	resolver Resolver
	reporter Reporter
	logger   *logrus.Logger
	metrics  Metrics
}

// NewGarbageCollector 校验必需依赖并构建回收器。
func NewGarbageCollector(opts GCOptions) (*GarbageCollector, error) {
	if opts.Layout.Root == "" {
		return nil, errors.New("install root is required")
	}
	if opts.Records == nil {
		return nil, errors.New("record store is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("workload resolver is required")
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
	return &GarbageCollector{
		layout:   opts.Layout,
		packs:    opts.Packs,
		records:  opts.Records,
		resolver: opts.Resolver,
		reporter: opts.Reporter,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// LiveBandsFromRecords 把存在 workload 记录的 band 视为存活，供没有独立
// 存活探测手段的调用方使用。
func (c *GarbageCollector) LiveBandsFromRecords() ([]SdkFeatureBand, error) {
	return c.records.ListBandsWithAnyWorkloadRecord()
}

type packKey struct {
	id      string
	version string
}

// Collect 执行一次不可恢复的单遍回收。liveBands 是调用开始时的快照，
// 遍历过程中不会重新检查；与之并发开始安装的 band 可能被误删记录。
//
// 标记在以下情况下视为多余：band 不在 liveBands 中，或 band 为 currentBand
// 且 (id, version) 不在 currentBand 已安装 workload 所需的集合内。
// 同一 (id, version) 下先删标记、后删正文。
func (c *GarbageCollector) Collect(currentBand SdkFeatureBand, liveBands []SdkFeatureBand) (CollectResult, error) {
	started := time.Now()
	var result CollectResult

	live := make(map[SdkFeatureBand]struct{}, len(liveBands))
	names := make([]string, 0, len(liveBands))
	for _, band := range liveBands {
		live[band] = struct{}{}
		names = append(names, band.String())
	}
	c.reporter.WriteLine("Garbage collecting for SDK feature bands %s...", strings.Join(names, " "))

	expected, err := c.expectedRecords(currentBand)
	if err != nil {
		return result, err
	}

	groups, problems, err := c.records.ListPackRecords()
	if err != nil {
		return result, err
	}
	for _, problem := range problems {
		c.skip(&result, problem, logrus.Fields{"action": "gc"})
	}

	for _, group := range groups {
		key := packKey{id: group.ID, version: group.Version}
		recordKey := PackInfo{ID: group.ID, Version: group.Version}
		remaining := 0
		for _, band := range group.Bands {
			_, isLive := live[band]
			_, isExpected := expected[key]
			if isLive && (band != currentBand || isExpected) {
				remaining++
				continue
			}
			if err := c.records.DeletePackRecord(recordKey, band); err != nil {
				remaining++
				c.skip(&result, err, c.groupFields(group, band))
				continue
			}
			result.RecordsDeleted++
		}
		if remaining > 0 {
			continue
		}
		c.reclaimContent(&result, group)
	}

	elapsed := time.Since(started)
	if c.metrics != nil {
		c.metrics.ObserveCollect(result, elapsed)
	}
	c.logger.WithFields(logrus.Fields{
		"action":          "gc",
		"band":            currentBand.String(),
		"live_bands":      names,
		"records_deleted": result.RecordsDeleted,
		"packs_deleted":   result.PacksDeleted,
		"skipped":         result.Skipped,
		"elapsed_ms":      elapsed.Milliseconds(),
	}).Info("gc_completed")
	return result, nil
}

// reclaimContent 在 (id, version) 已无任何标记时删除记录目录与正文。
func (c *GarbageCollector) reclaimContent(result *CollectResult, group PackRecordGroup) {
	if err := c.records.PruneVersion(group.ID, group.Version); err != nil {
		c.skip(result, err, c.groupFields(group, ""))
	}

	pack, ok := c.packForRecordDir(group.ID, group.Version)
	if !ok {
		c.skip(result, invariantError(filepath.Join(group.ID, group.Version), "no resolvable pack for record directory"), c.groupFields(group, ""))
		return
	}
	if !c.packs.Exists(pack) {
		return
	}
	if err := c.packs.Delete(pack); err != nil {
		c.skip(result, err, c.groupFields(group, ""))
		return
	}
	stop := c.layout.PacksRoot
	if pack.Kind.IsSingleFile() {
		stop = c.layout.Root
	}
	if err := pruneEmptyParents(filepath.Dir(pack.Path), stop); err != nil {
		c.logger.WithError(err).WithFields(c.groupFields(group, "")).Warn("gc_prune_failed")
	}
	result.PacksDeleted++
	c.reporter.WriteLine("Removed workload pack %s version %s", pack.ID, pack.Version)
}

// packForRecordDir 由记录目录反查 pack。Resolver 只知道当前版本时，
// 旧版本的路径按默认布局推导。
func (c *GarbageCollector) packForRecordDir(id, version string) (PackInfo, bool) {
	pack, ok := c.resolver.TryGetPackInfo(id)
	if !ok {
		return PackInfo{}, false
	}
	if pack.Version == version {
		return pack, true
	}
	return PackInfo{
		ID:      id,
		Version: version,
		Kind:    pack.Kind,
		Path:    c.layout.DefaultPackPath(id, version, pack.Kind),
	}, true
}

// expectedRecords 计算 band 下已安装 workload 所需的 (id, version) 集合。
func (c *GarbageCollector) expectedRecords(band SdkFeatureBand) (map[packKey]struct{}, error) {
	workloads, err := c.records.ListInstalledWorkloads(band)
	if err != nil {
		return nil, err
	}
	expected := make(map[packKey]struct{})
	for _, workload := range workloads {
		for _, packID := range c.resolver.GetPacksInWorkload(workload) {
			pack, ok := c.resolver.TryGetPackInfo(packID)
			if !ok {
				c.logger.WithFields(logrus.Fields{
					"action":   "gc",
					"workload": workload.String(),
					"pack_id":  packID,
				}).Warn("gc_pack_unresolved")
				continue
			}
			expected[packKey{id: pack.ID, version: pack.Version}] = struct{}{}
		}
	}
	return expected, nil
}

// ReclaimOrphans 删除磁盘上存在但任何 band 都没有记录的正文，
// 用于清理正文移动与写记录之间崩溃留下的孤儿。
func (c *GarbageCollector) ReclaimOrphans(candidates []PackInfo) (int, error) {
	var (
		deleted int
		errs    []error
	)
	for _, pack := range candidates {
		if !c.packs.Exists(pack) {
			continue
		}
		bands, err := c.records.ListBandsWithPackRecord(pack)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(bands) > 0 {
			continue
		}
		if err := c.packs.Delete(pack); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
		c.reporter.WriteLine("Removed orphaned workload pack %s version %s", pack.ID, pack.Version)
		c.logger.WithFields(logrus.Fields{"action": "gc_orphans", "pack_id": pack.ID, "pack_version": pack.Version}).Info("orphan_pack_deleted")
	}
	return deleted, errors.Join(errs...)
}

func (c *GarbageCollector) skip(result *CollectResult, err error, fields logrus.Fields) {
	result.Skipped++
	entry := c.logger.WithError(err).WithFields(fields)
	if errors.Is(err, ErrInvariantViolation) {
		entry.Warn("gc_invariant_violation")
		return
	}
	entry.Warn("gc_entry_failed")
}

func (c *GarbageCollector) groupFields(group PackRecordGroup, band SdkFeatureBand) logrus.Fields {
	fields := logrus.Fields{
		"action":       "gc",
		"pack_id":      group.ID,
		"pack_version": group.Version,
	}
	if band != "" {
		fields["band"] = band.String()
	}
	return fields
}
