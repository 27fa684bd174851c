package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/workpack/internal/catalog"
	"github.com/any-hub/workpack/internal/config"
	"github.com/any-hub/workpack/internal/feed"
	"github.com/any-hub/workpack/internal/logging"
	"github.com/any-hub/workpack/internal/metrics"
	"github.com/any-hub/workpack/internal/workload"
)

// runtimeEnv 汇总一次命令执行所需的全部组件，按
// “配置 → 日志 → 布局/记录 → 解析表 → 下载源” 的顺序构建。
type runtimeEnv struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
	layout     workload.Layout
	records    *workload.FileRecordStore
	packs      *workload.PackStore
	catalog    *catalog.Catalog
	reporter   *logging.Reporter
	registry   *prometheus.Registry
	metrics    workload.Metrics
}

func loadRuntime(configPath string) (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	layout, err := workload.NewLayout(cfg.Global.InstallRoot, cfg.Global.PacksRoot)
	if err != nil {
		return nil, fmt.Errorf("解析安装目录失败: %w", err)
	}

	cat, err := catalog.New(cfg, layout)
	if err != nil {
		return nil, fmt.Errorf("构建 pack 解析表失败: %w", err)
	}

	env := &runtimeEnv{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		layout:     layout,
		records:    workload.NewFileRecordStore(layout),
		packs:      workload.NewPackStore(),
		catalog:    cat,
		reporter:   logging.NewReporter(stdOut, logger),
	}

	if cfg.Global.MetricsEnabled {
		env.registry = prometheus.NewRegistry()
		env.registry.MustRegister(collectors.NewGoCollector())
		env.metrics = metrics.New(env.registry)
		metrics.RegisterRecordGauges(env.registry, env.records)
	}
	return env, nil
}

func (e *runtimeEnv) band(override string) workload.SdkFeatureBand {
	if override != "" {
		return workload.SdkFeatureBand(override)
	}
	return workload.SdkFeatureBand(e.cfg.Global.FeatureBand)
}

func (e *runtimeEnv) newInstaller() (*workload.Installer, error) {
	downloader, err := feed.New(feed.Options{
		Source:         e.cfg.Global.Feed,
		TempDir:        e.layout.TempDir(),
		Client:         feed.NewHTTPClient(e.cfg.Global.DownloadTimeout.DurationValue()),
		MaxRetries:     e.cfg.Global.MaxRetries,
		InitialBackoff: e.cfg.Global.InitialBackoff.DurationValue(),
		Logger:         e.logger,
	})
	if err != nil {
		return nil, err
	}
	return workload.NewInstaller(workload.InstallerOptions{
		Layout:     e.layout,
		Packs:      e.packs,
		Records:    e.records,
		Downloader: downloader,
		Resolver:   e.catalog,
		Reporter:   e.reporter,
		Logger:     e.logger,
		Metrics:    e.metrics,
	})
}

func (e *runtimeEnv) newCollector() (*workload.GarbageCollector, error) {
	return workload.NewGarbageCollector(workload.GCOptions{
		Layout:   e.layout,
		Packs:    e.packs,
		Records:  e.records,
		Resolver: e.catalog,
		Reporter: e.reporter,
		Logger:   e.logger,
		Metrics:  e.metrics,
	})
}

// withRootLock 在持有安装根目录锁期间执行变更操作；平台不支持时记录警告后继续。
func (e *runtimeEnv) withRootLock(action string, fn func() error) error {
	lock, err := workload.AcquireRootLock(e.layout)
	switch {
	case errors.Is(err, workload.ErrLockUnavailable):
		e.logger.WithFields(logging.BaseFields(action, e.configPath)).Warn("install root lock unavailable, continuing without it")
	case err != nil:
		return fmt.Errorf("获取安装目录锁失败: %w", err)
	default:
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				e.logger.WithError(releaseErr).WithFields(logging.BaseFields(action, e.configPath)).Warn("install root lock release failed")
			}
		}()
	}
	return fn()
}

// collect 以 “已有 workload 记录的 band ∪ 当前 band” 或显式给出的 band 作为存活集合执行回收。
func (e *runtimeEnv) collect(band workload.SdkFeatureBand, explicitLive []string) (workload.CollectResult, error) {
	gc, err := e.newCollector()
	if err != nil {
		return workload.CollectResult{}, err
	}

	var live []workload.SdkFeatureBand
	if len(explicitLive) > 0 {
		for _, raw := range explicitLive {
			live = append(live, workload.SdkFeatureBand(raw))
		}
	} else {
		live, err = gc.LiveBandsFromRecords()
		if err != nil {
			return workload.CollectResult{}, err
		}
		if !slices.Contains(live, band) {
			live = append(live, band)
		}
	}
	return gc.Collect(band, live)
}
