package main

import (
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/any-hub/workpack/internal/logging"
	"github.com/any-hub/workpack/internal/server"
	"github.com/any-hub/workpack/internal/version"
	"github.com/any-hub/workpack/internal/workload"
)

type configPathFunc func() string

func newInstallCmd(configPath configPathFunc) *cobra.Command {
	var band string
	cmd := &cobra.Command{
		Use:   "install <workload>",
		Short: "Install every pack of a workload and record it for the feature band",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			id := workload.WorkloadID(args[0])
			if !env.catalog.HasWorkload(id) {
				return fmt.Errorf("未知的 workload: %s", id)
			}
			installer, err := env.newInstaller()
			if err != nil {
				return err
			}
			return env.withRootLock("install", func() error {
				return installer.InstallWorkload(id, env.band(band))
			})
		},
	}
	cmd.Flags().StringVar(&band, "band", "", "SDK feature band（默认取配置中的 FeatureBand）")
	return cmd
}

func newUninstallCmd(configPath configPathFunc) *cobra.Command {
	var band string
	cmd := &cobra.Command{
		Use:   "uninstall <workload>",
		Short: "Remove a workload record and garbage-collect packs nobody needs",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			installer, err := env.newInstaller()
			if err != nil {
				return err
			}
			target := env.band(band)
			return env.withRootLock("uninstall", func() error {
				if err := installer.UninstallWorkload(workload.WorkloadID(args[0]), target); err != nil {
					return err
				}
				_, err := env.collect(target, nil)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&band, "band", "", "SDK feature band（默认取配置中的 FeatureBand）")
	return cmd
}

func newInstallPackCmd(configPath configPathFunc) *cobra.Command {
	var (
		band      string
		fromCache bool
	)
	cmd := &cobra.Command{
		Use:   "install-pack <pack-id>",
		Short: "Install a single pack and record it for the feature band",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			pack, ok := env.catalog.TryGetPackInfo(args[0])
			if !ok {
				return fmt.Errorf("未知的 pack: %s", args[0])
			}
			installer, err := env.newInstaller()
			if err != nil {
				return err
			}
			return env.withRootLock("install", func() error {
				return installer.Install(pack, env.band(band), fromCache)
			})
		},
	}
	cmd.Flags().StringVar(&band, "band", "", "SDK feature band（默认取配置中的 FeatureBand）")
	cmd.Flags().BoolVar(&fromCache, "from-cache", false, "从离线缓存安装（暂不支持）")
	return cmd
}

func newRollbackPackCmd(configPath configPathFunc) *cobra.Command {
	var band string
	cmd := &cobra.Command{
		Use:   "rollback-pack <pack-id>",
		Short: "Remove a pack record for the feature band, deleting content when no band needs it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			pack, ok := env.catalog.TryGetPackInfo(args[0])
			if !ok {
				return fmt.Errorf("未知的 pack: %s", args[0])
			}
			installer, err := env.newInstaller()
			if err != nil {
				return err
			}
			return env.withRootLock("rollback", func() error {
				return installer.Rollback(pack, env.band(band))
			})
		},
	}
	cmd.Flags().StringVar(&band, "band", "", "SDK feature band（默认取配置中的 FeatureBand）")
	return cmd
}

func newGCCmd(configPath configPathFunc) *cobra.Command {
	var (
		band    string
		live    []string
		orphans bool
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete pack records and content no live feature band needs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			return env.withRootLock("gc", func() error {
				result, err := env.collect(env.band(band), live)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdOut, "Deleted %d records and %d packs (%d entries skipped)\n", result.RecordsDeleted, result.PacksDeleted, result.Skipped)
				if !orphans {
					return nil
				}
				gc, err := env.newCollector()
				if err != nil {
					return err
				}
				deleted, err := gc.ReclaimOrphans(env.catalog.Packs())
				fmt.Fprintf(stdOut, "Deleted %d orphaned packs\n", deleted)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&band, "band", "", "当前 SDK feature band（默认取配置中的 FeatureBand）")
	cmd.Flags().StringSliceVar(&live, "live", nil, "显式指定存活的 band；缺省时取存在 workload 记录的 band 与当前 band")
	cmd.Flags().BoolVar(&orphans, "orphans", false, "同时删除没有任何记录的已声明 pack 正文")
	return cmd
}

func newListCmd(configPath configPathFunc) *cobra.Command {
	var band string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workloads installed for the feature band",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			target := env.band(band)
			workloads, err := env.records.ListInstalledWorkloads(target)
			if err != nil {
				return err
			}
			if len(workloads) == 0 {
				fmt.Fprintf(stdOut, "No workloads installed for band %s\n", target)
				return nil
			}
			slices.Sort(workloads)
			for _, id := range workloads {
				fmt.Fprintln(stdOut, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&band, "band", "", "SDK feature band（默认取配置中的 FeatureBand）")
	return cmd
}

func newCheckConfigCmd(configPath configPathFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			fields := logging.BaseFields("check_config", env.configPath)
			fields["packs"] = len(env.cfg.Packs)
			fields["workloads"] = env.cfg.WorkloadIDs()
			fields["feed"] = env.cfg.Global.Feed
			fields["result"] = "ok"
			env.logger.WithFields(fields).Info("配置校验通过")
			fmt.Fprintf(stdOut, "配置有效: %s (%d packs, %d workloads)\n", env.configPath, len(env.cfg.Packs), len(env.cfg.Workloads))
			return nil
		},
	}
}

func newServeCmd(configPath configPathFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only diagnostics over HTTP",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			opts := server.AppOptions{
				Logger:     env.logger,
				Records:    env.records,
				Packs:      env.packs,
				Resolver:   env.catalog,
				ListenPort: env.cfg.Global.ListenPort,
			}
			if env.registry != nil {
				opts.Metrics = promhttp.HandlerFor(env.registry, promhttp.HandlerOpts{})
			}
			app, err := server.NewApp(opts)
			if err != nil {
				return err
			}

			fields := logging.BaseFields("startup", env.configPath)
			fields["listen_port"] = env.cfg.Global.ListenPort
			fields["install_root"] = env.layout.Root
			fields["version"] = version.Full()
			env.logger.WithFields(fields).Info("配置加载完成")

			if err := server.Listen(app, env.cfg.Global.ListenPort, env.logger); err != nil {
				return fmt.Errorf("HTTP 服务启动失败: %w", err)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}
