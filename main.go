package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/any-hub/workpack/internal/config"
)

const configEnv = "WORKPACK_CONFIG"

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// usageError 标记参数错误，对应退出码 2。
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// execute 构建命令树并执行，返回退出码，方便测试。
func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stdErr, "错误: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "workpack",
		Short:         "Install and garbage-collect workload packs shared by SDK feature bands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./workpack.toml，可被 "+configEnv+" 覆盖）")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: fmt.Errorf("解析参数失败: %w", err)}
	})

	configPath := func() string { return resolveConfigPath(configFlag) }
	root.AddCommand(
		newInstallCmd(configPath),
		newUninstallCmd(configPath),
		newInstallPackCmd(configPath),
		newRollbackPackCmd(configPath),
		newGCCmd(configPath),
		newListCmd(configPath),
		newCheckConfigCmd(configPath),
		newServeCmd(configPath),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath 按 flag > 环境变量 > 默认文件 的顺序计算配置路径。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return config.DefaultPath
}

// exactArgs 与 cobra.ExactArgs 相同，但把错误标记为参数错误。
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}
