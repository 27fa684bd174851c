package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述安装根目录、下载源与日志等全局参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	InstallRoot     string   `mapstructure:"InstallRoot"`
	PacksRoot       string   `mapstructure:"PacksRoot"`
	FeatureBand     string   `mapstructure:"FeatureBand"`
	Feed            string   `mapstructure:"Feed"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	DownloadTimeout Duration `mapstructure:"DownloadTimeout"`
	MetricsEnabled  bool     `mapstructure:"MetricsEnabled"`
}

// PackConfig 声明一个可安装的 pack 及其当前版本。
type PackConfig struct {
	ID      string `mapstructure:"Id"`
	Version string `mapstructure:"Version"`
	Kind    string `mapstructure:"Kind"`
}

// WorkloadConfig 声明 workload 由哪些 pack 组成。
type WorkloadConfig struct {
	ID    string   `mapstructure:"Id"`
	Packs []string `mapstructure:"Packs"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global    GlobalConfig     `mapstructure:",squash"`
	Packs     []PackConfig     `mapstructure:"Pack"`
	Workloads []WorkloadConfig `mapstructure:"Workload"`
}

// FeedIsRemote 表示 Feed 指向 http(s) 源而非本地目录。
func (g GlobalConfig) FeedIsRemote() bool {
	lower := strings.ToLower(g.Feed)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// PackIDs 返回全部已声明 pack 的 id，用于日志摘要。
func (c *Config) PackIDs() []string {
	if len(c.Packs) == 0 {
		return nil
	}
	ids := make([]string, len(c.Packs))
	for i, pack := range c.Packs {
		ids[i] = pack.ID
	}
	return ids
}

// WorkloadIDs 返回全部已声明 workload 的 id。
func (c *Config) WorkloadIDs() []string {
	if len(c.Workloads) == 0 {
		return nil
	}
	ids := make([]string, len(c.Workloads))
	for i, workload := range c.Workloads {
		ids[i] = workload.ID
	}
	return ids
}
