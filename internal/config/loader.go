package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath 是未显式指定配置文件时读取的位置。
const DefaultPath = "workpack.toml"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectPackLevelPaths(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Packs {
		applyPackDefaults(&cfg.Packs[i])
	}

	if err := resolvePaths(&cfg.Global, filepath.Dir(path)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("InstallRoot", "./dotnet")
	v.SetDefault("PacksRoot", "")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("DownloadTimeout", "5m")
	v.SetDefault("MetricsEnabled", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5080
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.DownloadTimeout.DurationValue() == 0 {
		g.DownloadTimeout = Duration(5 * time.Minute)
	}
	g.FeatureBand = strings.TrimSpace(g.FeatureBand)
	g.Feed = strings.TrimRight(strings.TrimSpace(g.Feed), "/")
}

func applyPackDefaults(p *PackConfig) {
	p.ID = strings.TrimSpace(p.ID)
	p.Version = strings.TrimSpace(p.Version)
	p.Kind = strings.TrimSpace(p.Kind)
}

// resolvePaths 把相对路径按配置文件所在目录展开为绝对路径。
func resolvePaths(g *GlobalConfig, baseDir string) error {
	absRoot, err := absFrom(baseDir, g.InstallRoot)
	if err != nil {
		return fmt.Errorf("无法解析安装目录: %w", err)
	}
	g.InstallRoot = absRoot

	if g.PacksRoot != "" {
		absPacks, err := absFrom(baseDir, g.PacksRoot)
		if err != nil {
			return fmt.Errorf("无法解析 pack 目录: %w", err)
		}
		g.PacksRoot = absPacks
	}

	if g.Feed != "" && !g.FeedIsRemote() {
		absFeed, err := absFrom(baseDir, g.Feed)
		if err != nil {
			return fmt.Errorf("无法解析 Feed 目录: %w", err)
		}
		g.Feed = absFeed
	}
	return nil
}

func absFrom(baseDir, path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Abs(filepath.Join(baseDir, path))
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectPackLevelPaths 拒绝 [[Pack]] 中的 Path 字段：pack 正文位置只由安装布局决定。
func rejectPackLevelPaths(v *viper.Viper) error {
	raw := v.Get("Pack")
	packs, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range packs {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if _, exists := lookupKey(m, "Path"); exists {
			id := fmt.Sprintf("#%d", idx)
			if rawID, ok := lookupKey(m, "Id"); ok {
				if s, ok := rawID.(string); ok && s != "" {
					id = s
				}
			}
			return newFieldError(packField(id, "Path"), "不支持自定义路径，请使用全局 PacksRoot")
		}
	}

	return nil
}

// lookupKey 大小写不敏感地读取 map 键，viper 会把键统一为小写。
func lookupKey(m map[string]interface{}, key string) (interface{}, bool) {
	for k, value := range m {
		if strings.EqualFold(k, key) {
			return value, true
		}
	}
	return nil, false
}
