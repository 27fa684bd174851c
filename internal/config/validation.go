package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/any-hub/workpack/internal/workload"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入安装流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.InstallRoot) == "" {
		return newFieldError("Global.InstallRoot", "不能为空")
	}
	if g.FeatureBand == "" {
		return newFieldError("Global.FeatureBand", "不能为空")
	}
	if strings.ContainsAny(g.FeatureBand, `/\`) {
		return newFieldError("Global.FeatureBand", "不允许包含路径分隔符")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.DownloadTimeout.DurationValue() <= 0 {
		return newFieldError("Global.DownloadTimeout", "必须大于 0")
	}
	if err := validateFeed(g); err != nil {
		return fmt.Errorf("Global.Feed: %w", err)
	}

	seenPacks := map[string]struct{}{}
	for i := range c.Packs {
		pack := &c.Packs[i]
		if pack.ID == "" {
			return newFieldError("Pack[].Id", "不能为空")
		}
		if strings.ContainsAny(pack.ID, `/\`) || pack.ID == "." || pack.ID == ".." {
			return newFieldError(packField(pack.ID, "Id"), "不是合法的 pack id")
		}
		key := strings.ToLower(pack.ID)
		if _, exists := seenPacks[key]; exists {
			return newFieldError(packField(pack.ID, "Id"), "重复")
		}
		seenPacks[key] = struct{}{}

		if !workload.ValidVersion(pack.Version) {
			return newFieldError(packField(pack.ID, "Version"), "必须是语义化版本，例如 6.0.1")
		}
		kind, err := workload.ParsePackKind(pack.Kind)
		if err != nil {
			return newFieldError(packField(pack.ID, "Kind"), "仅支持 Sdk/Framework/Template/Library")
		}
		pack.Kind = string(kind)
	}

	seenWorkloads := map[string]struct{}{}
	for i := range c.Workloads {
		wl := &c.Workloads[i]
		if wl.ID == "" {
			return newFieldError("Workload[].Id", "不能为空")
		}
		if _, exists := seenWorkloads[wl.ID]; exists {
			return newFieldError(workloadField(wl.ID, "Id"), "重复")
		}
		seenWorkloads[wl.ID] = struct{}{}

		if len(wl.Packs) == 0 {
			return newFieldError(workloadField(wl.ID, "Packs"), "至少需要一个 pack")
		}
		for _, packID := range wl.Packs {
			if _, ok := seenPacks[strings.ToLower(packID)]; !ok {
				return newFieldError(workloadField(wl.ID, "Packs"), fmt.Sprintf("未声明的 pack: %s", packID))
			}
		}
	}

	return nil
}

func validateFeed(g GlobalConfig) error {
	if g.Feed == "" {
		return errors.New("缺少下载源")
	}
	if g.FeedIsRemote() {
		return validateUpstream(g.Feed)
	}
	info, err := os.Stat(g.Feed)
	if err != nil {
		return fmt.Errorf("本地源不可用: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("本地源必须是目录: %s", g.Feed)
	}
	return nil
}

func validateUpstream(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
