// Package catalog resolves workloads to packs from the [[Pack]] and
// [[Workload]] tables of the configuration file.
package catalog

import (
	"sort"
	"strings"

	"github.com/any-hub/workpack/internal/config"
	"github.com/any-hub/workpack/internal/workload"
)

// Catalog 是基于配置的 workload.Resolver 实现，pack id 大小写不敏感。
type Catalog struct {
	packs     map[string]workload.PackInfo
	workloads map[workload.WorkloadID][]string
}

var _ workload.Resolver = (*Catalog)(nil)

// New 把已校验的配置转换为解析表，pack 路径按 layout 的默认布局推导。
func New(cfg *config.Config, layout workload.Layout) (*Catalog, error) {
	c := &Catalog{
		packs:     make(map[string]workload.PackInfo, len(cfg.Packs)),
		workloads: make(map[workload.WorkloadID][]string, len(cfg.Workloads)),
	}
	for _, p := range cfg.Packs {
		kind, err := workload.ParsePackKind(p.Kind)
		if err != nil {
			return nil, err
		}
		c.packs[strings.ToLower(p.ID)] = workload.PackInfo{
			ID:      p.ID,
			Version: p.Version,
			Kind:    kind,
			Path:    layout.DefaultPackPath(p.ID, p.Version, kind),
		}
	}
	for _, wl := range cfg.Workloads {
		c.workloads[workload.WorkloadID(wl.ID)] = append([]string(nil), wl.Packs...)
	}
	return c, nil
}

func (c *Catalog) GetPacksInWorkload(id workload.WorkloadID) []string {
	return c.workloads[id]
}

func (c *Catalog) TryGetPackInfo(packID string) (workload.PackInfo, bool) {
	pack, ok := c.packs[strings.ToLower(packID)]
	return pack, ok
}

// HasWorkload 判断 workload 是否在配置中声明。
func (c *Catalog) HasWorkload(id workload.WorkloadID) bool {
	_, ok := c.workloads[id]
	return ok
}

// Packs 按 id 排序返回全部已声明 pack，供孤儿回收枚举候选。
func (c *Catalog) Packs() []workload.PackInfo {
	packs := make([]workload.PackInfo, 0, len(c.packs))
	for _, pack := range c.packs {
		packs = append(packs, pack)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ID < packs[j].ID })
	return packs
}
