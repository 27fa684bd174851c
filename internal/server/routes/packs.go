package routes

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/workpack/internal/workload"
)

type packPayload struct {
	ID        string   `json:"id"`
	Version   string   `json:"version"`
	Kind      string   `json:"kind,omitempty"`
	Path      string   `json:"path,omitempty"`
	Bands     []string `json:"bands"`
	Installed bool     `json:"installed"`
}

// RegisterPackRoutes 暴露 /-/packs/:id/:version，返回持有记录的 band 与正文是否存在。
// resolver 为空或不认识该 id 时只报告记录。
func RegisterPackRoutes(app *fiber.App, records workload.RecordStore, packs *workload.PackStore, resolver workload.Resolver) {
	if app == nil || records == nil || packs == nil {
		return
	}

	app.Get("/-/packs/:id/:version", func(c fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		version := strings.TrimSpace(c.Params("version"))
		if !validParam(id) || !validParam(version) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "pack_key_invalid"})
		}

		pack := workload.PackInfo{ID: id, Version: version}
		known := false
		if resolver != nil {
			if resolved, ok := resolver.TryGetPackInfo(id); ok {
				known = true
				pack.ID = resolved.ID
				pack.Kind = resolved.Kind
				pack.Path = resolved.Path
				if resolved.Version != version {
					pack.Path = ""
				}
			}
		}

		bands, err := records.ListBandsWithPackRecord(pack)
		if err != nil {
			return renderStoreError(c, err)
		}
		if !known && len(bands) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "pack_not_found"})
		}

		payload := packPayload{
			ID:      pack.ID,
			Version: pack.Version,
			Kind:    string(pack.Kind),
			Path:    pack.Path,
			Bands:   make([]string, 0, len(bands)),
		}
		for _, band := range bands {
			payload.Bands = append(payload.Bands, band.String())
		}
		sort.Strings(payload.Bands)
		if pack.Path != "" {
			payload.Installed = packs.Exists(pack)
		}
		return c.JSON(payload)
	})
}
