package routes

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/workpack/internal/workload"
)

type bandPayload struct {
	Band      string   `json:"band"`
	Workloads []string `json:"workloads"`
}

// RegisterBandRoutes 暴露 /-/bands 诊断接口，列出存在 workload 记录的 band。
func RegisterBandRoutes(app *fiber.App, records workload.RecordStore) {
	if app == nil || records == nil {
		return
	}

	app.Get("/-/bands", func(c fiber.Ctx) error {
		bands, err := records.ListBandsWithAnyWorkloadRecord()
		if err != nil {
			return renderStoreError(c, err)
		}
		sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })

		payload := make([]bandPayload, 0, len(bands))
		for _, band := range bands {
			workloads, err := records.ListInstalledWorkloads(band)
			if err != nil {
				return renderStoreError(c, err)
			}
			payload = append(payload, encodeBand(band, workloads))
		}
		return c.JSON(fiber.Map{"bands": payload})
	})

	app.Get("/-/bands/:band/workloads", func(c fiber.Ctx) error {
		band := strings.TrimSpace(c.Params("band"))
		if !validParam(band) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "band_invalid"})
		}
		workloads, err := records.ListInstalledWorkloads(workload.SdkFeatureBand(band))
		if err != nil {
			return renderStoreError(c, err)
		}
		return c.JSON(encodeBand(workload.SdkFeatureBand(band), workloads))
	})
}

func encodeBand(band workload.SdkFeatureBand, workloads []workload.WorkloadID) bandPayload {
	ids := make([]string, 0, len(workloads))
	for _, id := range workloads {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return bandPayload{Band: band.String(), Workloads: ids}
}

func validParam(value string) bool {
	return value != "" && value != "." && value != ".." && !strings.ContainsAny(value, `/\`)
}

func renderStoreError(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":  "record_store_failure",
		"detail": err.Error(),
	})
}
