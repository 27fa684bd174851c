package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/any-hub/workpack/internal/workload"
)

// RegisterRecordGauges 注册在抓取时读取记录目录的 gauge，读取失败时报告 -1。
func RegisterRecordGauges(reg prometheus.Registerer, records workload.RecordStore) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "workpack_live_bands",
			Help: "Number of SDK feature bands holding at least one workload record",
		}, func() float64 {
			bands, err := records.ListBandsWithAnyWorkloadRecord()
			if err != nil {
				return -1
			}
			return float64(len(bands))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "workpack_pack_records",
			Help: "Number of pack installation records across all bands",
		}, func() float64 {
			groups, _, err := records.ListPackRecords()
			if err != nil {
				return -1
			}
			total := 0
			for _, group := range groups {
				total += len(group.Bands)
			}
			return float64(total)
		}),
	)
}
