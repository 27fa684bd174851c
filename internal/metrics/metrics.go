// Package metrics provides the Prometheus implementation of workload.Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/any-hub/workpack/internal/workload"
)

// Workload 汇总安装、回滚与垃圾回收的 Prometheus 指标。
type Workload struct {
	installTotal    *prometheus.CounterVec
	installDuration *prometheus.HistogramVec
	rollbackTotal   *prometheus.CounterVec
	gcRuns          prometheus.Counter
	gcRecords       prometheus.Counter
	gcPacks         prometheus.Counter
	gcSkipped       prometheus.Counter
	gcDuration      prometheus.Histogram
}

var _ workload.Metrics = (*Workload)(nil)

// New 在 reg 上注册全部指标；reg 为 nil 时指标只创建不注册（便于测试）。
func New(reg prometheus.Registerer) *Workload {
	factory := promauto.With(reg)
	return &Workload{
		installTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workpack_pack_installs_total",
				Help: "Total number of pack install attempts by pack kind and result",
			},
			[]string{"kind", "result"},
		),
		installDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "workpack_pack_install_duration_seconds",
				Help: "Duration of pack installs including download and extraction",
				Buckets: []float64{
					0.01, // already installed
					0.1,
					0.5,
					1,
					5,
					15,
					60,
					300, // large SDK packs over slow feeds
				},
			},
			[]string{"kind"},
		),
		rollbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workpack_pack_rollbacks_total",
				Help: "Total number of pack rollbacks by result",
			},
			[]string{"result"},
		),
		gcRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "workpack_gc_runs_total",
			Help: "Total number of garbage collection passes",
		}),
		gcRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "workpack_gc_records_deleted_total",
			Help: "Total number of pack installation records deleted by garbage collection",
		}),
		gcPacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "workpack_gc_packs_deleted_total",
			Help: "Total number of pack contents deleted by garbage collection",
		}),
		gcSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "workpack_gc_entries_skipped_total",
			Help: "Total number of malformed or failing entries skipped by garbage collection",
		}),
		gcDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workpack_gc_duration_seconds",
			Help:    "Duration of garbage collection passes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Workload) ObserveInstall(kind workload.PackKind, result string, elapsed time.Duration) {
	m.installTotal.WithLabelValues(string(kind), result).Inc()
	m.installDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Workload) ObserveRollback(result string) {
	m.rollbackTotal.WithLabelValues(result).Inc()
}

func (m *Workload) ObserveCollect(result workload.CollectResult, elapsed time.Duration) {
	m.gcRuns.Inc()
	m.gcRecords.Add(float64(result.RecordsDeleted))
	m.gcPacks.Add(float64(result.PacksDeleted))
	m.gcSkipped.Add(float64(result.Skipped))
	m.gcDuration.Observe(elapsed.Seconds())
}
