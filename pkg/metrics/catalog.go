package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CatalogMetrics instruments the Metadata Catalog (C4): per-operation
// latency and outcome counts, so a slow badger compaction or a spike in
// NotFound errors shows up without reading logs.
type CatalogMetrics struct {
	opDuration *prometheus.HistogramVec
	opsTotal   *prometheus.CounterVec
}

// NewCatalogMetrics returns a Prometheus-backed CatalogMetrics, or nil
// if metrics are not enabled.
func NewCatalogMetrics() *CatalogMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &CatalogMetrics{
		opDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fabnet_catalog_operation_duration_seconds",
				Help:    "Catalog operation latency, by operation (find, append, update, remove, listdir).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		opsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabnet_catalog_operations_total",
				Help: "Total catalog operations, by operation and outcome (ok, error).",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// ObserveOperation records one catalog operation's outcome and latency.
func (m *CatalogMetrics) ObserveOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.opDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.opsTotal.WithLabelValues(operation, outcome).Inc()
}
