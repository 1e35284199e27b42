package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransferMetrics instruments the Worker Pool (C6): queue depth per
// queue, job outcomes per queue, put-retry counts, and bytes
// transferred. Every method is nil-safe, so a *TransferMetrics obtained
// while metrics are disabled can be passed around and called without
// the caller checking for nil first.
type TransferMetrics struct {
	queueDepth *prometheus.GaugeVec
	jobsTotal  *prometheus.CounterVec
	putRetries prometheus.Counter
	bytesTotal *prometheus.CounterVec
}

// NewTransferMetrics returns a Prometheus-backed TransferMetrics, or nil
// if metrics are not enabled (InitRegistry was never called with true).
func NewTransferMetrics() *TransferMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &TransferMetrics{
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fabnet_transfer_queue_depth",
				Help: "Number of jobs currently queued, by queue (put, get, delete).",
			},
			[]string{"queue"},
		),
		jobsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabnet_transfer_jobs_total",
				Help: "Total transfer jobs processed, by queue and outcome (done, failed, retried).",
			},
			[]string{"queue", "outcome"},
		),
		putRetries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fabnet_transfer_put_retries_total",
				Help: "Total number of put jobs requeued after a gateway failure.",
			},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabnet_transfer_bytes_total",
				Help: "Total ciphertext bytes transferred, by queue.",
			},
			[]string{"queue"},
		),
	}
}

// SetQueueDepth records queue's current length.
func (m *TransferMetrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveJob records one job's outcome on queue.
func (m *TransferMetrics) ObserveJob(queue, outcome string, bytes int) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(queue, outcome).Inc()
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(queue).Add(float64(bytes))
	}
}

// ObservePutRetry records one put job being requeued after failure.
func (m *TransferMetrics) ObservePutRetry() {
	if m == nil {
		return
	}
	m.putRetries.Inc()
}
