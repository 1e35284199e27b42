// Package metrics exposes Prometheus counters/gauges/histograms for
// queue depth, worker throughput, retry counts, and catalog operation
// latency. Metrics are built with promauto.With(reg) and every method is
// nil-safe, so an unregistered metrics set is a no-op rather than a nil
// pointer panic.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool
)

// InitRegistry creates (or returns, if already created) the process-wide
// Prometheus registry. Calling it with enabled=false disables metrics
// collection entirely: every constructor in this package returns nil,
// and every nil-safe recording method on the resulting struct is then a
// no-op, so instrumented code never has to branch on whether metrics
// are on.
func InitRegistry(enabled_ bool) *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	enabled.Store(enabled_)
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry(true) has been called.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the process-wide registry, initializing a
// disabled one if InitRegistry was never called.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// Handler returns the HTTP handler to serve GetRegistry() on the
// metrics port named by config.MetricsConfig.Port.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}
