// Package metrics provides Prometheus metrics for the cipherdrop server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all cipherdrop metrics. It is
// served on the dedicated metrics listener, never on the public API port.
var Registry = prometheus.NewRegistry()

// ServerMetrics holds all Prometheus metrics for the server.
type ServerMetrics struct {
	// Storage gauges, refreshed periodically by the updater worker.
	UsedStorageBytes        prometheus.Gauge
	CacheTotalCapacityBytes prometheus.Gauge
	CacheUsedCapacityBytes  prometheus.Gauge
	DatabaseFileCount       prometheus.Gauge

	// Host gauges.
	RAMUsageBytes prometheus.Gauge
	AvgCPUUsage   prometheus.Gauge

	// HTTP request tracking, fed by the router middleware.
	HTTPRequestsTotal    *prometheus.CounterVec // labels: method, path, status
	HTTPRequestsDuration *prometheus.HistogramVec
}

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// InitMetrics registers all server metrics on the package registry.
func InitMetrics() *ServerMetrics {
	return &ServerMetrics{
		UsedStorageBytes: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "used_storage_bytes",
			Help: "Total bytes held by the storage provider",
		}),
		CacheTotalCapacityBytes: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "cache_total_capacity_bytes",
			Help: "Configured cache byte budget (0 when unbounded)",
		}),
		CacheUsedCapacityBytes: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "cache_used_capacity_bytes",
			Help: "Bytes currently held in the cache",
		}),
		DatabaseFileCount: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "database_file_count",
			Help: "Number of file rows in the database",
		}),
		RAMUsageBytes: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "ram_usage_bytes",
			Help: "Resident memory used on the host",
		}),
		AvgCPUUsage: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "avg_cpu_usage",
			Help: "Average CPU usage across all cores in percent",
		}),
		HTTPRequestsTotal: promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served",
		}, []string{"method", "path", "status"}),
		HTTPRequestsDuration: promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_requests_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path", "status"}),
	}
}
