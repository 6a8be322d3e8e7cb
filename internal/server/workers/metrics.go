package workers

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/cache"
	"github.com/cipherdrop/cipherdrop/internal/server/metrics"
	"github.com/cipherdrop/cipherdrop/internal/server/repositories/files"
	"github.com/cipherdrop/cipherdrop/internal/server/storage"
)

// MetricsInterval is how often the storage and host gauges are refreshed.
const MetricsInterval = 60 * time.Second

// MetricsUpdater samples the storage tiers and the host and publishes the
// readings as Prometheus gauges.
type MetricsUpdater struct {
	metrics  *metrics.ServerMetrics
	repo     files.Repository
	cache    *cache.Cache
	provider storage.Provider
	logger   logging.Logger
	interval time.Duration
}

func NewMetricsUpdater(m *metrics.ServerMetrics, repo files.Repository, c *cache.Cache,
	provider storage.Provider, logger logging.Logger) *MetricsUpdater {
	return &MetricsUpdater{
		metrics:  m,
		repo:     repo,
		cache:    c,
		provider: provider,
		logger:   logger,
		interval: MetricsInterval,
	}
}

func (u *MetricsUpdater) Run(ctx context.Context) {
	u.Update(ctx)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Update(ctx)
		}
	}
}

// Update refreshes every gauge once. Each sample failure is logged and
// the stale reading kept.
func (u *MetricsUpdater) Update(ctx context.Context) {
	if used, err := u.provider.UsedStorage(ctx); err != nil {
		u.logger.Warn(ctx, "sampling backend storage failed", "error", err)
	} else {
		u.metrics.UsedStorageBytes.Set(float64(used))
	}

	if capacity := u.cache.Capacity(); capacity != nil {
		u.metrics.CacheTotalCapacityBytes.Set(float64(capacity.Total))
		u.metrics.CacheUsedCapacityBytes.Set(float64(capacity.Used))
	}

	if count, err := u.repo.Count(ctx); err != nil {
		u.logger.Warn(ctx, "counting files failed", "error", err)
	} else {
		u.metrics.DatabaseFileCount.Set(float64(count))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		u.logger.Warn(ctx, "sampling memory failed", "error", err)
	} else {
		u.metrics.RAMUsageBytes.Set(float64(vm.Used))
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		u.logger.Warn(ctx, "sampling cpu failed", "error", err)
	} else if len(percents) > 0 {
		u.metrics.AvgCPUUsage.Set(percents[0])
	}
}
