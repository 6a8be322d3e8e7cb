// Package cache implements the bounded hot-tier blob store. Three
// strategies exist: in-memory, on-disk, and hybrid (memory first, spill
// to disk). Keys are file uuids; values are opaque ciphertext.
package cache

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
)

type Strategy string

const (
	StrategyMemory Strategy = "memory"
	StrategyDisk   Strategy = "disk"
	StrategyHybrid Strategy = "hybrid"
)

// Capacity reports the byte budget and current usage of a bounded cache.
type Capacity struct {
	Total uint64
	Used  uint64
}

// Cache is a tagged variant over the three strategies. All operations are
// safe for concurrent use; reads share the lock, writes are exclusive.
type Cache struct {
	strategy Strategy

	mu   sync.RWMutex
	mem  *memoryStore
	disk *DiskStore
}

// NewFromConfig builds the cache selected by cfg.CacheStrategy. Limits
// are megabytes; zero means unbounded.
func NewFromConfig(cfg *config.Config) (*Cache, error) {
	memLimit := mbToBytes(cfg.CacheMemoryLimitMB)
	diskLimit := mbToBytes(cfg.CacheDiskLimitMB)

	switch Strategy(strings.ToLower(cfg.CacheStrategy)) {
	case StrategyMemory:
		return &Cache{
			strategy: StrategyMemory,
			mem:      newMemoryStore(memLimit),
		}, nil
	case StrategyDisk:
		disk, err := NewDiskStore(cfg.CacheDir, diskLimit)
		if err != nil {
			return nil, err
		}
		return &Cache{strategy: StrategyDisk, disk: disk}, nil
	case StrategyHybrid:
		disk, err := NewDiskStore(cfg.CacheDir, diskLimit)
		if err != nil {
			return nil, err
		}
		return &Cache{
			strategy: StrategyHybrid,
			mem:      newMemoryStore(memLimit),
			disk:     disk,
		}, nil
	default:
		return nil, common.ErrorCacheStrategy
	}
}

func (c *Cache) Strategy() Strategy {
	return c.strategy
}

// Put stores the blob. When the byte budget would be exceeded it returns
// common.ErrorCacheLimitExceeded (for hybrid, after the disk spill is
// also exhausted); the caller may proceed, the backend remains the
// source of truth.
func (c *Cache) Put(id uuid.UUID, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.strategy {
	case StrategyMemory:
		return c.mem.put(id, data)
	case StrategyDisk:
		return c.disk.Put(id.String(), data)
	default:
		if err := c.mem.put(id, data); err == nil {
			return nil
		}
		return c.disk.Put(id.String(), data)
	}
}

// Get returns the stored blob or common.ErrorNotFound.
func (c *Cache) Get(id uuid.UUID) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.strategy {
	case StrategyMemory:
		return c.mem.get(id)
	case StrategyDisk:
		return c.disk.Get(id.String())
	default:
		if data, err := c.mem.get(id); err == nil {
			return data, nil
		}
		return c.disk.Get(id.String())
	}
}

// Delete removes the blob. Deleting an absent key is a no-op.
func (c *Cache) Delete(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.strategy {
	case StrategyMemory:
		c.mem.delete(id)
		return nil
	case StrategyDisk:
		return c.disk.Delete(id.String())
	default:
		c.mem.delete(id)
		return c.disk.Delete(id.String())
	}
}

func (c *Cache) Exists(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.strategy {
	case StrategyMemory:
		return c.mem.exists(id)
	case StrategyDisk:
		return c.disk.Exists(id.String())
	default:
		return c.mem.exists(id) || c.disk.Exists(id.String())
	}
}

// Recover re-indexes the spill directory after a restart and returns the
// number of entries found. Only the hybrid strategy supports it; the
// others return common.ErrorNoRecover.
func (c *Cache) Recover() (int, error) {
	if c.strategy != StrategyHybrid {
		return 0, common.ErrorNoRecover
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disk.Recover(func(name string) bool {
		_, err := uuid.Parse(name)
		return err == nil
	})
}

// Capacity reports the combined byte budget, or nil when every configured
// tier is unbounded.
func (c *Cache) Capacity() *Capacity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total, used uint64
	if c.mem != nil {
		total += c.mem.limit
		used += c.mem.used
	}
	if c.disk != nil {
		total += c.disk.limit
		used += c.disk.used
	}
	if total == 0 {
		return nil
	}
	return &Capacity{Total: total, Used: used}
}

func mbToBytes(mb int) uint64 {
	if mb <= 0 {
		return 0
	}
	return uint64(mb) * 1024 * 1024
}
