package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/server/cache"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
)

// LocalProvider stores blobs in a bounded directory on the server's own
// disk. There is no public URL; Get returns the bytes inline. It reuses
// the disk store so usage accounting and the byte budget behave exactly
// like the cache spill tier.
type LocalProvider struct {
	store *cache.DiskStore
}

// NewLocalProvider opens the storage directory and re-indexes any blobs
// that survived a restart.
func NewLocalProvider(cfg *config.Config) (*LocalProvider, error) {
	var limit uint64
	if cfg.LocalStorageLimitMB > 0 {
		limit = uint64(cfg.LocalStorageLimitMB) * 1024 * 1024
	}

	store, err := cache.NewDiskStore(cfg.LocalStorageDir, limit)
	if err != nil {
		return nil, err
	}
	if _, err := store.Recover(func(name string) bool {
		_, err := uuid.Parse(name)
		return err == nil
	}); err != nil {
		return nil, err
	}
	return &LocalProvider{store: store}, nil
}

func (p *LocalProvider) Store(_ context.Context, id uuid.UUID, data []byte) (*string, error) {
	if err := p.store.Put(id.String(), data); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *LocalProvider) Get(_ context.Context, id uuid.UUID) (*Fetch, error) {
	data, err := p.store.Get(id.String())
	if err != nil {
		return nil, err
	}
	return &Fetch{Data: data}, nil
}

func (p *LocalProvider) Delete(_ context.Context, id uuid.UUID) error {
	return p.store.Delete(id.String())
}

func (p *LocalProvider) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return p.store.Exists(id.String()), nil
}

func (p *LocalProvider) UsedStorage(_ context.Context) (uint64, error) {
	return p.store.Used(), nil
}
