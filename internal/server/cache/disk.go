package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cipherdrop/cipherdrop/internal/common"
)

// DiskStore is a bounded directory of blobs, one file per key. It keeps
// an in-memory size index so usage accounting never has to walk the
// directory. It is safe for concurrent use and is shared between the
// hybrid cache spill tier and the local storage provider.
type DiskStore struct {
	mu    sync.RWMutex
	dir   string
	limit uint64
	used  uint64
	index map[string]uint64
}

// NewDiskStore creates the directory if needed. limit is in bytes, zero
// means unbounded.
func NewDiskStore(dir string, limit uint64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &DiskStore{
		dir:   dir,
		limit: limit,
		index: make(map[string]uint64),
	}, nil
}

func (d *DiskStore) path(key string) string {
	return filepath.Join(d.dir, key)
}

func (d *DiskStore) Put(key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := uint64(len(data))
	prev := d.index[key]
	if d.limit > 0 && d.used-prev+size > d.limit {
		return common.ErrorCacheLimitExceeded
	}
	if err := os.WriteFile(d.path(key), data, 0o644); err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}
	d.used = d.used - prev + size
	d.index[key] = size
	return nil
}

func (d *DiskStore) Get(key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.index[key]; !ok {
		return nil, common.ErrorNotFound
	}
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob; absent keys are a no-op.
func (d *DiskStore) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	size, ok := d.index[key]
	if !ok {
		return nil
	}
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob %s: %w", key, err)
	}
	d.used -= size
	delete(d.index, key)
	return nil
}

func (d *DiskStore) Exists(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.index[key]
	return ok
}

// Used returns the accounted size of all indexed blobs in bytes.
func (d *DiskStore) Used() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.used
}

// Recover rebuilds the index from the files already on disk, keeping
// entries whose name the accept filter approves. It returns the number
// of recovered entries.
func (d *DiskStore) Recover(accept func(name string) bool) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dirents, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("reading cache directory %s: %w", d.dir, err)
	}

	d.index = make(map[string]uint64)
	d.used = 0
	for _, dirent := range dirents {
		if dirent.IsDir() {
			continue
		}
		name := dirent.Name()
		if accept != nil && !accept(name) {
			continue
		}
		info, err := dirent.Info()
		if err != nil {
			continue
		}
		size := uint64(info.Size())
		d.index[name] = size
		d.used += size
	}
	return len(d.index), nil
}
