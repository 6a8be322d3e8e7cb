// Package storage implements the persistent blob backends. A Provider
// holds ciphertext durably after the synchronizer flushes it out of the
// hot cache; the database row only ever references it by uuid.
package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/server/config"
)

// Fetch is the result of reading a blob back from a backend. Exactly one
// of the fields is set: Data for backends that return the ciphertext
// inline, URL for backends that publish a direct download link.
type Fetch struct {
	Data []byte
	URL  string
}

// Provider is a durable blob backend keyed by file uuid.
type Provider interface {
	// Store persists the blob and returns its public URL, or nil when
	// the backend has no directly reachable address.
	Store(ctx context.Context, id uuid.UUID, data []byte) (*string, error)
	Get(ctx context.Context, id uuid.UUID) (*Fetch, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// UsedStorage reports the total size of all stored blobs in bytes.
	UsedStorage(ctx context.Context) (uint64, error)
}

// NewFromConfig selects the backend named by cfg.StorageProvider.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch strings.ToLower(cfg.StorageProvider) {
	case "s3":
		return NewS3Provider(ctx, cfg)
	case "local":
		return NewLocalProvider(cfg)
	case "":
		return nil, common.ErrorNoProvider
	default:
		return nil, &common.InvalidProviderError{Provider: cfg.StorageProvider}
	}
}
