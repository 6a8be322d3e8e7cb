package files

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/server/models"
)

// InMemoryRepository is a map-backed Repository used by tests and local
// experiments. It mirrors the Postgres semantics, including NotFound.
type InMemoryRepository struct {
	mu    sync.RWMutex
	files map[uuid.UUID]*models.File
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{files: make(map[uuid.UUID]*models.File)}
}

func (r *InMemoryRepository) Insert(_ context.Context, file *models.File) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *file
	r.files[file.UUID] = &stored
	result := stored
	return &result, nil
}

func (r *InMemoryRepository) GetByUUID(_ context.Context, id uuid.UUID) (*models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	result := *file
	return &result, nil
}

func (r *InMemoryRepository) GetByAccessToken(_ context.Context, accessToken string) (*models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.byAccessToken(accessToken)
	if !ok {
		return nil, common.ErrorNotFound
	}
	result := *file
	return &result, nil
}

func (r *InMemoryRepository) UpdateFull(_ context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[file.UUID]; !ok {
		return common.ErrorNotFound
	}
	stored := *file
	r.files[file.UUID] = &stored
	return nil
}

func (r *InMemoryRepository) SetDataURL(_ context.Context, id uuid.UUID, dataURL *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	file.DataURL = dataURL
	return nil
}

func (r *InMemoryRepository) SetExpiresAt(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	file.ExpiresAt = expiresAt
	return nil
}

func (r *InMemoryRepository) DeleteByUUID(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

func (r *InMemoryRepository) AccessTokenExists(_ context.Context, accessToken string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAccessToken(accessToken)
	return ok, nil
}

func (r *InMemoryRepository) ListExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uuid.UUID
	for id, file := range r.files {
		if file.ExpiresAt.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *InMemoryRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.files)), nil
}

func (r *InMemoryRepository) GetVerificationData(_ context.Context, accessToken string) (*VerificationData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.byAccessToken(accessToken)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &VerificationData{ChallengeHash: file.ChallengeHash, FileNameData: file.FileNameData}, nil
}

func (r *InMemoryRepository) GetMetadata(_ context.Context, accessToken string) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.byAccessToken(accessToken)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &Metadata{
		DataURL:      file.DataURL,
		FileNameData: file.FileNameData,
		IV:           file.IV,
		Salt:         file.Salt,
	}, nil
}

func (r *InMemoryRepository) GetChallenge(_ context.Context, accessToken string) (*ChallengeData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	file, ok := r.byAccessToken(accessToken)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &ChallengeData{Salt: file.Salt, IV: file.IV, ChallengeData: file.ChallengeData}, nil
}

// byAccessToken must be called with the lock held.
func (r *InMemoryRepository) byAccessToken(accessToken string) (*models.File, bool) {
	for _, file := range r.files {
		if file.AccessToken == accessToken {
			return file, true
		}
	}
	return nil, false
}
