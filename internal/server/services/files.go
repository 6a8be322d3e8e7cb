// Package services holds the domain logic between the HTTP handlers and
// the storage tiers.
package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/cache"
	"github.com/cipherdrop/cipherdrop/internal/server/models"
	"github.com/cipherdrop/cipherdrop/internal/server/repositories/files"
	"github.com/cipherdrop/cipherdrop/internal/server/storage"
	"github.com/cipherdrop/cipherdrop/internal/server/token"
)

// Enqueuer hands an uploaded blob to the write-through synchronizer.
type Enqueuer interface {
	Enqueue(id uuid.UUID, data []byte)
}

// Upload carries the parsed multipart fields of one upload.
type Upload struct {
	FileData      []byte
	FileNameData  string
	ChallengeData string
	ChallengeHash string
	Salt          string
	IV            string
}

// FetchResult is what a fetch resolves to: a direct download URL when the
// backend published one, otherwise the raw ciphertext.
type FetchResult struct {
	URL  *string
	Data []byte
}

// FileService implements the file lifecycle: upload, fetch, challenge,
// expiry extension and deletion.
type FileService struct {
	repo     files.Repository
	cache    *cache.Cache
	provider storage.Provider
	tokens   *token.Generator
	queue    Enqueuer
	logger   logging.Logger
}

func NewFileService(repo files.Repository, c *cache.Cache, provider storage.Provider,
	tokens *token.Generator, queue Enqueuer, logger logging.Logger) *FileService {
	return &FileService{
		repo:     repo,
		cache:    c,
		provider: provider,
		tokens:   tokens,
		queue:    queue,
		logger:   logger,
	}
}

// Upload registers a new file: row in the metadata store, blob in the hot
// cache, and a synchronizer message for the durable write. The cache put
// happens before we return, so an immediate fetch sees the blob.
func (s *FileService) Upload(ctx context.Context, up *Upload) (*models.File, error) {
	accessToken, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	now := time.Now().UTC()
	file := &models.File{
		UUID:          uuid.New(),
		AccessToken:   accessToken,
		UpdateToken:   token.UpdateToken(),
		FileNameData:  up.FileNameData,
		ChallengeData: up.ChallengeData,
		ChallengeHash: up.ChallengeHash,
		Salt:          up.Salt,
		IV:            up.IV,
		CreatedAt:     now,
		ExpiresAt:     now.Add(models.MaxExpirySeconds * time.Second),
	}

	if _, err := s.repo.Insert(ctx, file); err != nil {
		return nil, err
	}

	if err := s.cache.Put(file.UUID, up.FileData); err != nil {
		// not fatal, the synchronizer still carries the bytes
		s.logger.Warn(ctx, "cache put failed", "uuid", file.UUID, "error", err)
	}

	s.queue.Enqueue(file.UUID, up.FileData)

	return file, nil
}

// Fetch resolves the blob for a download. The bearer token must equal the
// file's challenge hash, proving the client solved the challenge.
func (s *FileService) Fetch(ctx context.Context, accessToken, bearer string) (*FetchResult, error) {
	file, err := s.repo.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(bearer), []byte(file.ChallengeHash)) != 1 {
		return nil, common.ErrorInvalidChallenge
	}

	if file.DataURL != nil {
		return &FetchResult{URL: file.DataURL}, nil
	}

	if data, err := s.cache.Get(file.UUID); err == nil {
		return &FetchResult{Data: data}, nil
	}

	fetch, err := s.provider.Get(ctx, file.UUID)
	if err != nil {
		return nil, err
	}
	if fetch.Data == nil {
		// a URL-only backend with no data_url on the row means the
		// synchronizer never finished, nothing to serve
		return nil, common.ErrorInvalidFile
	}
	return &FetchResult{Data: fetch.Data}, nil
}

// GetChallenge returns the material a client needs to attempt the
// challenge.
func (s *FileService) GetChallenge(ctx context.Context, accessToken string) (*files.ChallengeData, error) {
	return s.repo.GetChallenge(ctx, accessToken)
}

// VerifyChallenge checks a solved challenge and, on success, releases the
// encrypted file name. The stored hash itself is never returned.
func (s *FileService) VerifyChallenge(ctx context.Context, accessToken, challenge string) (string, error) {
	vd, err := s.repo.GetVerificationData(ctx, accessToken)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(challenge), []byte(vd.ChallengeHash)) != 1 {
		return "", common.ErrorInvalidChallenge
	}
	return vd.FileNameData, nil
}

// ExtendExpiry sets expires_at to created_at + expiry seconds. The cap is
// measured against creation time, so a file can never outlive its first
// 24 hours by repeated extension.
func (s *FileService) ExtendExpiry(ctx context.Context, accessToken, updateToken string, expiry int64) error {
	if expiry > models.MaxExpirySeconds {
		return common.ErrorInvalidExpiry
	}

	file, err := s.repo.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(updateToken), []byte(file.UpdateToken)) != 1 {
		return common.ErrorUpdateToken
	}

	return s.repo.SetExpiresAt(ctx, file.UUID, file.CreatedAt.Add(time.Duration(expiry)*time.Second))
}

// Delete removes a file on behalf of its owner.
func (s *FileService) Delete(ctx context.Context, accessToken, updateToken string) error {
	file, err := s.repo.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(updateToken), []byte(file.UpdateToken)) != 1 {
		return common.ErrorUpdateToken
	}
	return s.DeleteFile(ctx, file.UUID)
}

// DeleteFile erases one file across all tiers: cache, then backend, then
// the metadata row. The blob goes before the row; if the row went first a
// backend failure would orphan the blob with nothing left to find it by.
// The sweeper shares this flow.
func (s *FileService) DeleteFile(ctx context.Context, id uuid.UUID) error {
	if s.cache.Exists(id) {
		if err := s.cache.Delete(id); err != nil {
			// non-fatal, the backend and the row still get cleaned up
			s.logger.Warn(ctx, "cache deletion failed", "uuid", id,
				"error", fmt.Errorf("%w: %v", common.ErrorCacheDeletion, err))
		}
	}

	exists, err := s.provider.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorProviderDeletion, err)
	}
	if exists {
		if err := s.provider.Delete(ctx, id); err != nil {
			// keep the row so the sweeper finds the uuid again
			return fmt.Errorf("%w: %v", common.ErrorProviderDeletion, err)
		}
	}

	if err := s.repo.DeleteByUUID(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorDatabaseDeletion, err)
	}
	return nil
}
