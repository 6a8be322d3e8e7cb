// Package files implements the metadata store for uploaded files: one
// authoritative Postgres row per blob, addressed by uuid or access token.
package files

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/server/models"
)

// VerificationData is the projection used by the challenge-verify handler.
type VerificationData struct {
	ChallengeHash string
	FileNameData  string
}

// Metadata is the projection returned to clients fetching a stored file.
type Metadata struct {
	DataURL      *string
	FileNameData string
	IV           string
	Salt         string
}

// ChallengeData is the projection used by the challenge-get handler.
type ChallengeData struct {
	Salt          string
	IV            string
	ChallengeData string
}

// Repository is the metadata store contract. NotFound conditions are
// reported as common.ErrorNotFound.
type Repository interface {
	Insert(ctx context.Context, file *models.File) (*models.File, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.File, error)
	GetByAccessToken(ctx context.Context, accessToken string) (*models.File, error)
	UpdateFull(ctx context.Context, file *models.File) error
	SetDataURL(ctx context.Context, id uuid.UUID, dataURL *string) error
	SetExpiresAt(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	DeleteByUUID(ctx context.Context, id uuid.UUID) error
	AccessTokenExists(ctx context.Context, accessToken string) (bool, error)
	ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Count(ctx context.Context) (int64, error)
	GetVerificationData(ctx context.Context, accessToken string) (*VerificationData, error)
	GetMetadata(ctx context.Context, accessToken string) (*Metadata, error)
	GetChallenge(ctx context.Context, accessToken string) (*ChallengeData, error)
}
