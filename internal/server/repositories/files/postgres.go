package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/common"
	"github.com/cipherdrop/cipherdrop/internal/server/models"
)

const fileColumns = `uuid, access_token, update_token, data_url, file_name_data, challenge_data, challenge_hash, salt, iv, created_at, expires_at`

// PostgresRepository implements Repository over a *sql.DB.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository constructs a repository bound to the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new file row and returns it. Uuid and access-token
// collisions surface as a unique-constraint error from the driver; the
// caller regenerates tokens and retries.
func (r *PostgresRepository) Insert(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		file.UUID, file.AccessToken, file.UpdateToken, file.DataURL,
		file.FileNameData, file.ChallengeData, file.ChallengeHash,
		file.Salt, file.IV, file.CreatedAt, file.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert file: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE uuid=$1`
	return r.scanFile(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByAccessToken(ctx context.Context, accessToken string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE access_token=$1`
	return r.scanFile(r.db.QueryRowContext(ctx, query, accessToken))
}

func (r *PostgresRepository) scanFile(row *sql.Row) (*models.File, error) {
	result := &models.File{}
	err := row.Scan(&result.UUID, &result.AccessToken, &result.UpdateToken,
		&result.DataURL, &result.FileNameData, &result.ChallengeData,
		&result.ChallengeHash, &result.Salt, &result.IV,
		&result.CreatedAt, &result.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return result, nil
}

// UpdateFull writes all mutable columns for the file's uuid.
func (r *PostgresRepository) UpdateFull(ctx context.Context, file *models.File) error {
	query := `
		UPDATE files
		SET access_token=$2, update_token=$3, data_url=$4, file_name_data=$5,
			challenge_data=$6, challenge_hash=$7, salt=$8, iv=$9, expires_at=$10
		WHERE uuid=$1
	`
	res, err := r.db.ExecContext(ctx, query,
		file.UUID, file.AccessToken, file.UpdateToken, file.DataURL,
		file.FileNameData, file.ChallengeData, file.ChallengeHash,
		file.Salt, file.IV, file.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	return r.exactlyOne(res)
}

func (r *PostgresRepository) SetDataURL(ctx context.Context, id uuid.UUID, dataURL *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE files SET data_url=$2 WHERE uuid=$1`, id, dataURL)
	if err != nil {
		return fmt.Errorf("failed to update data url: %w", err)
	}
	return r.exactlyOne(res)
}

func (r *PostgresRepository) SetExpiresAt(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE files SET expires_at=$2 WHERE uuid=$1`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update expiry: %w", err)
	}
	return r.exactlyOne(res)
}

// DeleteByUUID removes the file row. Deleting an absent row is not an
// error; idempotence matters to the sweeper, which may race the delete
// handler.
func (r *PostgresRepository) DeleteByUUID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE uuid=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AccessTokenExists(ctx context.Context, accessToken string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM files WHERE access_token=$1)`
	if err := r.db.QueryRowContext(ctx, query, accessToken).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check access token: %w", err)
	}
	return exists, nil
}

// ListExpired returns the uuids of all rows whose expiry is strictly in
// the past.
func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT uuid FROM files WHERE expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired files: %w", err)
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) GetVerificationData(ctx context.Context, accessToken string) (*VerificationData, error) {
	query := `SELECT challenge_hash, file_name_data FROM files WHERE access_token=$1`
	result := &VerificationData{}
	err := r.db.QueryRowContext(ctx, query, accessToken).Scan(&result.ChallengeHash, &result.FileNameData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select verification data: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetMetadata(ctx context.Context, accessToken string) (*Metadata, error) {
	query := `SELECT data_url, file_name_data, iv, salt FROM files WHERE access_token=$1`
	result := &Metadata{}
	err := r.db.QueryRowContext(ctx, query, accessToken).Scan(&result.DataURL, &result.FileNameData, &result.IV, &result.Salt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file metadata: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetChallenge(ctx context.Context, accessToken string) (*ChallengeData, error) {
	query := `SELECT salt, iv, challenge_data FROM files WHERE access_token=$1`
	result := &ChallengeData{}
	err := r.db.QueryRowContext(ctx, query, accessToken).Scan(&result.Salt, &result.IV, &result.ChallengeData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select challenge: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) exactlyOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
