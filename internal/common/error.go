// Package common defines shared constants and sentinel errors used across
// the cipherdrop server layers. Callers should use errors.Is to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Handler-level validation errors.
	ErrorUpdateToken      = errors.New("wrong update token")
	ErrorInvalidChallenge = errors.New("challenge failed")
	ErrorInvalidExpiry    = errors.New("invalid expiry")
	ErrorInvalidFile      = errors.New("invalid file")

	// Cache errors.
	ErrorCacheLimitExceeded = errors.New("cache limit exceeded")
	ErrorNoRecover          = errors.New("recover is only supported by the hybrid cache strategy")
	ErrorCacheStrategy      = errors.New("unknown cache strategy, expected one of: memory, disk, hybrid")

	// Storage provider selection errors.
	ErrorNoProvider = errors.New("no storage provider configured")

	// Per-tier deletion errors surfaced by the sweeper and delete handler.
	ErrorCacheDeletion    = errors.New("cache deletion failed")
	ErrorProviderDeletion = errors.New("storage provider deletion failed")
	ErrorDatabaseDeletion = errors.New("database deletion failed")
)

// InvalidProviderError reports an unrecognized STORAGE_PROVIDER value.
type InvalidProviderError struct {
	Provider string
}

func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("unknown storage provider %q, expected one of: s3, local", e.Provider)
}

// FieldMissingError reports an incomplete multipart upload: the named
// field was absent from the form data.
type FieldMissingError struct {
	Field string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("upload incomplete, missing field: %s", e.Field)
}

// FileUploadError reports a multipart stream failure during upload.
type FileUploadError struct {
	Reason string
}

func (e *FileUploadError) Error() string {
	return fmt.Sprintf("file upload failed: %s", e.Reason)
}
