// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxExpirySeconds caps how far past creation a file may live (24 h).
const MaxExpirySeconds = 86400

// File is the authoritative metadata row for one uploaded ciphertext blob.
// The blob itself lives in the cache and/or the storage provider, keyed by
// UUID; the server never holds plaintext.
type File struct {
	// UUID identifies the file across all storage tiers.
	UUID uuid.UUID
	// AccessToken is the opaque public handle used for lookups.
	AccessToken string
	// UpdateToken is the secret handle authorizing mutation and deletion.
	UpdateToken string
	// DataURL is set once the blob is durably persisted to a provider that
	// serves public URLs; nil for the local provider.
	DataURL *string
	// FileNameData is the ciphertext of the file name.
	FileNameData string
	// ChallengeData is the opaque ciphertext presented to clients as the
	// possession challenge.
	ChallengeData string
	// ChallengeHash is the expected hash of the decrypted challenge answer.
	// Never serialized to clients.
	ChallengeHash string `json:"-"`
	// Salt and IV are the client-side key-derivation parameters.
	Salt string
	IV   string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the file is past its expiry at the given instant.
func (f *File) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}
