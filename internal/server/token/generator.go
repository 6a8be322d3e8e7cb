// Package token produces access and update tokens for stored files.
//
// A token is the lowercase-hex SHA3-256 digest of a fresh random UUID,
// truncated to the target length. Access tokens are globally unique and
// escalate in length under collision pressure; update tokens are scoped
// to a single file and use a fixed length.
package token

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const (
	// UpdateTokenLength is the fixed length of update tokens.
	UpdateTokenLength = 8

	// DefaultAccessTokenMinLength is the starting access-token length.
	DefaultAccessTokenMinLength = 5

	// initialCollisionBudget is how many collisions are tolerated at the
	// starting length before escalating.
	initialCollisionBudget = 10

	// escalatedCollisionBudget is the per-length tolerance after the
	// first escalation.
	escalatedCollisionBudget = 2
)

// CollisionChecker answers whether an access token is already taken.
// The files repository satisfies it.
type CollisionChecker interface {
	AccessTokenExists(ctx context.Context, accessToken string) (bool, error)
}

type Generator struct {
	store     CollisionChecker
	minLength int
}

func NewGenerator(store CollisionChecker, minLength int) *Generator {
	if minLength <= 0 {
		minLength = DefaultAccessTokenMinLength
	}
	return &Generator{store: store, minLength: minLength}
}

// Generate returns a fresh token truncated to length characters. Lengths
// beyond the digest size (64 hex characters) yield the full digest.
func Generate(length int) string {
	id := uuid.New()
	sum := sha3.Sum256(id[:])
	digest := hex.EncodeToString(sum[:])
	if length > len(digest) {
		length = len(digest)
	}
	return digest[:length]
}

// AccessToken generates a token that is not currently in use. Each
// collision burns one unit of the current length's budget; exhausting the
// budget grows the token by one character and resets the budget.
func (g *Generator) AccessToken(ctx context.Context) (string, error) {
	length := g.minLength
	budget := initialCollisionBudget
	collisions := 0

	for {
		candidate := Generate(length)
		exists, err := g.store.AccessTokenExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}

		collisions++
		if collisions >= budget {
			length++
			collisions = 0
			budget = escalatedCollisionBudget
		}
	}
}

// UpdateToken generates a fixed-length update token. Update tokens are
// compared against a single row only, so no collision check is needed.
func UpdateToken() string {
	return Generate(UpdateTokenLength)
}
