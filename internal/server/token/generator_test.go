package token

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collideN reports a collision for the first n candidates and records the
// length of every candidate it sees.
type collideN struct {
	n       int
	calls   int
	lengths []int
}

func (c *collideN) AccessTokenExists(_ context.Context, tok string) (bool, error) {
	c.calls++
	c.lengths = append(c.lengths, len(tok))
	return c.calls <= c.n, nil
}

func TestGenerate_LengthAndHex(t *testing.T) {
	for _, l := range []int{1, 5, 8, 64} {
		tok := Generate(l)
		require.Len(t, tok, l)
		_, err := hex.DecodeString(tok)
		require.NoError(t, err, "token must be lowercase hex")
	}
}

func TestGenerate_TruncatesToDigestSize(t *testing.T) {
	tok := Generate(500)
	assert.Len(t, tok, 64)
}

func TestGenerate_Distinct(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tok := Generate(16)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %q after %d draws", tok, i)
		seen[tok] = struct{}{}
	}
}

func TestAccessToken_NoCollision(t *testing.T) {
	store := &collideN{n: 0}
	g := NewGenerator(store, 5)

	tok, err := g.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Len(t, tok, 5)
	assert.Equal(t, 1, store.calls)
}

func TestAccessToken_EscalatesAfterTenCollisions(t *testing.T) {
	store := &collideN{n: 10}
	g := NewGenerator(store, 5)

	tok, err := g.AccessToken(context.Background())
	require.NoError(t, err)

	// Ten colliding candidates at the minimum length, then one longer.
	for i := 0; i < 10; i++ {
		assert.Equal(t, 5, store.lengths[i])
	}
	assert.Len(t, tok, 6)
}

func TestAccessToken_SecondEscalationAfterTwoMore(t *testing.T) {
	store := &collideN{n: 12}
	g := NewGenerator(store, 5)

	tok, err := g.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, store.lengths[10])
	assert.Equal(t, 6, store.lengths[11])
	assert.Len(t, tok, 7)
}

func TestUpdateToken_FixedLength(t *testing.T) {
	tok := UpdateToken()
	assert.Len(t, tok, UpdateTokenLength)
}

func TestNewGenerator_DefaultMinLength(t *testing.T) {
	g := NewGenerator(&collideN{}, 0)
	assert.Equal(t, DefaultAccessTokenMinLength, g.minLength)
}
