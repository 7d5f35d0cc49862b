package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/agendajur-api/session"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens("segredo")
	require.NoError(t, err)
	now := time.Now().Truncate(time.Second)
	tokens.now = func() time.Time { return now }

	signed, exp, err := tokens.Issue(session.Session{Email: "maria@exemplo.com", Name: "Maria"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(TokenTTL), exp)

	sess, parsedExp, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, session.Session{Email: "maria@exemplo.com", Name: "Maria"}, sess)
	assert.True(t, parsedExp.Equal(exp))
}

func TestTokensVerifyKeepsSubSecondIssuedAt(t *testing.T) {
	tokens, err := NewTokens("segredo")
	require.NoError(t, err)
	now := time.Date(2025, 10, 10, 14, 0, 0, 250_000_000, time.UTC)
	tokens.now = func() time.Time { return now }

	signed, _, err := tokens.Issue(session.Session{Email: "maria@exemplo.com", Name: "Maria"})
	require.NoError(t, err)

	c, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "maria@exemplo.com", c.Session.Email)
	assert.True(t, c.IssuedAt.Equal(now), "issued at %s", c.IssuedAt)
	assert.True(t, c.IssuedAt.After(now.Truncate(time.Second)))
}

func TestTokensIssuedTogetherDiffer(t *testing.T) {
	tokens, err := NewTokens("segredo")
	require.NoError(t, err)
	now := time.Now()
	tokens.now = func() time.Time { return now }

	first, _, err := tokens.Issue(session.Session{Email: "maria@exemplo.com"})
	require.NoError(t, err)
	second, _, err := tokens.Issue(session.Session{Email: "maria@exemplo.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTokensRejectExpired(t *testing.T) {
	tokens, err := NewTokens("segredo")
	require.NoError(t, err)
	issued := time.Now().Add(-48 * time.Hour)
	tokens.now = func() time.Time { return issued }
	signed, _, err := tokens.Issue(session.Session{Email: "maria@exemplo.com"})
	require.NoError(t, err)

	tokens.now = time.Now
	_, _, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectOtherKey(t *testing.T) {
	a, _ := NewTokens("segredo")
	b, _ := NewTokens("outro")
	signed, _, err := a.Issue(session.Session{Email: "maria@exemplo.com"})
	require.NoError(t, err)

	_, _, err = b.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectOtherAlgorithm(t *testing.T) {
	tokens, _ := NewTokens("segredo")
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"email": "maria@exemplo.com",
		"typ":   "access",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = tokens.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens("")
	assert.Error(t, err)
}
