package identity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/linesmerrill/agendajur-api/session"
)

// TokenTTL is the lifetime of an access token
const TokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for tokens that are malformed, expired or
// signed with another key
var ErrInvalidToken = errors.New("invalid access token")

// Tokens issues and verifies HS256 access tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a token issuer signing with secret
func NewTokens(secret string) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &Tokens{secret: []byte(secret), ttl: TokenTTL, now: time.Now}, nil
}

// Issue signs an access token for sess and returns it with its expiry
func (t *Tokens) Issue(sess session.Session) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	// iat keeps microseconds so a token issued right after a password
	// change is told apart from the ones the change cut off
	claims := jwt.MapClaims{
		"sub":   sess.Email,
		"email": sess.Email,
		"name":  sess.Name,
		"typ":   "access",
		"jti":   uuid.New().String(),
		"iat":   float64(now.UnixMicro()) / 1e6,
		"exp":   exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token generation failed: %w", err)
	}
	return signed, exp, nil
}

// Claims is what a verified access token asserts
type Claims struct {
	Session   session.Session
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Parse verifies a token and returns the session it carries
func (t *Tokens) Parse(token string) (session.Session, time.Time, error) {
	c, err := t.Verify(token)
	if err != nil {
		return session.Session{}, time.Time{}, err
	}
	return c.Session, c.ExpiresAt, nil
}

// Verify checks the signature and expiry of token and returns its claims
func (t *Tokens) Verify(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if typ, _ := claims["typ"].(string); typ != "access" {
		return Claims{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return Claims{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrInvalidToken
	}
	// NumericDate truncates to jwt.TimePrecision, so read the raw value
	iat, ok := claims["iat"].(float64)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		Session:   session.Session{Email: email, Name: name},
		IssuedAt:  time.UnixMicro(int64(math.Round(iat * 1e6))),
		ExpiresAt: exp.Time,
	}, nil
}
