package api

import (
	"context"
	"time"

	"github.com/linesmerrill/agendajur-api/session"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

type contextKey int

const (
	sessionKey contextKey = iota
	tokenKey
	requestIDKey
)

// WithSession stores the authenticated session in ctx
func WithSession(ctx context.Context, sess session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFrom returns the session stored by the auth middleware, or nil
func SessionFrom(ctx context.Context) *session.Session {
	sess, ok := ctx.Value(sessionKey).(session.Session)
	if !ok {
		return nil
	}
	return &sess
}

// WithToken stores the bearer token the request was authenticated with
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom returns the bearer token the request was authenticated with
func TokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the id assigned by RequestLogger
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
