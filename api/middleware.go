package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/identity"
	"github.com/linesmerrill/agendajur-api/session"
)

var (
	errRevoked    = errors.New("token has been revoked")
	errSuperseded = errors.New("token issued before the last password change")
)

// CutoffRefresh is how long a password change cutoff read from the identity
// store is reused before it is read again
const CutoffRefresh = time.Minute

// IdentityEvents is what the Authenticator follows to end sessions early:
// sign out events from this process and password changes from the store
type IdentityEvents interface {
	AuthStateChanges() (<-chan session.AuthEvent, func())
	SessionsValidFrom(ctx context.Context, email string) (time.Time, error)
}

// Authenticator guards routes with the bearer tokens issued at sign in
type Authenticator struct {
	tokens        *identity.Tokens
	authenticator auth.Authenticator
	cache         store.Cache
	revoked       store.Cache
	cutoffs       store.Cache
	identity      IdentityEvents
}

// NewAuthenticator sets up go-guardian with a cached bearer strategy that
// validates tokens with t
func NewAuthenticator(ctx context.Context, t *identity.Tokens) *Authenticator {
	a := &Authenticator{
		tokens:        t,
		authenticator: auth.New(),
		cache:         store.NewFIFO(ctx, identity.TokenTTL),
		revoked:       store.NewFIFO(ctx, identity.TokenTTL),
		cutoffs:       store.NewFIFO(ctx, CutoffRefresh),
	}
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, bearer.New(a.validate, a.cache))
	return a
}

// Follow ends sessions when ids reports them over. A sign out bound to a
// token revokes that token. A password change rejects every token of the
// identity issued before it. Follow returns when
// ctx is done.
func (a *Authenticator) Follow(ctx context.Context, ids IdentityEvents) {
	a.identity = ids
	events, stop := ids.AuthStateChanges()
	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.apply(ev)
			}
		}
	}()
}

func (a *Authenticator) apply(ev session.AuthEvent) {
	if ev.Token != "" {
		a.Revoke(nil, ev.Token)
		return
	}
	if !ev.PasswordChanged {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := a.cutoffs.Store(strings.ToLower(ev.Email), at, nil); err != nil {
		zap.S().Warnw("failed to record session cutoff", "email", ev.Email, "error", err)
	}
}

// cutoff returns the time before which tokens of email are rejected
func (a *Authenticator) cutoff(r *http.Request, email string) (time.Time, error) {
	key := strings.ToLower(email)
	if v, ok, err := a.cutoffs.Load(key, r); ok && err == nil {
		return v.(time.Time), nil
	}
	if a.identity == nil {
		return time.Time{}, nil
	}
	at, err := a.identity.SessionsValidFrom(r.Context(), key)
	if err != nil {
		return time.Time{}, err
	}
	if err := a.cutoffs.Store(key, at, r); err != nil {
		zap.S().Warnw("failed to cache session cutoff", "email", email, "error", err)
	}
	return at, nil
}

// check verifies token and that nothing ended its session since it was issued
func (a *Authenticator) check(r *http.Request, token string) (session.Session, error) {
	if _, ok, _ := a.revoked.Load(token, r); ok {
		return session.Session{}, errRevoked
	}
	c, err := a.tokens.Verify(token)
	if err != nil {
		return session.Session{}, err
	}
	cutoff, err := a.cutoff(r, c.Session.Email)
	if err != nil {
		return session.Session{}, err
	}
	if c.IssuedAt.Before(cutoff) {
		return session.Session{}, errSuperseded
	}
	return c.Session, nil
}

func (a *Authenticator) validate(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	sess, err := a.check(r, token)
	if err != nil {
		return nil, err
	}
	return auth.NewDefaultUser(sess.Email, sess.Email, nil, nil), nil
}

// Issue signs a token for sess and caches it so the first requests skip validation
func (a *Authenticator) Issue(r *http.Request, sess session.Session) (string, time.Time, error) {
	token, exp, err := a.tokens.Issue(sess)
	if err != nil {
		return "", time.Time{}, err
	}
	auth.Append(a.authenticator.Strategy(bearer.CachedStrategyKey), token, auth.NewDefaultUser(sess.Email, sess.Email, nil, nil), r)
	return token, exp, nil
}

// Revoke invalidates token for the rest of its lifetime
func (a *Authenticator) Revoke(r *http.Request, token string) {
	auth.Revoke(a.authenticator.Strategy(bearer.CachedStrategyKey), token, r)
	if err := a.revoked.Store(token, true, r); err != nil {
		zap.S().Warnw("failed to record revoked token", "error", err)
	}
}

// Middleware rejects requests without a valid bearer token and stores the
// session in the request context. Websocket clients that cannot set headers
// may pass the token as the "token" query parameter.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if t := r.URL.Query().Get("token"); t != "" {
				r.Header.Set("Authorization", "Bearer "+t)
			}
		}

		token := BearerToken(r)
		_, err := a.authenticator.Authenticate(r)
		if err == nil {
			var sess session.Session
			// cached entries skip validation, so expiry and cutoffs are
			// checked on every request
			sess, err = a.check(r, token)
			if err == nil {
				sess.Token = token
				ctx := WithSession(r.Context(), sess)
				ctx = WithToken(ctx, token)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		zap.S().Warnw("unauthorized",
			"url", r.URL.Path,
			"requestId", RequestIDFrom(r.Context()),
			"error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "unauthorized"}`))
	})
}

// BearerToken extracts the token from the Authorization header
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
