// Package session owns authentication, role-scoped access to hearings and the
// audit trail every mutation leaves behind.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/linesmerrill/agendajur-api/feed"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/uploads"
)

// Session is an authenticated identity. Its role is derived on demand, see Roles.
type Session struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	// Token is the bearer token the session was restored from, if any
	Token string `json:"-"`
}

var (
	// ErrInvalidCredentials covers both unknown emails and wrong passwords
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateIdentifier is returned when signing up with a registered email
	ErrDuplicateIdentifier = errors.New("email already registered")
	// ErrForbidden is returned when a client attempts an administrator operation
	ErrForbidden = errors.New("operation requires the administrator role")
	// ErrNotAuthenticated is returned when an operation needs a session and has none
	ErrNotAuthenticated = errors.New("not signed in")
	// ErrInvalidResetToken is returned for unknown, used or expired reset tokens
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	// ErrTooManyAttachments is returned when a hearing would exceed its attachment cap
	ErrTooManyAttachments = uploads.ErrTooManyFiles
)

// AuthEvent is pushed by an IdentityProvider when an identity signs in or out
type AuthEvent struct {
	Email    string
	SignedIn bool
	// Token limits a sign out to the session holding that token. A sign out
	// without one ends every session of Email.
	Token string
	// PasswordChanged marks the sign out caused by a new password. Tokens
	// of Email issued before At stop authenticating.
	PasswordChanged bool
	// At is when the event happened
	At time.Time
}

// IdentityProvider checks credentials and manages accounts
type IdentityProvider interface {
	SignInWithCredentials(ctx context.Context, email, password string) (Session, error)
	CreateAccount(ctx context.Context, name, email, password string) (Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	SignOut(ctx context.Context, sess Session) error
	AuthStateChanges() (<-chan AuthEvent, func())
}

// HearingStore persists hearings
type HearingStore interface {
	Add(ctx context.Context, details models.HearingDetails) (models.Hearing, error)
	Update(ctx context.Context, id string, details models.HearingDetails) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Hearing, error)
	Find(ctx context.Context, f store.HearingFilter) ([]models.Hearing, error)
	Subscribe(ctx context.Context, f store.HearingFilter) (*feed.Subscription[models.Hearing], error)
}

// LogStore persists the audit log
type LogStore interface {
	Add(ctx context.Context, entry models.LogEntry) error
	Recent(ctx context.Context, limit int) ([]models.LogEntry, error)
	Subscribe(ctx context.Context, limit int) (*feed.Subscription[models.LogEntry], error)
}

// Uploader runs an attachment upload
type Uploader interface {
	Run(ctx context.Context, files []uploads.File) <-chan uploads.Progress
}

// AttachmentVerifier recognises document URLs held by the attachment storage
type AttachmentVerifier interface {
	Owns(url string) bool
}

// Roles derives a role from an email. The administrator is whoever signs in
// with AdminEmail.
type Roles struct {
	AdminEmail string
}

// Of returns models.RoleAdmin for the administrator email, compared
// case-insensitively, and models.RoleClient for everyone else
func (r Roles) Of(email string) string {
	admin := strings.TrimSpace(r.AdminEmail)
	if admin != "" && strings.EqualFold(strings.TrimSpace(email), admin) {
		return models.RoleAdmin
	}
	return models.RoleClient
}

// IsAdmin reports whether s is the administrator session
func (r Roles) IsAdmin(s *Session) bool {
	return s != nil && r.Of(s.Email) == models.RoleAdmin
}

// Filter scopes hearing reads to what s may see
func (r Roles) Filter(s *Session) store.HearingFilter {
	if r.IsAdmin(s) {
		return store.HearingFilter{}
	}
	return store.HearingFilter{ClientEmail: s.Email}
}
