// Package identity is the account backend: users in mongo, bcrypt password
// hashes, emailed reset tokens and signed access tokens.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/email"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
	templates "github.com/linesmerrill/agendajur-api/templates/html"
)

// ResetTokenTTL is how long an emailed reset link stays valid
const ResetTokenTTL = time.Hour

// DefaultAdminName is used when the administrator account is created
// without a display name
const DefaultAdminName = "Administrador"

// PasswordChangedSubject is the subject of the notice sent when an operator
// replaces a password
const PasswordChangedSubject = "Sua senha do AgendaJur foi alterada"

const passwordChangedBody = "A senha da sua conta no AgendaJur foi alterada por um administrador.\nSe você não solicitou esta alteração, entre em contato com o escritório."

// Provider implements session.IdentityProvider over the users collection
type Provider struct {
	Users   databases.UserDatabase
	Resets  databases.PasswordResetDatabase
	Mail    email.Sender
	BaseURL string
	Logger  *zap.SugaredLogger

	now       func() time.Time
	mu        sync.Mutex
	next      int
	listeners map[int]chan session.AuthEvent
}

// NewProvider returns a provider. Reset links point at baseURL.
func NewProvider(users databases.UserDatabase, resets databases.PasswordResetDatabase, mail email.Sender, baseURL string, logger *zap.SugaredLogger) *Provider {
	if logger == nil {
		logger = zap.S()
	}
	return &Provider{
		Users:     users,
		Resets:    resets,
		Mail:      mail,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Logger:    logger,
		now:       time.Now,
		listeners: make(map[int]chan session.AuthEvent),
	}
}

// SignInWithCredentials checks an email and password. Unknown emails and
// wrong passwords both yield session.ErrInvalidCredentials.
func (p *Provider) SignInWithCredentials(ctx context.Context, email, password string) (session.Session, error) {
	user, err := p.Users.FindOne(ctx, bson.M{"user.email": email})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return session.Session{}, session.ErrInvalidCredentials
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(password)); err != nil {
		return session.Session{}, session.ErrInvalidCredentials
	}

	p.broadcast(session.AuthEvent{Email: user.Details.Email, SignedIn: true})
	return session.Session{Email: user.Details.Email, Name: user.Details.Name}, nil
}

// CreateAccount registers a client. Emails are unique.
func (p *Provider) CreateAccount(ctx context.Context, name, email, password string) (session.Session, error) {
	sess, err := p.insertAccount(ctx, name, email, password, models.RoleClient)
	if err != nil {
		return session.Session{}, err
	}
	p.broadcast(session.AuthEvent{Email: email, SignedIn: true})
	return sess, nil
}

// CreateAdmin registers the administrator account. Public sign up refuses
// the administrator email, so this is the only way the account comes to
// exist.
func (p *Provider) CreateAdmin(ctx context.Context, name, addr, password string) error {
	if err := session.ValidatePassword(password); err != nil {
		return err
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !session.ValidEmail(addr) {
		return fmt.Errorf("invalid administrator email %q", addr)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultAdminName
	}
	_, err := p.insertAccount(ctx, name, addr, password, models.RoleAdmin)
	return err
}

func (p *Provider) insertAccount(ctx context.Context, name, email, password, role string) (session.Session, error) {
	count, err := p.Users.CountDocuments(ctx, bson.M{"user.email": email})
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return session.Session{}, session.ErrDuplicateIdentifier
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to hash password: %w", err)
	}
	now := p.now()
	user := models.User{
		ID: primitive.NewObjectID().Hex(),
		Details: models.UserDetails{
			Name:      name,
			Email:     email,
			Password:  string(hash),
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := p.Users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return session.Session{}, session.ErrDuplicateIdentifier
		}
		return session.Session{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return session.Session{Email: email, Name: name}, nil
}

// SendPasswordReset emails a single-use reset link. Unknown emails are
// silently ignored.
func (p *Provider) SendPasswordReset(ctx context.Context, addr string) error {
	user, err := p.Users.FindOne(ctx, bson.M{"user.email": addr})
	if errors.Is(err, mongo.ErrNoDocuments) {
		p.Logger.Debugw("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}
	now := p.now()
	reset := models.PasswordReset{
		ID:        primitive.NewObjectID().Hex(),
		Email:     addr,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(ResetTokenTTL),
		CreatedAt: now,
	}
	if err := p.Resets.InsertOne(ctx, reset); err != nil {
		return fmt.Errorf("failed to store password reset: %w", err)
	}

	link := p.BaseURL + "/reset-password?token=" + url.QueryEscape(token)
	htmlBody, plain := templates.RenderPasswordResetEmail(user.Details.Name, link, "1 hora")
	return p.Mail.Send(ctx, email.Message{
		ToName:  user.Details.Name,
		ToEmail: addr,
		Subject: templates.PasswordResetSubject,
		Plain:   plain,
		HTML:    htmlBody,
	})
}

// ResetPassword sets a new password for the owner of an unused, unexpired
// token. Every other session of that identity is signed out.
func (p *Provider) ResetPassword(ctx context.Context, token, password string) error {
	reset, err := p.Resets.FindOne(ctx, bson.M{"tokenHash": hashToken(token), "usedAt": bson.M{"$exists": false}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return session.ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("failed to find password reset: %w", err)
	}
	now := p.now()
	if !now.Before(reset.ExpiresAt) {
		return session.ErrInvalidResetToken
	}

	matched, err := p.setPassword(ctx, reset.Email, password, now)
	if err != nil {
		return err
	}
	if !matched {
		return session.ErrInvalidResetToken
	}
	if _, err := p.Resets.UpdateOne(ctx, bson.M{"_id": reset.ID}, bson.M{"$set": bson.M{"usedAt": now}}); err != nil {
		p.Logger.Warnw("failed to mark password reset as used", "id", reset.ID, "error", err)
	}

	p.broadcast(session.AuthEvent{Email: reset.Email, PasswordChanged: true, At: now})
	return nil
}

// SetPassword replaces the password of a registered account without a reset
// token and signs its sessions out. It is meant for operators.
func (p *Provider) SetPassword(ctx context.Context, addr, password string) error {
	if err := session.ValidatePassword(password); err != nil {
		return err
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	now := p.now()
	matched, err := p.setPassword(ctx, addr, password, now)
	if err != nil {
		return err
	}
	if !matched {
		return mongo.ErrNoDocuments
	}
	p.broadcast(session.AuthEvent{Email: addr, PasswordChanged: true, At: now})

	err = p.Mail.Send(ctx, email.Message{
		ToEmail: addr,
		Subject: PasswordChangedSubject,
		Plain:   passwordChangedBody,
		HTML:    templates.RenderGenericEmail(PasswordChangedSubject, passwordChangedBody),
	})
	if err != nil {
		p.Logger.Warnw("failed to send password change notice", "email", addr, "error", err)
	}
	return nil
}

func (p *Provider) setPassword(ctx context.Context, email, password string, now time.Time) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := p.Users.UpdateOne(ctx, bson.M{"user.email": email}, bson.M{
		"$set": bson.M{"user.password": string(hash), "user.updatedAt": now, "user.passwordChangedAt": now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to update password: %w", err)
	}
	return res == nil || res.MatchedCount > 0, nil
}

// SignOut announces that sess signed out. A token-bound session only ends
// itself; other sessions of the same identity stay signed in.
func (p *Provider) SignOut(ctx context.Context, sess session.Session) error {
	p.broadcast(session.AuthEvent{Email: sess.Email, Token: sess.Token, At: p.now()})
	return nil
}

// SessionsValidFrom returns when the password of email last changed. Tokens
// issued earlier no longer authenticate. Unknown emails have no cutoff.
func (p *Provider) SessionsValidFrom(ctx context.Context, email string) (time.Time, error) {
	user, err := p.Users.FindOne(ctx, bson.M{"user.email": strings.ToLower(email)})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user.Details.PasswordChangedAt, nil
}

// AuthStateChanges registers a listener for sign in and sign out events. A
// listener that falls behind misses events rather than blocking the provider.
func (p *Provider) AuthStateChanges() (<-chan session.AuthEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan session.AuthEvent, 16)
	p.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
			close(ch)
		})
	}
}

func (p *Provider) broadcast(ev session.AuthEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.listeners {
		select {
		case ch <- ev:
		default:
			p.Logger.Warnw("dropping auth event for slow listener", "user", ev.Email)
		}
	}
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
