package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/feed"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/uploads"
)

// Service runs every session and hearing operation. It holds no per-user
// state; the acting session is passed to each call.
type Service struct {
	Identity IdentityProvider
	Roles    Roles
	Logger   *zap.SugaredLogger
	// Stored recognises attachments uploaded outside the pipeline. When nil
	// a new hearing may only carry attachments the pipeline produced.
	Stored AttachmentVerifier

	hearings HearingStore
	logs     LogStore
	uploader Uploader
	now      func() time.Time
}

// NewService wires a Service
func NewService(identity IdentityProvider, hearings HearingStore, logs LogStore, up Uploader, roles Roles, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.S()
	}
	return &Service{
		Identity: identity,
		hearings: hearings,
		logs:     logs,
		uploader: up,
		Roles:    roles,
		Logger:   logger,
		now:      time.Now,
	}
}

// SignIn checks credentials with the identity provider. Every provider
// failure is reported as ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	f := fieldErrors{}
	f.required("email", email)
	f.required("password", password)
	if err := f.err(); err != nil {
		return nil, err
	}

	sess, err := s.Identity.SignInWithCredentials(ctx, normalizeEmail(email), password)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.Logger.Debugw("sign in rejected", "error", err)
		return nil, ErrInvalidCredentials
	}
	s.audit(ctx, &sess, models.LogTypeAuth, fmt.Sprintf("%s fez login", displayName(&sess)))
	return &sess, nil
}

// SignUp registers a client account and signs it in. Input is validated in
// full before the provider is called. The administrator identity cannot be
// claimed here; it reports as taken whether or not the account exists.
func (s *Service) SignUp(ctx context.Context, fullName, email, password, confirmation string) (*Session, error) {
	f := fieldErrors{}
	f.required("name", fullName)
	f.required("email", email)
	f.email("email", email)
	newPassword(f, password, confirmation)
	if err := f.err(); err != nil {
		return nil, err
	}
	if s.Roles.Of(email) == models.RoleAdmin {
		return nil, ErrDuplicateIdentifier
	}

	sess, err := s.Identity.CreateAccount(ctx, strings.TrimSpace(fullName), normalizeEmail(email), password)
	if errors.Is(err, ErrDuplicateIdentifier) {
		return nil, ErrDuplicateIdentifier
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	s.audit(ctx, &sess, models.LogTypeAuth, fmt.Sprintf("%s se cadastrou e fez login", displayName(&sess)))
	return &sess, nil
}

// RequestPasswordReset asks the provider to email a reset link. It succeeds
// whenever the email is present so callers cannot discover accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	f := fieldErrors{}
	f.required("email", email)
	if err := f.err(); err != nil {
		return err
	}
	if err := s.Identity.SendPasswordReset(ctx, normalizeEmail(email)); err != nil {
		s.Logger.Warnw("password reset request failed", "error", err)
	}
	return nil
}

// ResetPassword completes an emailed reset with a new password
func (s *Service) ResetPassword(ctx context.Context, token, password, confirmation string) error {
	f := fieldErrors{}
	f.required("token", token)
	newPassword(f, password, confirmation)
	if err := f.err(); err != nil {
		return err
	}
	if err := s.Identity.ResetPassword(ctx, token, password); err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return nil
}

// SignOut records the departure while sess is still valid, then signs it out
// with the provider
func (s *Service) SignOut(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNotAuthenticated
	}
	s.audit(ctx, sess, models.LogTypeAuth, fmt.Sprintf("%s fez logout", displayName(sess)))
	if err := s.Identity.SignOut(ctx, *sess); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// CreateHearing stores a new hearing and logs it
func (s *Service) CreateHearing(ctx context.Context, sess *Session, details models.HearingDetails) (models.Hearing, error) {
	if err := s.requireAdmin(sess); err != nil {
		return models.Hearing{}, err
	}
	details = NormalizeHearing(details)
	if err := ValidateHearing(details); err != nil {
		return models.Hearing{}, err
	}
	if err := s.checkAttachments(details.Attachments); err != nil {
		return models.Hearing{}, err
	}
	return s.create(ctx, sess, details)
}

// SubmitHearing validates details, uploads files in order and only then
// stores the hearing with their attachments. A failed upload stores nothing.
// onProgress, when set, sees every upload step.
func (s *Service) SubmitHearing(ctx context.Context, sess *Session, details models.HearingDetails, files []uploads.File, onProgress func(uploads.Progress)) (models.Hearing, error) {
	if err := s.requireAdmin(sess); err != nil {
		return models.Hearing{}, err
	}
	details = NormalizeHearing(details)
	if err := ValidateHearing(details); err != nil {
		return models.Hearing{}, err
	}
	if err := s.checkAttachments(details.Attachments); err != nil {
		return models.Hearing{}, err
	}
	if err := uploads.Validate(len(details.Attachments), files); err != nil {
		return models.Hearing{}, err
	}

	uploaded, err := s.upload(ctx, files, onProgress)
	if err != nil {
		return models.Hearing{}, err
	}
	details.Attachments = append(append([]models.Attachment{}, details.Attachments...), uploaded...)
	return s.create(ctx, sess, details)
}

// checkAttachments accepts attachments sent with a new hearing only when
// they point at documents in the configured storage
func (s *Service) checkAttachments(attachments []models.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	if len(attachments) > models.MaxAttachments {
		return ErrTooManyAttachments
	}
	for _, a := range attachments {
		if strings.TrimSpace(a.Name) == "" || s.Stored == nil || !s.Stored.Owns(a.URL) {
			return &ValidationError{Fields: map[string]string{"attachments": msgForeignAttachment}}
		}
	}
	return nil
}

func (s *Service) create(ctx context.Context, sess *Session, details models.HearingDetails) (models.Hearing, error) {
	now := s.now()
	details.CreatedBy = sess.Email
	details.CreatedAt = now
	details.UpdatedAt = now
	if details.Attachments == nil {
		details.Attachments = []models.Attachment{}
	}

	h, err := s.hearings.Add(ctx, details)
	if err != nil {
		return models.Hearing{}, fmt.Errorf("failed to create hearing: %w", err)
	}
	s.audit(ctx, sess, models.LogTypeAdd, fmt.Sprintf("%s adicionou a audiência %s", displayName(sess), details.ProcessNumber))
	return h, nil
}

// UpdateHearing replaces the details of a hearing. The administrator may
// move a hearing to another client; the log entry records the move.
// Attachments are kept as stored; they change only through AddAttachments
// and RemoveAttachment.
func (s *Service) UpdateHearing(ctx context.Context, sess *Session, id string, details models.HearingDetails) error {
	if err := s.requireAdmin(sess); err != nil {
		return err
	}
	details = NormalizeHearing(details)
	if err := ValidateHearing(details); err != nil {
		return err
	}

	current, err := s.hearings.Get(ctx, id)
	if err != nil {
		return err
	}
	details.CreatedBy = current.Details.CreatedBy
	details.CreatedAt = current.Details.CreatedAt
	details.UpdatedAt = s.now()
	details.Attachments = current.Details.Attachments

	if err := s.hearings.Update(ctx, id, details); err != nil {
		return fmt.Errorf("failed to update hearing: %w", err)
	}

	msg := fmt.Sprintf("%s atualizou a audiência %s", displayName(sess), details.ProcessNumber)
	if !strings.EqualFold(current.Details.ClientEmail, details.ClientEmail) {
		msg += fmt.Sprintf(" (cliente alterado de %s para %s)", current.Details.ClientEmail, details.ClientEmail)
	}
	s.audit(ctx, sess, models.LogTypeUpdate, msg)
	return nil
}

// DeleteHearing removes a hearing. An unknown id changes nothing and logs
// nothing.
func (s *Service) DeleteHearing(ctx context.Context, sess *Session, id string) error {
	if err := s.requireAdmin(sess); err != nil {
		return err
	}
	current, err := s.hearings.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.hearings.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete hearing: %w", err)
	}
	s.audit(ctx, sess, models.LogTypeDelete, fmt.Sprintf("%s excluiu a audiência %s", displayName(sess), current.Details.ProcessNumber))
	return nil
}

// AddAttachments uploads files and appends them to a hearing. The cap is
// checked before anything is uploaded.
func (s *Service) AddAttachments(ctx context.Context, sess *Session, id string, files []uploads.File, onProgress func(uploads.Progress)) (*models.Hearing, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	current, err := s.hearings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uploads.Validate(len(current.Details.Attachments), files); err != nil {
		return nil, err
	}

	uploaded, err := s.upload(ctx, files, onProgress)
	if err != nil {
		return nil, err
	}
	details := current.Details
	details.Attachments = append(append([]models.Attachment{}, details.Attachments...), uploaded...)
	details.UpdatedAt = s.now()
	if err := s.hearings.Update(ctx, id, details); err != nil {
		return nil, fmt.Errorf("failed to update hearing: %w", err)
	}
	s.audit(ctx, sess, models.LogTypeUpdate, fmt.Sprintf("%s anexou %d documento(s) à audiência %s", displayName(sess), len(uploaded), details.ProcessNumber))

	current.Details = details
	return current, nil
}

// RemoveAttachment drops the attachment at index from a hearing
func (s *Service) RemoveAttachment(ctx context.Context, sess *Session, id string, index int) (*models.Hearing, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	current, err := s.hearings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(current.Details.Attachments) {
		return nil, &ValidationError{Fields: map[string]string{"index": "anexo inexistente"}}
	}

	details := current.Details
	removed := details.Attachments[index]
	attachments := make([]models.Attachment, 0, len(details.Attachments)-1)
	attachments = append(attachments, details.Attachments[:index]...)
	details.Attachments = append(attachments, details.Attachments[index+1:]...)
	details.UpdatedAt = s.now()
	if err := s.hearings.Update(ctx, id, details); err != nil {
		return nil, fmt.Errorf("failed to update hearing: %w", err)
	}
	s.audit(ctx, sess, models.LogTypeUpdate, fmt.Sprintf("%s removeu o anexo %s da audiência %s", displayName(sess), removed.Name, details.ProcessNumber))

	current.Details = details
	return current, nil
}

// Hearing returns one hearing the session may see. Another client's hearing
// is reported as store.ErrNotFound.
func (s *Service) Hearing(ctx context.Context, sess *Session, id string) (*models.Hearing, error) {
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	h, err := s.hearings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Roles.Filter(sess).Matches(*h) {
		return nil, store.ErrNotFound
	}
	return h, nil
}

// Hearings returns the hearings the session may see, ascending by date
func (s *Service) Hearings(ctx context.Context, sess *Session) ([]models.Hearing, error) {
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	f := s.Roles.Filter(sess)
	hs, err := s.hearings.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return scope(f, hs), nil
}

// Logs returns the most recent audit entries, newest first
func (s *Service) Logs(ctx context.Context, sess *Session) ([]models.LogEntry, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	return s.logs.Recent(ctx, store.RecentLogLimit)
}

// WatchHearings subscribes to the hearings the session may see
func (s *Service) WatchHearings(ctx context.Context, sess *Session) (*feed.Subscription[models.Hearing], error) {
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	return s.hearings.Subscribe(ctx, s.Roles.Filter(sess))
}

// WatchLogs subscribes to the most recent audit entries
func (s *Service) WatchLogs(ctx context.Context, sess *Session) (*feed.Subscription[models.LogEntry], error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	return s.logs.Subscribe(ctx, store.RecentLogLimit)
}

func (s *Service) requireAdmin(sess *Session) error {
	if sess == nil {
		return ErrNotAuthenticated
	}
	if !s.Roles.IsAdmin(sess) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) upload(ctx context.Context, files []uploads.File, onProgress func(uploads.Progress)) ([]models.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.uploader == nil {
		return nil, errors.New("attachment uploads are not configured")
	}
	attachments, err := uploads.Collect(s.uploader.Run(ctx, files), onProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachments: %w", err)
	}
	return attachments, nil
}

// audit appends a log entry. The action it records has already happened, so
// a failed append is logged rather than returned.
func (s *Service) audit(ctx context.Context, sess *Session, typ models.LogType, message string) {
	entry := models.LogEntry{
		Timestamp: s.now(),
		Message:   message,
		Type:      typ,
		User:      sess.Email,
	}
	if err := s.logs.Add(ctx, entry); err != nil {
		s.Logger.Errorw("failed to write audit log entry", "type", typ, "user", sess.Email, "error", err)
	}
}

// scope drops anything outside f. Stores filter already; a store returning
// more than asked must still not leak another client's hearings.
func scope(f store.HearingFilter, hs []models.Hearing) []models.Hearing {
	out := hs[:0:0]
	for _, h := range hs {
		if f.Matches(h) {
			out = append(out, h)
		}
	}
	if out == nil {
		out = []models.Hearing{}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(sess *Session) string {
	if strings.TrimSpace(sess.Name) != "" {
		return sess.Name
	}
	return sess.Email
}
