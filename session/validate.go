package session

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/linesmerrill/agendajur-api/models"
)

// password policy failures
var (
	ErrPasswordTooShort = errors.New("A senha deve ter no mínimo 8 caracteres.")
	ErrPasswordNoLower  = errors.New("A senha deve conter ao menos uma letra minúscula.")
	ErrPasswordNoUpper  = errors.New("A senha deve conter ao menos uma letra maiúscula.")
	ErrPasswordNoSymbol = errors.New("A senha deve conter ao menos um símbolo (ex: !@#$%).")
	ErrPasswordMismatch = errors.New("As senhas não coincidem.")
)

const (
	msgRequired     = "campo obrigatório"
	msgInvalidEmail = "e-mail inválido"

	msgForeignAttachment = "anexo não enviado pelo AgendaJur"
)

// MinPasswordLength is the shortest password accepted at sign up
const MinPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError reports which input fields were rejected and why. It is
// produced before anything reaches a provider or a store.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) required(name, value string) {
	if strings.TrimSpace(value) == "" {
		f[name] = msgRequired
	}
}

func (f fieldErrors) email(name, value string) {
	if _, ok := f[name]; ok {
		return
	}
	if !ValidEmail(value) {
		f[name] = msgInvalidEmail
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// ValidEmail reports whether s looks like an email address
func ValidEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// ValidatePassword enforces the sign up password policy, returning the
// first rule p breaks
func ValidatePassword(p string) error {
	if len([]rune(p)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	var lower, upper, symbol bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
		default:
			symbol = true
		}
	}
	switch {
	case !lower:
		return ErrPasswordNoLower
	case !upper:
		return ErrPasswordNoUpper
	case !symbol:
		return ErrPasswordNoSymbol
	}
	return nil
}

// newPassword checks a password and its confirmation
func newPassword(f fieldErrors, password, confirmation string) {
	f.required("password", password)
	f.required("confirmation", confirmation)
	if _, ok := f["password"]; ok {
		return
	}
	if err := ValidatePassword(password); err != nil {
		f["password"] = err.Error()
		return
	}
	if _, ok := f["confirmation"]; !ok && password != confirmation {
		f["confirmation"] = ErrPasswordMismatch.Error()
	}
}

// NormalizeHearing trims every field, strips disallowed characters from the
// process number and lower-cases the client email
func NormalizeHearing(d models.HearingDetails) models.HearingDetails {
	d.ProcessNumber = models.SanitizeProcessNumber(strings.TrimSpace(d.ProcessNumber))
	d.ClientEmail = strings.ToLower(strings.TrimSpace(d.ClientEmail))
	d.Date = strings.TrimSpace(d.Date)
	d.Time = strings.TrimSpace(d.Time)
	d.Location = strings.TrimSpace(d.Location)
	d.Parties = strings.TrimSpace(d.Parties)
	d.Nature = strings.TrimSpace(d.Nature)
	d.Description = strings.TrimSpace(d.Description)
	return d
}

// ValidateHearing checks the required hearing fields of normalized details
func ValidateHearing(d models.HearingDetails) error {
	f := fieldErrors{}
	f.required("processNumber", d.ProcessNumber)
	f.required("clientEmail", d.ClientEmail)
	f.email("clientEmail", d.ClientEmail)
	f.required("date", d.Date)
	f.required("time", d.Time)
	f.required("location", d.Location)
	f.required("parties", d.Parties)
	f.required("nature", d.Nature)
	if len(d.Attachments) > models.MaxAttachments {
		f["attachments"] = ErrTooManyAttachments.Error()
	}
	return f.err()
}
