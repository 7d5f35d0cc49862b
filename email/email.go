// Package email sends transactional mail through SendGrid.
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// FromName is the display name on every outgoing message
const FromName = "AgendaJur"

// Message is one email to one recipient
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Plain   string
	HTML    string
}

// Sender delivers a message
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SendGrid delivers mail with the SendGrid v3 API
type SendGrid struct {
	client *sendgrid.Client
	from   string
}

// NewSendGrid returns a sender using apiKey, mailing from the given address
func NewSendGrid(apiKey, from string) *SendGrid {
	return &SendGrid{client: sendgrid.NewSendClient(apiKey), from: from}
}

// Send delivers m. A 4xx or 5xx answer from SendGrid is an error.
func (s *SendGrid) Send(ctx context.Context, m Message) error {
	from := mail.NewEmail(FromName, s.from)
	to := mail.NewEmail(m.ToName, m.ToEmail)
	message := mail.NewSingleEmail(from, m.Subject, to, m.Plain, m.HTML)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", m.ToEmail)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("email sent successfully", "to", m.ToEmail, "subject", m.Subject)
	return nil
}

// LogSender writes messages to the log instead of sending them. It stands in
// when no SendGrid key is configured.
type LogSender struct {
	Logger *zap.SugaredLogger
}

// Send logs m
func (l LogSender) Send(ctx context.Context, m Message) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.S()
	}
	logger.Infow("email not sent, no mail provider configured", "to", m.ToEmail, "subject", m.Subject, "body", m.Plain)
	return nil
}
