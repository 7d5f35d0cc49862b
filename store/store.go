// Package store keeps the hearing collection and the audit log, either in
// process or in mongo, and serves live snapshot subscriptions over them.
package store

import (
	"errors"
	"strings"

	"github.com/linesmerrill/agendajur-api/models"
)

// ErrNotFound is returned when a hearing id matches no record
var ErrNotFound = errors.New("hearing not found")

// HearingFilter scopes hearing reads. An empty ClientEmail means every hearing.
type HearingFilter struct {
	ClientEmail string
}

// Matches reports whether h falls inside the filter. Emails compare
// case-insensitively.
func (f HearingFilter) Matches(h models.Hearing) bool {
	if f.ClientEmail == "" {
		return true
	}
	return strings.EqualFold(f.ClientEmail, h.Details.ClientEmail)
}

// RecentLogLimit bounds the audit log view
const RecentLogLimit = 100
