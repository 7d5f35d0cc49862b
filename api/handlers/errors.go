package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/uploads"
)

// serviceError writes err with the status code its kind maps to
func serviceError(message string, w http.ResponseWriter, err error) {
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		zap.S().Debugw(message, "fields", verr.Fields)
		b, _ := json.Marshal(models.ValidationErrorResponse{Message: message, Fields: verr.Fields})
		w.WriteHeader(http.StatusBadRequest)
		w.Write(b)
		return
	}
	config.ErrorStatus(message, statusOf(err), w, err)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDuplicateIdentifier):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrTooManyAttachments), errors.Is(err, uploads.ErrUnsupportedType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(status)
	w.Write(b)
}
