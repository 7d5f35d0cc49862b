package handlers

import (
	"net/http"
	"time"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/uploads"
)

// Signer signs direct-to-storage upload requests
type Signer interface {
	Sign(now time.Time) (uploads.Signature, error)
}

// CloudinaryHandler handles Cloudinary related requests
type CloudinaryHandler struct {
	Signer Signer
	Roles  session.Roles
}

// GenerateSignature generates a signature for Cloudinary uploads made by the
// administrator's client directly
func (c CloudinaryHandler) GenerateSignature(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess := api.SessionFrom(r.Context())
	if !c.Roles.IsAdmin(sess) {
		serviceError("failed to generate signature", w, session.ErrForbidden)
		return
	}
	if c.Signer == nil {
		config.ErrorStatus("uploads are not configured", http.StatusServiceUnavailable, w, nil)
		return
	}

	sig, err := c.Signer.Sign(time.Now())
	if err != nil {
		config.ErrorStatus("failed to generate signature", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}
