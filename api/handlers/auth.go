package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/session"
)

// ResetRequestedMessage is returned whether or not the email is registered
const ResetRequestedMessage = "Se o e-mail estiver cadastrado, você receberá um link para redefinir sua senha."

// Auth exported for testing purposes
type Auth struct {
	Svc   *session.Service
	Guard *api.Authenticator
}

type credentials struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
	Token        string `json:"token"`
}

// TokenResponse is returned after a successful sign in or sign up
type TokenResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Session   session.Session `json:"session"`
	Role      string          `json:"role"`
}

// MeResponse describes the authenticated identity
type MeResponse struct {
	session.Session
	Role string `json:"role"`
}

// SignUpHandler registers a client account and signs it in
func (a Auth) SignUpHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	sess, err := a.Svc.SignUp(r.Context(), c.Name, c.Email, c.Password, c.Confirmation)
	if err != nil {
		serviceError("failed to sign up", w, err)
		return
	}
	a.issue(w, r, http.StatusCreated, *sess)
}

// CreateTokenHandler signs in with a JSON body or basic auth and returns a bearer token
func (a Auth) CreateTokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var c credentials
	if email, password, ok := r.BasicAuth(); ok {
		c.Email, c.Password = email, password
	} else if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	sess, err := a.Svc.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		serviceError("failed to sign in", w, err)
		return
	}
	a.issue(w, r, http.StatusOK, *sess)
}

func (a Auth) issue(w http.ResponseWriter, r *http.Request, status int, sess session.Session) {
	token, exp, err := a.Guard.Issue(r, sess)
	if err != nil {
		config.ErrorStatus("failed to create token", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, status, TokenResponse{
		Token:     token,
		ExpiresAt: exp,
		Session:   sess,
		Role:      a.Svc.Roles.Of(sess.Email),
	})
}

// ForgotPasswordHandler emails a reset link. The response never reveals
// whether the address is registered.
func (a Auth) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if err := a.Svc.RequestPasswordReset(r.Context(), c.Email); err != nil {
		serviceError("failed to request password reset", w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": ResetRequestedMessage})
}

// ResetPasswordHandler completes a reset with the emailed token
func (a Auth) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if err := a.Svc.ResetPassword(r.Context(), c.Token, c.Password, c.Confirmation); err != nil {
		serviceError("failed to reset password", w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Senha redefinida com sucesso."})
}

// LogoutHandler records the sign out and revokes the bearer token
func (a Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess := api.SessionFrom(r.Context())
	if err := a.Svc.SignOut(r.Context(), sess); err != nil {
		// the token is revoked regardless, the client is leaving
		zap.S().Warnw("sign out did not complete cleanly", "error", err)
	}
	a.Guard.Revoke(r, api.TokenFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// MeHandler returns the authenticated identity and its role
func (a Auth) MeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess := api.SessionFrom(r.Context())
	if sess == nil {
		serviceError("failed to get session", w, session.ErrNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Session: *sess, Role: a.Svc.Roles.Of(sess.Email)})
}
