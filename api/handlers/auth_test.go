package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/agendajur-api/api/handlers"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
)

func TestCreateTokenAdmin(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/token", map[string]string{"email": "Advogada@AgendaJur.app", "password": "Senha@123"}, ""))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp handlers.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.RoleAdmin, resp.Role)
	assert.Equal(t, "Dra. Ana", resp.Session.Name)

	entries := ta.recentLogs(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "Dra. Ana fez login", entries[0].Message)
	assert.Equal(t, models.LogTypeAuth, entries[0].Type)
}

func TestCreateTokenBasicAuth(t *testing.T) {
	ta := newTestApp(t)
	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("a@b.com", "Cliente@1")

	rr := ta.do(req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp handlers.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleClient, resp.Role)
}

func TestCreateTokenInvalidCredentials(t *testing.T) {
	ta := newTestApp(t)

	for _, body := range []map[string]string{
		{"email": "a@b.com", "password": "wrong"},
		{"email": "nobody@b.com", "password": "Cliente@1"},
	} {
		rr := ta.do(jsonRequest("POST", "/api/v1/auth/token", body, ""))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		var resp models.ErrorMessageResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, session.ErrInvalidCredentials.Error(), resp.Response.Error)
	}
	assert.Empty(t, ta.recentLogs(t))
}

func TestCreateTokenMissingFields(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/token", map[string]string{}, ""))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp models.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "password")
}

func TestCreateTokenBadJSON(t *testing.T) {
	ta := newTestApp(t)
	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.Body = http.NoBody

	rr := ta.do(req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignUp(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/signup", map[string]string{
		"name": "Maria Souza", "email": "maria@exemplo.com", "password": "Forte#2025", "confirmation": "Forte#2025",
	}, ""))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp handlers.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleClient, resp.Role)

	me := ta.do(jsonRequest("GET", "/api/v1/auth/me", nil, resp.Token))
	require.Equal(t, http.StatusOK, me.Code)
	var who handlers.MeResponse
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &who))
	assert.Equal(t, "maria@exemplo.com", who.Email)
	assert.Equal(t, "Maria Souza", who.Name)
	assert.Equal(t, models.RoleClient, who.Role)
}

func TestSignUpWeakPassword(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/signup", map[string]string{
		"name": "Maria Souza", "email": "maria@exemplo.com", "password": "fraca", "confirmation": "fraca",
	}, ""))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp models.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, session.ErrPasswordTooShort.Error(), resp.Fields["password"])
	ta.identity.mu.Lock()
	defer ta.identity.mu.Unlock()
	assert.NotContains(t, ta.identity.accounts, "maria@exemplo.com")
}

func TestSignUpDuplicate(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/signup", map[string]string{
		"name": "Outro", "email": "a@b.com", "password": "Forte#2025", "confirmation": "Forte#2025",
	}, ""))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSignUpWithAdminEmailIsRefused(t *testing.T) {
	ta := newTestApp(t)
	ta.identity.mu.Lock()
	delete(ta.identity.accounts, adminEmail)
	ta.identity.mu.Unlock()

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/signup", map[string]string{
		"name": "Intrusa", "email": "ADVOGADA@agendajur.app", "password": "Forte#2025", "confirmation": "Forte#2025",
	}, ""))

	assert.Equal(t, http.StatusConflict, rr.Code)
	ta.identity.mu.Lock()
	defer ta.identity.mu.Unlock()
	assert.NotContains(t, ta.identity.accounts, adminEmail)
}

func TestForgotPasswordNeverRevealsAccounts(t *testing.T) {
	ta := newTestApp(t)

	for _, addr := range []string{"a@b.com", "nobody@b.com"} {
		rr := ta.do(jsonRequest("POST", "/api/v1/auth/forgot-password", map[string]string{"email": addr}, ""))

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.JSONEq(t, `{"message": "`+handlers.ResetRequestedMessage+`"}`, rr.Body.String())
	}
	assert.Len(t, ta.identity.resets, 2)
}

func TestResetPassword(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/reset-password", map[string]string{
		"token": "good-token", "password": "Nova#Senha1", "confirmation": "Nova#Senha1",
	}, ""))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(jsonRequest("POST", "/api/v1/auth/reset-password", map[string]string{
		"token": "stale", "password": "Nova#Senha1", "confirmation": "Nova#Senha1",
	}, ""))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	ta := newTestApp(t)
	token := ta.token(t, "a@b.com", "Cliente@1")

	rr := ta.do(jsonRequest("DELETE", "/api/v1/auth/logout", nil, token))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(jsonRequest("GET", "/api/v1/hearings", nil, token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	entries := ta.recentLogs(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "Cliente A fez logout", entries[0].Message)
}

func TestResetPasswordEndsExistingTokens(t *testing.T) {
	ta := newTestApp(t)
	ta.identity.resetOwner = "a@b.com"
	old := ta.token(t, "a@b.com", "Cliente@1")
	require.Equal(t, http.StatusOK, ta.do(jsonRequest("GET", "/api/v1/hearings", nil, old)).Code)

	rr := ta.do(jsonRequest("POST", "/api/v1/auth/reset-password", map[string]string{
		"token": "good-token", "password": "Nova#Senha1", "confirmation": "Nova#Senha1",
	}, ""))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Eventually(t, func() bool {
		return ta.do(jsonRequest("GET", "/api/v1/hearings", nil, old)).Code == http.StatusUnauthorized
	}, time.Second, 10*time.Millisecond)

	fresh := ta.token(t, "a@b.com", "Cliente@1")
	assert.Equal(t, http.StatusOK, ta.do(jsonRequest("GET", "/api/v1/hearings", nil, fresh)).Code)
}

func TestStoredPasswordChangeEndsExistingTokens(t *testing.T) {
	ta := newTestApp(t)
	old := ta.token(t, "a@b.com", "Cliente@1")
	ta.identity.mu.Lock()
	ta.identity.changed = map[string]time.Time{"a@b.com": time.Now()}
	ta.identity.mu.Unlock()

	assert.Equal(t, http.StatusUnauthorized, ta.do(jsonRequest("GET", "/api/v1/hearings", nil, old)).Code)
}

func TestLogoutKeepsOtherDevicesSignedIn(t *testing.T) {
	ta := newTestApp(t)
	laptop := ta.token(t, "a@b.com", "Cliente@1")
	phone := ta.token(t, "a@b.com", "Cliente@1")
	require.NotEqual(t, laptop, phone)

	require.Equal(t, http.StatusOK, ta.do(jsonRequest("DELETE", "/api/v1/auth/logout", nil, laptop)).Code)

	assert.Equal(t, http.StatusUnauthorized, ta.do(jsonRequest("GET", "/api/v1/hearings", nil, laptop)).Code)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, http.StatusOK, ta.do(jsonRequest("GET", "/api/v1/hearings", nil, phone)).Code)
}
