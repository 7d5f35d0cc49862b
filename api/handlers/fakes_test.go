package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/api/handlers"
	"github.com/linesmerrill/agendajur-api/identity"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/uploads"
)

const adminEmail = "advogada@agendajur.app"

var storeAll = store.HearingFilter{}

type account struct {
	name     string
	password string
}

type fakeIdentity struct {
	mu        sync.Mutex
	accounts  map[string]account
	resets    []string
	listeners []chan session.AuthEvent
	// resetOwner is the account "good-token" resets
	resetOwner string
	changed    map[string]time.Time
}

func (f *fakeIdentity) SignInWithCredentials(ctx context.Context, email, password string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok || a.password != password {
		return session.Session{}, errors.New("bad credentials")
	}
	return session.Session{Email: email, Name: a.name}, nil
}

func (f *fakeIdentity) CreateAccount(ctx context.Context, name, email, password string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return session.Session{}, session.ErrDuplicateIdentifier
	}
	f.accounts[email] = account{name: name, password: password}
	return session.Session{Email: email, Name: name}, nil
}

func (f *fakeIdentity) SendPasswordReset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, email)
	if _, ok := f.accounts[email]; !ok {
		return errors.New("no such account")
	}
	return nil
}

func (f *fakeIdentity) ResetPassword(ctx context.Context, token, password string) error {
	if token != "good-token" {
		return session.ErrInvalidResetToken
	}
	f.mu.Lock()
	owner := f.resetOwner
	f.mu.Unlock()
	if owner != "" {
		f.broadcast(session.AuthEvent{Email: owner, PasswordChanged: true, At: time.Now()})
	}
	return nil
}

func (f *fakeIdentity) SignOut(ctx context.Context, sess session.Session) error {
	f.broadcast(session.AuthEvent{Email: sess.Email, Token: sess.Token, At: time.Now()})
	return nil
}

func (f *fakeIdentity) SessionsValidFrom(ctx context.Context, email string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed[email], nil
}

func (f *fakeIdentity) AuthStateChanges() (<-chan session.AuthEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan session.AuthEvent, 8)
	f.listeners = append(f.listeners, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, l := range f.listeners {
				if l == ch {
					f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

func (f *fakeIdentity) broadcast(ev session.AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listeners {
		select {
		case l <- ev:
		default:
		}
	}
}

type fakeStorage struct {
	mu    sync.Mutex
	count int
}

func (s *fakeStorage) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return fmt.Sprintf("https://res.cloudinary.com/demo/raw/upload/v1/%d-%s", s.count, name), nil
}

func (s *fakeStorage) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type testApp struct {
	app      *handlers.App
	identity *fakeIdentity
	hearings *store.MemoryHearings
	logs     *store.MemoryLogs
	storage  *fakeStorage
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ident := &fakeIdentity{accounts: map[string]account{
		adminEmail: {name: "Dra. Ana", password: "Senha@123"},
		"a@b.com":  {name: "Cliente A", password: "Cliente@1"},
		"c@d.com":  {name: "Cliente C", password: "Cliente@2"},
	}}
	hearings := store.NewMemoryHearings(nil)
	logs := store.NewMemoryLogs(nil)
	storage := &fakeStorage{}

	tokens, err := identity.NewTokens("test-secret")
	require.NoError(t, err)
	signer, err := uploads.NewCloudinaryStorage("demo", "key", "secret", "agendajur_docs")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := session.NewService(ident, hearings, logs, uploads.NewPipeline(storage, nil),
		session.Roles{AdminEmail: adminEmail}, nil)
	svc.Stored = signer
	a := &handlers.App{
		Service: svc,
		Auth:    api.NewAuthenticator(ctx, tokens),
		Signer:  signer,
		Limiter: api.NewRateLimiter(6000, 1000),
	}
	a.Auth.Follow(ctx, ident)
	a.Router = a.New()
	return &testApp{app: a, identity: ident, hearings: hearings, logs: logs, storage: storage}
}

func (ta *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ta.app.Router.ServeHTTP(rr, req)
	return rr
}

func (ta *testApp) token(t *testing.T, email, password string) string {
	t.Helper()
	rr := ta.do(jsonRequest("POST", "/api/v1/auth/token", map[string]string{"email": email, "password": password}, ""))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp handlers.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func (ta *testApp) seed(t *testing.T, details models.HearingDetails) models.Hearing {
	t.Helper()
	h, err := ta.hearings.Add(context.Background(), details)
	require.NoError(t, err)
	return h
}

// recentLogs returns the audit log newest first
func (ta *testApp) recentLogs(t *testing.T) []models.LogEntry {
	t.Helper()
	entries, err := ta.logs.Recent(context.Background(), store.RecentLogLimit)
	require.NoError(t, err)
	return entries
}

func jsonRequest(method, target string, body interface{}, token string) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type part struct {
	name        string
	contentType string
}

// multipartRequest builds a form with an optional "hearing" JSON field and
// one "files" part per entry
func multipartRequest(t *testing.T, target string, hearing *models.HearingDetails, files []part, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if hearing != nil {
		b, err := json.Marshal(hearing)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("hearing", string(b)))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.name))
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(w, "%PDF-1.7 "+f.name)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func scenarioHearing() models.HearingDetails {
	return models.HearingDetails{
		ProcessNumber: "001/2025",
		ClientEmail:   "a@b.com",
		Date:          "10/10/2025",
		Time:          "14:00",
		Location:      "Fórum X",
		Parties:       "A vs B",
		Nature:        "Conciliação",
	}
}
