package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/feed"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/uploads"
)

const adminEmail = "advogada@agendajur.app"

type account struct {
	name     string
	password string
}

// fakeIdentity keeps accounts in memory and records every call in order,
// sharing the order slice with whatever else a test wants to sequence
type fakeIdentity struct {
	mu        sync.Mutex
	accounts  map[string]account
	calls     []string
	order     *[]string
	resetErr  error
	listeners []chan session.AuthEvent
}

func newFakeIdentity() *fakeIdentity {
	order := []string{}
	return &fakeIdentity{accounts: map[string]account{}, order: &order}
}

func (f *fakeIdentity) record(call string) {
	f.calls = append(f.calls, call)
	*f.order = append(*f.order, call)
}

func (f *fakeIdentity) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeIdentity) SignInWithCredentials(ctx context.Context, email, password string) (session.Session, error) {
	f.mu.Lock()
	f.record("signIn")
	a, ok := f.accounts[email]
	f.mu.Unlock()
	if !ok {
		return session.Session{}, errors.New("user not found")
	}
	if a.password != password {
		return session.Session{}, errors.New("wrong password")
	}
	f.broadcast(session.AuthEvent{Email: email, SignedIn: true})
	return session.Session{Email: email, Name: a.name}, nil
}

func (f *fakeIdentity) CreateAccount(ctx context.Context, name, email, password string) (session.Session, error) {
	f.mu.Lock()
	f.record("createAccount")
	if _, ok := f.accounts[email]; ok {
		f.mu.Unlock()
		return session.Session{}, session.ErrDuplicateIdentifier
	}
	f.accounts[email] = account{name: name, password: password}
	f.mu.Unlock()
	return session.Session{Email: email, Name: name}, nil
}

func (f *fakeIdentity) SendPasswordReset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sendPasswordReset")
	if f.resetErr != nil {
		return f.resetErr
	}
	if _, ok := f.accounts[email]; !ok {
		return errors.New("no such account")
	}
	return nil
}

func (f *fakeIdentity) ResetPassword(ctx context.Context, token, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resetPassword")
	if token != "good-token" {
		return session.ErrInvalidResetToken
	}
	return nil
}

func (f *fakeIdentity) SignOut(ctx context.Context, sess session.Session) error {
	f.mu.Lock()
	f.record("signOut")
	f.mu.Unlock()
	f.broadcast(session.AuthEvent{Email: sess.Email, Token: sess.Token})
	return nil
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

// recordingLogs wraps a log store, noting each append in a shared order
type recordingLogs struct {
	*store.MemoryLogs
	mu      sync.Mutex
	order   *[]string
	onWrite func(models.LogEntry)
}

func (r *recordingLogs) Add(ctx context.Context, entry models.LogEntry) error {
	r.mu.Lock()
	if r.order != nil {
		*r.order = append(*r.order, "log:"+entry.Message)
	}
	hook := r.onWrite
	r.mu.Unlock()
	if hook != nil {
		hook(entry)
	}
	return r.MemoryLogs.Add(ctx, entry)
}

// flakyHearings serves subscriptions whose fetches fail on demand
type flakyHearings struct {
	*store.MemoryHearings
	logger   *zap.SugaredLogger
	mu       sync.Mutex
	fail     bool
	triggers []chan struct{}
	active   int
}

func (f *flakyHearings) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *flakyHearings) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *flakyHearings) poke() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.triggers {
		select {
		case t <- struct{}{}:
		default:
		}
	}
}

func (f *flakyHearings) Subscribe(ctx context.Context, filter store.HearingFilter) (*feed.Subscription[models.Hearing], error) {
	trigger := make(chan struct{}, 1)
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger)
	f.active++
	f.mu.Unlock()

	sub := feed.Start(ctx, func(ctx context.Context) ([]models.Hearing, error) {
		f.mu.Lock()
		fail := f.fail
		f.mu.Unlock()
		if fail {
			return nil, errors.New("network unreachable")
		}
		return f.MemoryHearings.Find(ctx, filter)
	}, trigger, f.logger)
	go func() {
		<-sub.Done()
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()
	return sub, nil
}

// gatedHearings holds the first fetch of the first subscription until
// release closes, even if that subscription is cancelled meanwhile
type gatedHearings struct {
	*store.MemoryHearings
	mu      sync.Mutex
	subs    int
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedHearings(h *store.MemoryHearings) *gatedHearings {
	return &gatedHearings{MemoryHearings: h, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedHearings) Subscribe(ctx context.Context, filter store.HearingFilter) (*feed.Subscription[models.Hearing], error) {
	g.mu.Lock()
	first := g.subs == 0
	g.subs++
	g.mu.Unlock()

	return feed.Start(ctx, func(ctx context.Context) ([]models.Hearing, error) {
		if first {
			g.once.Do(func() { close(g.entered) })
			<-g.release
			return g.MemoryHearings.Find(context.Background(), filter)
		}
		return g.MemoryHearings.Find(ctx, filter)
	}, nil, nil), nil
}

// fakeStorage hands out one URL per uploaded file
type fakeStorage struct {
	mu     sync.Mutex
	count  int
	failOn string
}

func (s *fakeStorage) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.failOn {
		return "", errors.New("Invalid image file")
	}
	s.count++
	return fmt.Sprintf("https://res.cloudinary.com/demo/raw/upload/v1/%d-%s", s.count, name), nil
}

func (s *fakeStorage) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func pdfFiles(n int) []uploads.File {
	files := make([]uploads.File, n)
	for i := range files {
		name := fmt.Sprintf("peticao-%02d.pdf", i+1)
		files[i] = uploads.File{
			Name:        name,
			ContentType: uploads.PDFContentType,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(strings.NewReader("%PDF-1.7 " + name)), nil
			},
		}
	}
	return files
}

type fixture struct {
	svc      *session.Service
	identity *fakeIdentity
	hearings *store.MemoryHearings
	logs     *store.MemoryLogs
	storage  *fakeStorage
	admin    *session.Session
}

func newFixture() *fixture {
	identity := newFakeIdentity()
	identity.accounts[adminEmail] = account{name: "Dra. Ana", password: "Senha@123"}
	identity.accounts["a@b.com"] = account{name: "Cliente A", password: "Cliente@1"}
	identity.accounts["c@d.com"] = account{name: "Cliente C", password: "Cliente@2"}

	hearings := store.NewMemoryHearings(nil)
	logs := store.NewMemoryLogs(nil)
	storage := &fakeStorage{}
	svc := session.NewService(identity, hearings, logs, uploads.NewPipeline(storage, nil), session.Roles{AdminEmail: adminEmail}, nil)
	return &fixture{
		svc:      svc,
		identity: identity,
		hearings: hearings,
		logs:     logs,
		storage:  storage,
		admin:    &session.Session{Email: adminEmail, Name: "Dra. Ana"},
	}
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
