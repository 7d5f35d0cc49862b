package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/feed"
	"github.com/linesmerrill/agendajur-api/models"
)

// State is where a Manager is in the session lifecycle
type State int

// session lifecycle
const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ErrClosed is returned by a Manager after Close
var ErrClosed = errors.New("session manager closed")

// Manager holds one client's session and mirrors the hearings and, for the
// administrator, the audit log it may see. Each identity change cancels the
// running subscriptions before new ones start, and a cancelled subscription
// never writes state.
type Manager struct {
	svc    *Service
	logger *zap.SugaredLogger

	// op serializes lifecycle transitions; mu guards the fields below it
	op sync.Mutex

	mu       sync.RWMutex
	state    State
	sess     *Session
	hearings []models.Hearing
	logs     []models.LogEntry
	gen      uint64
	closed   bool

	stopSubs []func()
	stopAuth func()
	changes  *feed.Notifier
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager returns an unauthenticated manager. It follows the identity
// provider's auth state until Close.
func NewManager(ctx context.Context, svc *Service) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		svc:     svc,
		logger:  svc.Logger.Named("session"),
		changes: feed.NewNotifier(),
		ctx:     ctx,
		cancel:  cancel,
	}

	events, stop := svc.Identity.AuthStateChanges()
	m.stopAuth = stop
	go m.followAuth(events)
	return m
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the current session, or nil
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil
	}
	s := *m.sess
	return &s
}

// Role returns the role of the current session, or "" when signed out
func (m *Manager) Role() string {
	sess := m.Session()
	if sess == nil {
		return ""
	}
	return m.svc.Roles.Of(sess.Email)
}

// Hearings returns the latest hearings snapshot
func (m *Manager) Hearings() []models.Hearing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Hearing{}, m.hearings...)
}

// Logs returns the latest audit log snapshot. It stays empty for clients.
func (m *Manager) Logs() []models.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.LogEntry{}, m.logs...)
}

// Changes signals after every state or snapshot change. Signals coalesce.
// Call the returned func to stop listening.
func (m *Manager) Changes() (<-chan struct{}, func()) {
	return m.changes.Listen()
}

// SignIn authenticates with credentials and starts the live views. On
// failure the previous state is restored.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	return m.authenticate(func() (*Session, error) {
		return m.svc.SignIn(ctx, email, password)
	})
}

// SignUp registers a client account and signs it in
func (m *Manager) SignUp(ctx context.Context, fullName, email, password, confirmation string) error {
	return m.authenticate(func() (*Session, error) {
		return m.svc.SignUp(ctx, fullName, email, password, confirmation)
	})
}

// Resume adopts a session restored from a token, without a credential check
func (m *Manager) Resume(sess Session) error {
	m.op.Lock()
	defer m.op.Unlock()
	if m.isClosed() {
		return ErrClosed
	}
	m.establish(&sess)
	return nil
}

// SignOut logs the departure while the session is still valid, then tears the
// session and its subscriptions down
func (m *Manager) SignOut(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	sess := m.Session()
	if sess == nil {
		return ErrNotAuthenticated
	}
	err := m.svc.SignOut(ctx, sess)
	m.teardown()
	return err
}

// Close tears everything down. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.op.Lock()
	defer m.op.Unlock()
	if m.isClosed() {
		return
	}
	m.teardown()
	m.stopAuth()
	m.cancel()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Manager) authenticate(do func() (*Session, error)) error {
	m.op.Lock()
	defer m.op.Unlock()
	if m.isClosed() {
		return ErrClosed
	}

	m.mu.Lock()
	prev := m.state
	m.state = Authenticating
	m.mu.Unlock()
	m.changes.Notify()

	sess, err := do()
	if err != nil {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		m.changes.Notify()
		return err
	}
	m.establish(sess)
	return nil
}

// establish must be called with op held
func (m *Manager) establish(sess *Session) {
	m.stopSubscriptions()

	m.mu.Lock()
	if m.sess == nil || !strings.EqualFold(m.sess.Email, sess.Email) {
		m.hearings = []models.Hearing{}
		m.logs = []models.LogEntry{}
	}
	m.sess = sess
	m.state = Authenticated
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.startSubscriptions(gen, sess)
	m.changes.Notify()
}

// teardown must be called with op held
func (m *Manager) teardown() {
	m.stopSubscriptions()

	m.mu.Lock()
	m.sess = nil
	m.state = Unauthenticated
	m.hearings = []models.Hearing{}
	m.logs = []models.LogEntry{}
	m.gen++
	m.mu.Unlock()
	m.changes.Notify()
}

func (m *Manager) startSubscriptions(gen uint64, sess *Session) {
	hearings, err := m.svc.WatchHearings(m.ctx, sess)
	if err != nil {
		m.logger.Errorw("failed to subscribe to hearings", "user", sess.Email, "error", err)
	} else {
		m.stopSubs = append(m.stopSubs, hearings.Cancel)
		go pump(m, gen, hearings, func(snap []models.Hearing) { m.hearings = snap })
	}

	if !m.svc.Roles.IsAdmin(sess) {
		return
	}
	logs, err := m.svc.WatchLogs(m.ctx, sess)
	if err != nil {
		m.logger.Errorw("failed to subscribe to logs", "user", sess.Email, "error", err)
		return
	}
	m.stopSubs = append(m.stopSubs, logs.Cancel)
	go pump(m, gen, logs, func(snap []models.LogEntry) { m.logs = snap })
}

// stopSubscriptions cancels the running subscriptions and waits for them.
// The generation bump in the caller keeps any snapshot already read from
// being applied.
func (m *Manager) stopSubscriptions() {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()

	for _, stop := range m.stopSubs {
		stop()
	}
	m.stopSubs = nil
}

// pump applies snapshots from sub while gen is current
func pump[T any](m *Manager, gen uint64, sub *feed.Subscription[T], apply func([]T)) {
	for snap := range sub.C() {
		m.mu.Lock()
		current := m.gen == gen
		if current {
			apply(snap)
		}
		m.mu.Unlock()
		if current {
			m.changes.Notify()
		}
	}
}

func (m *Manager) followAuth(events <-chan AuthEvent) {
	for ev := range events {
		if ev.SignedIn {
			continue
		}
		m.op.Lock()
		sess := m.Session()
		if sess != nil && strings.EqualFold(sess.Email, ev.Email) && (ev.Token == "" || ev.Token == sess.Token) {
			m.logger.Infow("signed out by the identity provider", "user", sess.Email)
			m.teardown()
		}
		m.op.Unlock()
	}
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
