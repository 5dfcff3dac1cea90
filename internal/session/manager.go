// Package session owns the authentication lifecycle of the client: login,
// logout, restoring a persisted session on startup, and tearing the session
// down when the backend rejects its token.
//
// The epoch identifies one signed-in session. It moves whenever a session
// begins or ends, so work that captured an older epoch (a login in flight,
// a cache fill) knows to discard its result.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticating
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a consistent copy of the session at one point in time. Token
// and User are only set while authenticated.
type Snapshot struct {
	State           State
	Token           string
	User            *core.Profile
	IsAuthenticated bool
	IsLoading       bool
	Err             error
	Epoch           uint64
}

// Authenticator is the part of the backend the session needs.
type Authenticator interface {
	ObtainToken(ctx context.Context, email, password string) (api.Tokens, error)
	Profile(ctx context.Context, token string) (core.Profile, error)
	Register(ctx context.Context, in core.RegisterInput) error
}

type Manager struct {
	auth   Authenticator
	store  storage.Store
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	token     string
	user      *core.Profile
	err       error
	epoch     uint64
	restored  bool
	listeners []func(Snapshot)
}

type Option func(*Manager)

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l.WithComponent(log.ComponentSession) }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(auth Authenticator, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		auth:   auth,
		store:  store,
		logger: log.Discard(),
		now:    time.Now,
		state:  StateInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to be called after every transition. Callbacks run
// on the goroutine that caused the transition, outside the manager's lock.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Token returns the access token while authenticated, "" otherwise. It is
// the executor's token source.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return ""
	}
	return m.token
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated
}

func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// User returns the signed-in profile or ErrNoSession.
func (m *Manager) User() (core.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.user == nil {
		return core.Profile{}, ErrNoSession
	}
	return *m.user, nil
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     m.state,
		Err:       m.err,
		Epoch:     m.epoch,
		IsLoading: m.state == StateInitializing || m.state == StateAuthenticating,
	}
	if m.state == StateAuthenticated && m.user != nil {
		u := *m.user
		s.Token = m.token
		s.User = &u
		s.IsAuthenticated = true
	}
	return s
}

// commit runs fn under the lock. When fn reports a change the listeners
// are called with the resulting snapshot.
func (m *Manager) commit(fn func() bool) Snapshot {
	m.mu.Lock()
	changed := fn()
	snap := m.snapshotLocked()
	var listeners []func(Snapshot)
	if changed {
		listeners = append(listeners, m.listeners...)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return snap
}

// Login authenticates with the backend and loads the user's profile.
func (m *Manager) Login(ctx context.Context, email, password string) (Snapshot, error) {
	if err := validateLogin(email, password); err != nil {
		return m.Snapshot(), err
	}
	email = strings.TrimSpace(email)

	var epoch uint64
	busy := false
	m.commit(func() bool {
		if m.state == StateAuthenticating {
			busy = true
			return false
		}
		if m.state == StateAuthenticated {
			m.epoch++
			m.deletePersisted(ctx)
		}
		m.restored = true
		m.state = StateAuthenticating
		m.token, m.user, m.err = "", nil, nil
		epoch = m.epoch
		return true
	})
	if busy {
		return m.Snapshot(), ErrLoginInProgress
	}
	m.logger.InfoContext(ctx, "Login started", log.FieldOperation, log.OpLogin, log.FieldUser, email)

	tokens, err := m.auth.ObtainToken(ctx, email, password)
	if err != nil {
		return m.failLogin(ctx, epoch, loginError(err))
	}
	if tokens.Access == "" {
		return m.failLogin(ctx, epoch, &AuthError{Kind: ServerError, Msg: msgNoAccessToken})
	}

	m.mu.Lock()
	superseded := m.epoch != epoch
	var persistErr error
	if !superseded {
		persistErr = m.store.Set(ctx, storage.KeyAuthToken, tokens.Access)
	}
	m.mu.Unlock()
	if superseded {
		return m.Snapshot(), ErrSuperseded
	}
	if persistErr != nil {
		return m.failLogin(ctx, epoch, fmt.Errorf("persist token: %w", persistErr))
	}

	profile, err := m.auth.Profile(ctx, tokens.Access)
	switch {
	case err != nil:
		return m.failLogin(ctx, epoch, profileError(err))
	case profile.IsEmpty():
		return m.failLogin(ctx, epoch, &AuthError{Kind: ProfileFetchFailed, Msg: msgEmptyLogin})
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return m.failLogin(ctx, epoch, fmt.Errorf("encode profile: %w", err))
	}

	var outcome error
	snap := m.commit(func() bool {
		if m.epoch != epoch {
			outcome = ErrSuperseded
			return false
		}
		if err := m.store.Set(ctx, storage.KeyUser, string(raw)); err != nil {
			m.deletePersisted(ctx)
			outcome = fmt.Errorf("persist profile: %w", err)
			m.state, m.err = StateError, outcome
			return true
		}
		m.epoch++
		m.state = StateAuthenticated
		m.token = tokens.Access
		m.user = &profile
		return true
	})
	if outcome != nil {
		return snap, outcome
	}
	m.logger.InfoContext(ctx, "Login succeeded",
		log.FieldOperation, log.OpLogin, log.FieldUser, email, log.FieldEpoch, snap.Epoch)
	return snap, nil
}

// failLogin records err and removes anything the login persisted. A
// superseded login has nothing left to remove: the logout that superseded
// it cleared the store, and later writes check the epoch first.
func (m *Manager) failLogin(ctx context.Context, epoch uint64, err error) (Snapshot, error) {
	superseded := false
	snap := m.commit(func() bool {
		if m.epoch != epoch {
			superseded = true
			return false
		}
		m.deletePersisted(ctx)
		m.state = StateError
		m.token, m.user, m.err = "", nil, err
		return true
	})
	if superseded {
		return snap, ErrSuperseded
	}
	m.logger.LogError(ctx, "Login failed", err, log.OpLogin, nil)
	return snap, err
}

// Restore loads the persisted session and validates it against the
// backend. Only the first call does any work; it never leaves the session
// initializing.
func (m *Manager) Restore(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.restored {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.restored = true
	epoch := m.epoch
	m.mu.Unlock()

	token, profile, err := m.readPersisted(ctx)
	if err != nil {
		m.logger.LogError(ctx, "Reading persisted session failed", err, log.OpRestore, nil)
		return m.endRestore(ctx, epoch, restoreResult{err: err})
	}
	if token == "" || profile == nil {
		m.logger.DebugContext(ctx, "No persisted session", log.FieldOperation, log.OpRestore)
		return m.endRestore(ctx, epoch, restoreResult{})
	}
	if tokenExpired(token, m.now()) {
		m.logger.InfoContext(ctx, "Persisted token expired", log.FieldOperation, log.OpRestore)
		return m.endRestore(ctx, epoch, restoreResult{err: ErrSessionExpired, clear: true})
	}

	fresh, err := m.auth.Profile(ctx, token)
	var raw []byte
	switch {
	case err != nil:
		err = profileError(err)
	case fresh.IsEmpty():
		err = &AuthError{Kind: ProfileFetchFailed, Msg: msgEmptyRestore}
	default:
		if raw, err = json.Marshal(fresh); err != nil {
			err = fmt.Errorf("encode profile: %w", err)
		}
	}
	if err != nil {
		m.logger.LogError(ctx, "Session validation failed", err, log.OpRestore, nil)
		return m.endRestore(ctx, epoch, restoreResult{err: err, clear: true})
	}

	snap := m.endRestore(ctx, epoch, restoreResult{user: &fresh, token: token, raw: raw})
	if snap.IsAuthenticated {
		m.logger.InfoContext(ctx, "Session restored",
			log.FieldOperation, log.OpRestore, log.FieldUser, fresh.Email, log.FieldEpoch, snap.Epoch)
	}
	return snap
}

// restoreResult is what Restore found. With user set, raw is the profile
// to persist; otherwise clear removes the persisted entries.
type restoreResult struct {
	user  *core.Profile
	token string
	raw   []byte
	err   error
	clear bool
}

// endRestore applies r unless a login or logout ran since Restore began.
// The store is written under the same check, so a late restore never
// brings back entries a logout removed.
func (m *Manager) endRestore(ctx context.Context, epoch uint64, r restoreResult) Snapshot {
	return m.commit(func() bool {
		if m.epoch != epoch || m.state != StateInitializing {
			return false
		}
		if r.user == nil {
			if r.clear {
				m.deletePersisted(ctx)
			}
			m.state, m.err = StateUnauthenticated, r.err
			return true
		}
		if err := m.store.Set(ctx, storage.KeyUser, string(r.raw)); err != nil {
			m.deletePersisted(ctx)
			m.state, m.err = StateUnauthenticated, fmt.Errorf("persist profile: %w", err)
			return true
		}
		m.epoch++
		m.state, m.token, m.user, m.err = StateAuthenticated, r.token, r.user, nil
		return true
	})
}

func (m *Manager) readPersisted(ctx context.Context) (string, *core.Profile, error) {
	token, _, err := m.store.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		return "", nil, err
	}
	raw, ok, err := m.store.Get(ctx, storage.KeyUser)
	if err != nil || !ok {
		return token, nil, err
	}
	var p core.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		m.logger.WarnContext(ctx, "Dropping unreadable persisted profile", log.FieldError, err.Error())
		if err := m.store.Delete(ctx, storage.KeyUser); err != nil {
			return "", nil, err
		}
		return token, nil, nil
	}
	return token, &p, nil
}

// Logout ends the session. Calling it again is harmless.
func (m *Manager) Logout() {
	if m.end("", nil) {
		m.logger.Info("Logged out", log.FieldOperation, log.OpLogout)
	}
}

// HandleUnauthorized ends the session when token is the current one. The
// executor calls it on every 401, so stale and repeated calls are ignored.
func (m *Manager) HandleUnauthorized(token string) {
	if token == "" {
		return
	}
	if m.end(token, nil) {
		m.logger.Warn("Backend rejected the session token, logged out", log.FieldOperation, log.OpLogout)
	}
}

// end clears the session and reports whether there was one to clear. With
// a non-empty token it only acts while that token is current.
func (m *Manager) end(token string, cause error) bool {
	ended := false
	m.commit(func() bool {
		if token != "" && (m.state != StateAuthenticated || m.token != token) {
			return false
		}
		m.deletePersisted(context.Background())
		if m.state == StateUnauthenticated && m.err == cause {
			return false
		}
		ended = true
		m.epoch++
		m.restored = true
		m.state = StateUnauthenticated
		m.token, m.user, m.err = "", nil, cause
		return true
	})
	return ended
}

// deletePersisted removes the persisted entries. Callers hold m.mu.
func (m *Manager) deletePersisted(ctx context.Context) {
	if err := m.store.Delete(ctx, storage.KeyAuthToken, storage.KeyUser); err != nil {
		m.logger.ErrorContext(ctx, "Clearing persisted session failed", log.FieldError, err.Error())
	}
}

// ClearError dismisses the last error.
func (m *Manager) ClearError() {
	m.commit(func() bool {
		if m.err == nil && m.state != StateError {
			return false
		}
		if m.state == StateError {
			m.state = StateUnauthenticated
		}
		m.err = nil
		return true
	})
}

// Register creates an account. It does not sign the user in.
func (m *Manager) Register(ctx context.Context, in core.RegisterInput) error {
	if err := validateRegister(in); err != nil {
		return err
	}
	if err := m.auth.Register(ctx, in); err != nil {
		authErr := registerError(err)
		m.logger.LogError(ctx, "Registration failed", authErr, log.OpRegister, nil)
		return authErr
	}
	m.logger.InfoContext(ctx, "Account registered",
		log.FieldOperation, log.OpRegister, log.FieldUser, strings.TrimSpace(in.Email))
	return nil
}

// WatchExpiry checks the access token every interval and ends the session
// once its exp claim has passed. It returns when ctx is done.
func (m *Manager) WatchExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckExpiry()
		}
	}
}

// CheckExpiry ends the session if its token has expired and reports
// whether it did.
func (m *Manager) CheckExpiry() bool {
	token := m.Token()
	if token == "" || !tokenExpired(token, m.now()) {
		return false
	}
	if m.end(token, ErrSessionExpired) {
		m.logger.Info("Access token expired, logged out", log.FieldOperation, log.OpLogout)
		return true
	}
	return false
}

// IsSuperseded reports whether err means a result was discarded because
// the session changed while it was being produced.
func IsSuperseded(err error) bool { return errors.Is(err, ErrSuperseded) }
