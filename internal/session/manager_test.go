package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/session"
	"fintrack/internal/storage"
	"fintrack/internal/testutil/fakeapi"
)

const (
	email    = "user@example.com"
	password = "secret"
)

type harness struct {
	srv    *fakeapi.Server
	store  *storage.MemoryStore
	client *api.Client
	m      *session.Manager
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	srv.AddUser(email, password, "Ann", "Lee")

	exec, err := api.NewExecutor(srv.URL, 5*time.Second)
	require.NoError(t, err)
	client := api.NewClient(exec)
	store := storage.NewMemoryStore()
	m := session.NewManager(client, store, opts...)
	exec.SetTokenSource(m.Token)
	exec.SetUnauthorizedFunc(m.HandleUnauthorized)
	return &harness{srv: srv, store: store, client: client, m: m}
}

func (h *harness) persist(t *testing.T, token string, profile any) {
	t.Helper()
	ctx := context.Background()
	if token != "" {
		require.NoError(t, h.store.Set(ctx, storage.KeyAuthToken, token))
	}
	switch p := profile.(type) {
	case nil:
	case string:
		require.NoError(t, h.store.Set(ctx, storage.KeyUser, p))
	default:
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		require.NoError(t, h.store.Set(ctx, storage.KeyUser, string(raw)))
	}
}

func (h *harness) stored(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestLoginSucceeds(t *testing.T) {
	h := newHarness(t)

	snap, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)

	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.NotEmpty(t, snap.Token)
	require.NotNil(t, snap.User)
	assert.Equal(t, "Ann", snap.User.FirstName)
	assert.Equal(t, snap.Token, h.m.Token())

	token, ok := h.stored(t, storage.KeyAuthToken)
	assert.True(t, ok)
	assert.Equal(t, snap.Token, token)
	raw, ok := h.stored(t, storage.KeyUser)
	require.True(t, ok)
	var p core.Profile
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, email, p.Email)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		setup    func(*fakeapi.Server)
		kind     session.Kind
		msg      string
	}{
		{
			name:     "wrong password",
			email:    email,
			password: "nope",
			kind:     session.InvalidCredentials,
			msg:      "No active account found with the given credentials",
		},
		{
			name:     "server error without message",
			email:    email,
			password: password,
			setup:    func(s *fakeapi.Server) { s.Force(http.MethodPost, "/api/token/", 500, `{}`) },
			kind:     session.ServerError,
			msg:      "Login failed: 500.",
		},
		{
			name:     "forbidden with message",
			email:    email,
			password: password,
			setup:    func(s *fakeapi.Server) { s.Force(http.MethodPost, "/api/token/", 403, `{"message":"account disabled"}`) },
			kind:     session.InvalidCredentials,
			msg:      "account disabled",
		},
		{
			name:     "no access token",
			email:    email,
			password: password,
			setup:    func(s *fakeapi.Server) { s.SetOmitAccess(true) },
			kind:     session.ServerError,
			msg:      "Login successful, but no authentication token was received.",
		},
		{
			name:     "empty profile",
			email:    email,
			password: password,
			setup:    func(s *fakeapi.Server) { s.SetEmptyProfile(true) },
			kind:     session.ProfileFetchFailed,
			msg:      "Login successful, but user profile could not be retrieved or is empty.",
		},
		{
			name:     "profile rejected",
			email:    email,
			password: password,
			setup:    func(s *fakeapi.Server) { s.Force(http.MethodGet, "/api/profile/", 503, ``) },
			kind:     session.ProfileFetchFailed,
			msg:      "Failed to fetch profile: 503.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h.srv)
			}

			snap, err := h.m.Login(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.True(t, session.IsKind(err, tt.kind), "kind of %v", err)
			assert.Equal(t, tt.msg, err.Error())

			assert.Equal(t, session.StateError, snap.State)
			assert.Equal(t, tt.msg, snap.Err.Error())
			assert.Empty(t, snap.Token)
			assert.Nil(t, snap.User)
			assert.Empty(t, h.m.Token())
			assert.Equal(t, 0, h.store.Len(), "nothing may stay persisted")
		})
	}
}

func TestLoginValidatesBeforeCallingBackend(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", password},
		{"malformed email", "not-an-email", password},
		{"empty password", email, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			snap, err := h.m.Login(context.Background(), tt.email, tt.password)
			assert.True(t, core.IsValidationError(err))
			assert.Equal(t, session.StateInitializing, snap.State)
			assert.Equal(t, 0, h.srv.TotalCalls())
		})
	}
}

func TestClearErrorReturnsToUnauthenticated(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Login(context.Background(), email, "nope")
	require.Error(t, err)

	h.m.ClearError()

	snap := h.m.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.NoError(t, snap.Err)
}

func TestLogoutDuringLoginDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.srv.BeforeHandle(func(r *http.Request) {
		if r.URL.Path == "/api/profile/" {
			h.m.Logout()
		}
	})

	_, err := h.m.Login(context.Background(), email, password)
	assert.ErrorIs(t, err, session.ErrSuperseded)

	snap := h.m.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, h.m.Token())
	assert.Equal(t, 0, h.store.Len())
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)
	before := h.m.Epoch()

	var changes atomic.Int32
	h.m.OnChange(func(session.Snapshot) { changes.Add(1) })

	h.m.Logout()
	h.m.Logout()

	assert.Equal(t, int32(1), changes.Load())
	assert.Equal(t, before+1, h.m.Epoch())
	assert.Equal(t, session.StateUnauthenticated, h.m.Snapshot().State)
	assert.Equal(t, 0, h.store.Len())
	_, err = h.m.User()
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestConcurrentUnauthorizedLogsOutOnce(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)
	h.srv.RevokeTokens()

	var logouts atomic.Int32
	h.m.OnChange(func(s session.Snapshot) {
		if s.State == session.StateUnauthenticated {
			logouts.Add(1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.client.ListCategories(context.Background())
			assert.True(t, api.IsUnauthorized(err), "got %v", err)
		}()
	}
	wg.Wait()

	snap := h.m.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, int32(1), logouts.Load())
}

func TestStaleUnauthorizedIsIgnored(t *testing.T) {
	h := newHarness(t)
	first, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)
	second, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	h.m.HandleUnauthorized(first.Token)

	assert.True(t, h.m.Snapshot().IsAuthenticated)
	assert.Equal(t, second.Token, h.m.Token())
}

func TestRestore(t *testing.T) {
	profile := core.Profile{ID: "1", Email: email, FirstName: "Old"}

	t.Run("nothing persisted", func(t *testing.T) {
		h := newHarness(t)
		snap := h.m.Restore(context.Background())
		assert.Equal(t, session.StateUnauthenticated, snap.State)
		assert.NoError(t, snap.Err)
		assert.Equal(t, 0, h.srv.TotalCalls())
	})

	t.Run("token without profile", func(t *testing.T) {
		h := newHarness(t)
		h.persist(t, h.srv.IssueToken(email, time.Now().Add(time.Hour)), nil)
		snap := h.m.Restore(context.Background())
		assert.Equal(t, session.StateUnauthenticated, snap.State)
		assert.NoError(t, snap.Err)
	})

	t.Run("unreadable profile is dropped", func(t *testing.T) {
		h := newHarness(t)
		h.persist(t, h.srv.IssueToken(email, time.Now().Add(time.Hour)), "{not json")
		snap := h.m.Restore(context.Background())
		assert.Equal(t, session.StateUnauthenticated, snap.State)
		_, ok := h.stored(t, storage.KeyUser)
		assert.False(t, ok)
	})

	t.Run("valid session is refreshed", func(t *testing.T) {
		h := newHarness(t)
		token := h.srv.IssueToken(email, time.Now().Add(time.Hour))
		h.persist(t, token, profile)

		snap := h.m.Restore(context.Background())
		require.Equal(t, session.StateAuthenticated, snap.State)
		assert.Equal(t, token, snap.Token)
		assert.Equal(t, "Ann", snap.User.FirstName)

		raw, _ := h.stored(t, storage.KeyUser)
		assert.Contains(t, raw, `"first_name":"Ann"`)
	})

	t.Run("expired token is cleared without a request", func(t *testing.T) {
		h := newHarness(t)
		h.persist(t, h.srv.IssueToken(email, time.Now().Add(-time.Minute)), profile)

		snap := h.m.Restore(context.Background())
		assert.Equal(t, session.StateUnauthenticated, snap.State)
		assert.ErrorIs(t, snap.Err, session.ErrSessionExpired)
		assert.Equal(t, 0, h.srv.Calls(http.MethodGet, "/api/profile/"))
		assert.Equal(t, 0, h.store.Len())
	})

	t.Run("rejected token clears storage", func(t *testing.T) {
		h := newHarness(t)
		h.persist(t, h.srv.IssueToken(email, time.Now().Add(time.Hour)), profile)
		h.srv.RevokeTokens()

		snap := h.m.Restore(context.Background())
		assert.Equal(t, session.StateUnauthenticated, snap.State)
		require.Error(t, snap.Err)
		assert.True(t, session.IsKind(snap.Err, session.ProfileFetchFailed))
		assert.Equal(t, "Given token not valid for any token type", snap.Err.Error())
		assert.Equal(t, 0, h.store.Len())
	})

	t.Run("empty profile clears storage", func(t *testing.T) {
		h := newHarness(t)
		h.persist(t, h.srv.IssueToken(email, time.Now().Add(time.Hour)), profile)
		h.srv.SetEmptyProfile(true)

		snap := h.m.Restore(context.Background())
		assert.Equal(t, session.StateUnauthenticated, snap.State)
		assert.Equal(t, "User profile data received from server is empty or invalid.", snap.Err.Error())
		assert.Equal(t, 0, h.store.Len())
	})

	t.Run("runs once", func(t *testing.T) {
		h := newHarness(t)
		h.persist(t, h.srv.IssueToken(email, time.Now().Add(time.Hour)), profile)

		first := h.m.Restore(context.Background())
		second := h.m.Restore(context.Background())
		assert.Equal(t, first.Epoch, second.Epoch)
		assert.Equal(t, 1, h.srv.Calls(http.MethodGet, "/api/profile/"))
	})
}

func TestLogoutDuringRestoreKeepsStoreEmpty(t *testing.T) {
	h := newHarness(t)
	h.persist(t, h.srv.IssueToken(email, time.Now().Add(time.Hour)), core.Profile{ID: "1", Email: email, FirstName: "Ann"})
	h.srv.BeforeHandle(func(r *http.Request) {
		if r.URL.Path == "/api/profile/" {
			h.m.Logout()
		}
	})

	snap := h.m.Restore(context.Background())
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, h.m.Token())
	_, ok := h.stored(t, storage.KeyUser)
	assert.False(t, ok, "the late profile must not be persisted again")
	assert.Equal(t, 0, h.store.Len())
}

func TestCheckExpiryEndsSession(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h := newHarness(t, session.WithClock(clock))
	h.srv.SetTokenTTL(time.Hour)
	_, err := h.m.Login(context.Background(), email, password)
	require.NoError(t, err)

	assert.False(t, h.m.CheckExpiry())

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	assert.True(t, h.m.CheckExpiry())
	snap := h.m.Snapshot()
	assert.Equal(t, session.StateUnauthenticated, snap.State)
	assert.ErrorIs(t, snap.Err, session.ErrSessionExpired)
	assert.Equal(t, 0, h.store.Len())
	assert.False(t, h.m.CheckExpiry())
}

func TestWatchExpiryStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.m.WatchExpiry(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchExpiry did not return after cancel")
	}
}

func TestRegister(t *testing.T) {
	valid := core.RegisterInput{FirstName: "Bo", LastName: "Ng", Email: "bo@example.com", Password: "longenough"}

	t.Run("creates account without signing in", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.m.Register(context.Background(), valid))
		assert.False(t, h.m.Snapshot().IsAuthenticated)

		_, err := h.m.Login(context.Background(), valid.Email, valid.Password)
		assert.NoError(t, err)
	})

	t.Run("duplicate email", func(t *testing.T) {
		h := newHarness(t)
		in := valid
		in.Email = email
		err := h.m.Register(context.Background(), in)
		assert.True(t, session.IsKind(err, session.RegistrationFailed))
		assert.Equal(t, "email - Email already exists", err.Error())
	})

	invalid := []struct {
		name   string
		mutate func(*core.RegisterInput)
		field  string
	}{
		{"first name", func(in *core.RegisterInput) { in.FirstName = " " }, "first_name"},
		{"last name", func(in *core.RegisterInput) { in.LastName = "" }, "last_name"},
		{"email", func(in *core.RegisterInput) { in.Email = "bo@" }, "email"},
		{"short password", func(in *core.RegisterInput) { in.Password = "short" }, "password"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := valid
			tt.mutate(&in)
			err := h.m.Register(context.Background(), in)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, h.srv.TotalCalls())
		})
	}
}
