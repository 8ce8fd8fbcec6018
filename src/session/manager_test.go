package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/spendsync/src/api"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/secrets"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// fakeBackend is a stateful stand-in for the expense backend's auth
// endpoints plus one protected route.
type fakeBackend struct {
	mu            sync.Mutex
	validToken    string
	refreshCalls  int
	refreshStatus int
	refreshDelay  time.Duration
	legacyTokens  bool
	alwaysReject  bool
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		var creds map[string]string
		json.NewDecoder(req.Body).Decode(&creds)
		if creds["username"] != "maria" || creds["password"] != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.validToken = "access-1"
		legacy := b.legacyTokens
		b.mu.Unlock()
		if legacy {
			json.NewEncoder(w).Encode(map[string]string{"token": "access-1"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "access-1", "refreshToken": "refresh-1"})
	})

	r.Post("/auth/register", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"message":"registration successful"}`))
	})

	r.Post("/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.refreshCalls++
		status := b.refreshStatus
		delay := b.refreshDelay
		b.mu.Unlock()

		time.Sleep(delay)
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		b.mu.Lock()
		b.validToken = "access-2"
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "access-2", "refreshToken": "refresh-2"})
	})

	r.Get("/data", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		valid := "Bearer " + b.validToken
		reject := b.alwaysReject
		b.mu.Unlock()
		if reject || req.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	return r
}

func newTestManager(t *testing.T, backend *fakeBackend) (*Manager, *secrets.FileStore) {
	t.Helper()
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	store, err := secrets.NewFileStore(t.TempDir())
	require.NoError(t, err)

	client := api.NewClient(srv.URL, 5*time.Second)
	return NewManager(client, store, nil, time.Minute), store
}

func TestLoginStoresTokensAndEntersPinSetup(t *testing.T) {
	m, store := newTestManager(t, &fakeBackend{})

	require.NoError(t, m.Login(context.Background(), "maria", "correct"))
	assert.Equal(t, StatePinSetup, m.State())

	access, err := store.Get(secrets.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-1", string(access))
	refresh, err := store.Get(secrets.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", string(refresh))
}

func TestLoginLegacySingleTokenDoublesAsRefresh(t *testing.T) {
	m, store := newTestManager(t, &fakeBackend{legacyTokens: true})

	require.NoError(t, m.Login(context.Background(), "maria", "correct"))

	refresh, err := store.Get(secrets.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "access-1", string(refresh))
}

func TestLoginRejectedLeavesStateUntouched(t *testing.T) {
	m, store := newTestManager(t, &fakeBackend{})

	err := m.Login(context.Background(), "maria", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, StateUnauthenticated, m.State())

	_, err = store.Get(secrets.KeyAccessToken)
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestRegisterBareSuccessDoesNotAutoLogin(t *testing.T) {
	m, _ := newTestManager(t, &fakeBackend{})

	require.NoError(t, m.Register(context.Background(), RegisterProfile{Username: "maria", Password: "correct"}))
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestColdStartWithStoredRefreshTokenIsLocked(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.router())
	defer srv.Close()

	store, err := secrets.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set(secrets.KeyAccessToken, []byte("stale")))
	require.NoError(t, store.Set(secrets.KeyRefreshToken, []byte("refresh-1")))

	m := NewManager(api.NewClient(srv.URL, 5*time.Second), store, nil, time.Minute)
	assert.Equal(t, StateLocked, m.State())
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	backend := &fakeBackend{refreshDelay: 50 * time.Millisecond}
	m, _ := newTestManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "maria", "correct"))

	// Invalidate the access token server-side so every call 401s first.
	backend.mu.Lock()
	backend.validToken = "rotated-elsewhere"
	backend.mu.Unlock()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := m.Do(context.Background(), api.RequestSpec{Method: http.MethodGet, Path: "/data"})
			if err == nil && !resp.OK() {
				err = &api.ServerError{Status: resp.Status}
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	backend.mu.Lock()
	calls := backend.refreshCalls
	backend.mu.Unlock()
	assert.Equal(t, 1, calls, "all concurrent 401s must share a single refresh exchange")
}

func TestRefreshFailureTearsDownSession(t *testing.T) {
	backend := &fakeBackend{refreshStatus: http.StatusUnauthorized}
	m, store := newTestManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "maria", "correct"))
	require.NoError(t, m.SavePin("1234"))

	backend.mu.Lock()
	backend.validToken = "rotated-elsewhere"
	backend.mu.Unlock()

	_, err := m.Do(context.Background(), api.RequestSpec{Method: http.MethodGet, Path: "/data"})
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, StateUnauthenticated, m.State())

	_, err = store.Get(secrets.KeyRefreshToken)
	assert.ErrorIs(t, err, secrets.ErrNotFound)
	assert.False(t, m.HasPin(), "PIN verifier must not outlive the session")
}

func TestSecond401AfterRefreshIsTerminal(t *testing.T) {
	backend := &fakeBackend{alwaysReject: true}
	m, _ := newTestManager(t, backend)
	require.NoError(t, m.Login(context.Background(), "maria", "correct"))

	_, err := m.Do(context.Background(), api.RequestSpec{Method: http.MethodGet, Path: "/data"})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateUnauthenticated, m.State())

	backend.mu.Lock()
	calls := backend.refreshCalls
	backend.mu.Unlock()
	assert.Equal(t, 1, calls, "a failed retry must not loop back into refresh")
}

func TestPinSetupUnlockAndLock(t *testing.T) {
	m, _ := newTestManager(t, &fakeBackend{})
	require.NoError(t, m.Login(context.Background(), "maria", "correct"))
	require.Equal(t, StatePinSetup, m.State())

	require.NoError(t, m.SavePin("1234"))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.True(t, m.HasPin())

	m.Lock()
	assert.Equal(t, StateLocked, m.State())

	ok, err := m.UnlockWithPin("0000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateLocked, m.State())

	ok, err = m.UnlockWithPin("1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestUnlockWithoutPinConfigured(t *testing.T) {
	m, _ := newTestManager(t, &fakeBackend{})

	_, err := m.UnlockWithPin("1234")
	assert.ErrorIs(t, err, ErrNoPinConfigured)
}

func TestLogoutClearsEverything(t *testing.T) {
	m, store := newTestManager(t, &fakeBackend{})
	require.NoError(t, m.Login(context.Background(), "maria", "correct"))
	require.NoError(t, m.SavePin("1234"))

	m.Logout()

	assert.Equal(t, StateUnauthenticated, m.State())
	assert.False(t, m.HasPin())
	_, err := store.Get(secrets.KeyAccessToken)
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestSubscribeSeesStateChanges(t *testing.T) {
	m, _ := newTestManager(t, &fakeBackend{})

	var seen []State
	m.Subscribe(func(s State) { seen = append(seen, s) })

	require.NoError(t, m.Login(context.Background(), "maria", "correct"))
	require.NoError(t, m.SavePin("1234"))
	m.Logout()

	assert.Equal(t, []State{StatePinSetup, StateAuthenticated, StateUnauthenticated}, seen)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestTokenExpiring(t *testing.T) {
	m := &Manager{leeway: time.Minute}

	assert.True(t, m.tokenExpiring(signedToken(t, time.Now().Add(10*time.Second))))
	assert.False(t, m.tokenExpiring(signedToken(t, time.Now().Add(time.Hour))))
	assert.False(t, m.tokenExpiring("opaque-legacy-token"), "non-JWT tokens never trigger a proactive refresh")
}
