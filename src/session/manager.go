// Package session owns credential state and the lock state machine. The
// Manager is the single choke point every authenticated remote call
// passes through for token injection and 401 handling.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/username/spendsync/src/api"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/secrets"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidCredentials is a rejected login or registration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshFailed means the refresh flow failed and the session was
	// torn down. The user must log in again.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrSessionExpired is a second 401 after a successful refresh.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoPinConfigured is returned when unlocking without a stored PIN.
	ErrNoPinConfigured = errors.New("no PIN configured")
)

// BiometricAuthenticator triggers the platform biometric challenge.
// Implementations are external collaborators.
type BiometricAuthenticator interface {
	Authenticate(ctx context.Context) (bool, error)
}

// RegisterProfile is the payload for account registration.
type RegisterProfile struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
}

// tokenResponse covers both backend variants: the modern pair and the
// legacy single token (which then doubles as the refresh token).
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Token        string `json:"token"`
}

func (t *tokenResponse) pair() (access, refresh string, ok bool) {
	if t.AccessToken != "" && t.RefreshToken != "" {
		return t.AccessToken, t.RefreshToken, true
	}
	if t.Token != "" {
		return t.Token, t.Token, true
	}
	return "", "", false
}

// Manager owns the token pair and the lock state machine.
type Manager struct {
	client    *api.Client
	store     secrets.Store
	biometric BiometricAuthenticator
	leeway    time.Duration

	refreshGroup singleflight.Group

	mu          sync.Mutex
	state       State
	accessToken string
	refresh     string
	subscribers []func(State)
}

// NewManager loads persisted tokens and derives the cold-start state:
// Locked when a refresh token survives, Unauthenticated otherwise.
func NewManager(client *api.Client, store secrets.Store, biometric BiometricAuthenticator, refreshLeeway time.Duration) *Manager {
	m := &Manager{
		client:    client,
		store:     store,
		biometric: biometric,
		leeway:    refreshLeeway,
	}
	if data, err := store.Get(secrets.KeyAccessToken); err == nil {
		m.accessToken = string(data)
	}
	if data, err := store.Get(secrets.KeyRefreshToken); err == nil {
		m.refresh = string(data)
	}
	m.state = InitialState(m.refresh != "")
	return m
}

// State returns the current lock state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a callback invoked on every state change. This is
// the notification channel the UI listens on.
func (m *Manager) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// apply runs the pure transition and fans out notifications outside the
// lock.
func (m *Manager) apply(ev Event) {
	m.mu.Lock()
	old := m.state
	m.state = Reduce(old, ev)
	changed := m.state != old
	state := m.state
	subs := make([]func(State), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	if changed {
		logger.L.Info("Session state changed", "from", old.String(), "to", state.String())
		for _, fn := range subs {
			fn(state)
		}
	}
}

// saveTokens persists the pair and updates the in-memory copy. A
// storage failure is surfaced in the log but does not roll back the
// in-memory state.
func (m *Manager) saveTokens(access, refresh string) {
	m.mu.Lock()
	m.accessToken = access
	m.refresh = refresh
	m.mu.Unlock()

	if err := m.store.Set(secrets.KeyAccessToken, []byte(access)); err != nil {
		logger.L.Error("Failed to persist access token", "error", err)
	}
	if err := m.store.Set(secrets.KeyRefreshToken, []byte(refresh)); err != nil {
		logger.L.Error("Failed to persist refresh token", "error", err)
	}
}

func (m *Manager) clearTokens() {
	m.mu.Lock()
	m.accessToken = ""
	m.refresh = ""
	m.mu.Unlock()

	if err := m.store.Delete(secrets.KeyAccessToken); err != nil {
		logger.L.Error("Failed to delete access token", "error", err)
	}
	if err := m.store.Delete(secrets.KeyRefreshToken); err != nil {
		logger.L.Error("Failed to delete refresh token", "error", err)
	}
}

func (m *Manager) currentAccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

func (m *Manager) currentRefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

// Login posts credentials and on success stores the returned tokens.
// Stored tokens are never mutated on failure.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	resp, err := m.client.Do(ctx, api.RequestSpec{Method: http.MethodPost, Path: "/auth/login", Body: body}, "")
	if err != nil {
		return err
	}
	if !resp.OK() {
		logger.L.Warn("Login rejected", "status", resp.Status)
		return ErrInvalidCredentials
	}

	var tokens tokenResponse
	if err := api.DecodeJSON(resp.Body, &tokens); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	access, refresh, ok := tokens.pair()
	if !ok {
		return fmt.Errorf("%w: response carried no tokens", ErrInvalidCredentials)
	}

	m.saveTokens(access, refresh)
	m.apply(LoginSucceeded{HasPin: m.HasPin()})
	logger.L.Info("Login successful")
	return nil
}

// Register creates an account. Backends that auto-login return tokens,
// which are stored; backends that answer with a bare success leave the
// state unchanged and the caller logs in next.
func (m *Manager) Register(ctx context.Context, profile RegisterProfile) error {
	resp, err := m.client.Do(ctx, api.RequestSpec{Method: http.MethodPost, Path: "/auth/register", Body: profile}, "")
	if err != nil {
		return err
	}
	if !resp.OK() {
		logger.L.Warn("Registration rejected", "status", resp.Status)
		return ErrInvalidCredentials
	}

	var tokens tokenResponse
	// A bare-success body is fine here; only a 2xx with garbage is not.
	if err := api.DecodeJSON(resp.Body, &tokens); err != nil {
		logger.L.Warn("Registration response body not parseable, treating as bare success", "error", err)
	}
	access, refresh, gotTokens := tokens.pair()
	if gotTokens {
		m.saveTokens(access, refresh)
	}
	m.apply(RegisterSucceeded{GotTokens: gotTokens, HasPin: m.HasPin()})
	logger.L.Info("Registration successful", "autoLogin", gotTokens)
	return nil
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share a single in-flight exchange and observe its one outcome. Any
// failure tears the session down and returns ErrRefreshFailed to every
// waiter.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		// Detached from the triggering caller: one impatient waiter must
		// not cancel the exchange for everyone else.
		return m.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	refreshToken := m.currentRefreshToken()
	if refreshToken == "" {
		m.forceLogout("refresh requested without a refresh token")
		return "", ErrRefreshFailed
	}

	body := map[string]string{"refreshToken": refreshToken}
	resp, err := m.client.Do(ctx, api.RequestSpec{Method: http.MethodPost, Path: "/auth/refresh", Body: body}, "")
	if err != nil {
		m.forceLogout("refresh transport failure")
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if !resp.OK() {
		m.forceLogout(fmt.Sprintf("refresh rejected with status %d", resp.Status))
		return "", ErrRefreshFailed
	}

	var tokens tokenResponse
	if err := api.DecodeJSON(resp.Body, &tokens); err != nil {
		m.forceLogout("refresh response malformed")
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	access, refresh, ok := tokens.pair()
	if !ok {
		m.forceLogout("refresh response carried no tokens")
		return "", ErrRefreshFailed
	}

	m.saveTokens(access, refresh)
	logger.L.Debug("Access token refreshed")
	return access, nil
}

// Do implements api.Executor: inject the bearer, execute once, and on a
// 401 run exactly one refresh and one retry. A second 401 is terminal.
func (m *Manager) Do(ctx context.Context, spec api.RequestSpec) (*api.Response, error) {
	token := m.currentAccessToken()
	if token != "" && m.tokenExpiring(token) {
		// Proactive refresh; on failure fall through and let the 401
		// path (or the torn-down session) decide.
		if fresh, err := m.Refresh(ctx); err == nil {
			token = fresh
		}
	}

	resp, err := m.client.Do(ctx, spec, token)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return resp, nil
	}

	fresh, err := m.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	resp, err = m.client.Do(ctx, spec, fresh)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized {
		m.forceLogout("second 401 after refresh")
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// tokenExpiring reports whether a JWT access token expires within the
// leeway window. Opaque legacy tokens (not JWTs, or without exp) never
// trigger a proactive refresh.
func (m *Manager) tokenExpiring(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < m.leeway
}

// HasPin reports whether a PIN verifier is stored.
func (m *Manager) HasPin() bool {
	_, err := m.store.Get(secrets.KeyPinVerifier)
	return err == nil
}

// SavePin derives and stores the PIN verifier, then completes setup.
func (m *Manager) SavePin(pin string) error {
	verifier, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("derive PIN verifier: %w", err)
	}
	if err := m.store.Set(secrets.KeyPinVerifier, verifier); err != nil {
		return fmt.Errorf("store PIN verifier: %w", err)
	}
	m.apply(PinSaved{})
	return nil
}

// UnlockWithPin compares the candidate against the stored verifier and
// unlocks on a match. bcrypt gives the constant-effort comparison.
func (m *Manager) UnlockWithPin(candidate string) (bool, error) {
	verifier, err := m.store.Get(secrets.KeyPinVerifier)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return false, ErrNoPinConfigured
		}
		return false, err
	}
	if bcrypt.CompareHashAndPassword(verifier, []byte(candidate)) != nil {
		return false, nil
	}
	m.apply(Unlocked{})
	return true, nil
}

// UnlockWithBiometric triggers the platform challenge. Failure or
// cancellation leaves the state unchanged; PIN remains the fallback.
func (m *Manager) UnlockWithBiometric(ctx context.Context) (bool, error) {
	if m.biometric == nil {
		return false, nil
	}
	ok, err := m.biometric.Authenticate(ctx)
	if err != nil || !ok {
		return false, err
	}
	m.apply(Unlocked{})
	return true, nil
}

// Lock is called on app backgrounding: Locked while a refresh token
// exists, Unauthenticated otherwise.
func (m *Manager) Lock() {
	m.apply(Backgrounded{HasRefreshToken: m.currentRefreshToken() != ""})
}

// Logout clears the token pair and the PIN verifier, forcing PIN setup
// on the next login. The backend is told best-effort; a failed revocation
// never blocks the local teardown.
func (m *Manager) Logout() {
	if refresh := m.currentRefreshToken(); refresh != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		body := map[string]string{"refreshToken": refresh}
		if _, err := m.client.Do(ctx, api.RequestSpec{Method: http.MethodPost, Path: "/auth/logout", Body: body}, m.currentAccessToken()); err != nil {
			logger.L.Warn("Backend logout notification failed", "error", err)
		}
	}
	m.forceLogout("user logout")
}

func (m *Manager) forceLogout(reason string) {
	logger.L.Warn("Session terminated", "reason", reason)
	m.clearTokens()
	if err := m.store.Delete(secrets.KeyPinVerifier); err != nil {
		logger.L.Error("Failed to delete PIN verifier", "error", err)
	}
	m.apply(LoggedOut{})
}
