package auth

// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider   = (*MockAuthProvider)(nil)
	_ ports.StorageBackend = (*ToggleBackend)(nil)
	_ ports.StorageBackend = FailingBackend{}
)

// MockAuthProvider simulates an identity source with deterministic behavior.
// Func fields override the defaults; the default accepts DefaultPassword for DefaultUser.Email.
type MockAuthProvider struct {
	LoginFunc   func(ctx context.Context, in ports.LoginInput) (ports.LoginGrant, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (ports.TokenPair, error)
	LogoutFunc  func(ctx context.Context, token string) error

	DefaultUser     domainauth.Principal
	DefaultPassword string

	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	logoutCalls  int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		DefaultUser: domainauth.Principal{
			ID:          "mock-user-1",
			DisplayName: "Mock User",
			Email:       "mock.user@example.com",
			Role:        domainauth.RoleTeacher,
		},
		DefaultPassword: "secret",
	}
}

func (m *MockAuthProvider) Name() string { return "mock" }

func (m *MockAuthProvider) Login(ctx context.Context, in ports.LoginInput) (ports.LoginGrant, error) {
	m.mu.Lock()
	m.loginCalls++
	n := m.loginCalls
	m.mu.Unlock()

	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	if !strings.EqualFold(in.Email, m.DefaultUser.Email) {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", domainauth.ErrUnknownAccount)
	}
	if in.Password != m.DefaultPassword {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", nil)
	}
	return ports.LoginGrant{
		Token:        "mock-token-" + strconv.Itoa(n),
		RefreshToken: "mock-refresh-" + strconv.Itoa(n),
		Principal:    m.DefaultUser,
	}, nil
}

func (m *MockAuthProvider) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	m.mu.Lock()
	m.refreshCalls++
	n := m.refreshCalls
	m.mu.Unlock()

	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	if refreshToken == "" {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "refresh", nil)
	}
	return ports.TokenPair{AccessToken: "mock-rotated-" + strconv.Itoa(n)}, nil
}

func (m *MockAuthProvider) Logout(ctx context.Context, token string) error {
	m.mu.Lock()
	m.logoutCalls++
	m.mu.Unlock()

	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

// Calls returns how many times each method was invoked.
func (m *MockAuthProvider) Calls() (login, refresh, logout int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginCalls, m.refreshCalls, m.logoutCalls
}

// ErrBackendUnavailable is what the failing storage doubles return.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// FailingBackend fails every operation, like disabled or quota-exhausted storage.
type FailingBackend struct {
	Err error
}

func (f FailingBackend) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrBackendUnavailable
}

func (f FailingBackend) Get(context.Context, string) (string, bool, error) { return "", false, f.err() }
func (f FailingBackend) Set(context.Context, string, string) error         { return f.err() }
func (f FailingBackend) Remove(context.Context, string) error              { return f.err() }
func (f FailingBackend) Clear(context.Context) error                       { return f.err() }

// ToggleBackend is an in-memory backend that can be switched into a failing state.
type ToggleBackend struct {
	mu      sync.Mutex
	data    map[string]string
	failing bool
}

// NewToggleBackend creates a healthy ToggleBackend.
func NewToggleBackend() *ToggleBackend {
	return &ToggleBackend{data: make(map[string]string)}
}

// SetFailing switches failure mode on or off.
func (b *ToggleBackend) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

// Keys returns a snapshot of the stored keys, ignoring failure mode.
func (b *ToggleBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys
}

// Wipe drops all data regardless of failure mode, like a closed tab or a deleted file.
func (b *ToggleBackend) Wipe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.data)
}

func (b *ToggleBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return "", false, ErrBackendUnavailable
	}
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *ToggleBackend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrBackendUnavailable
	}
	b.data[key] = value
	return nil
}

func (b *ToggleBackend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrBackendUnavailable
	}
	delete(b.data, key)
	return nil
}

func (b *ToggleBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrBackendUnavailable
	}
	clear(b.data)
	return nil
}
