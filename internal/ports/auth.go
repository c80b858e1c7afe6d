package ports

// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// LoginInput carries the credentials a user typed.
type LoginInput struct {
	Email    string
	Password string
}

// LoginGrant is what a provider returns for a successful login.
type LoginGrant struct {
	Token        string
	RefreshToken string // optional
	Principal    domainauth.Principal
}

// TokenPair is the result of a credential refresh. RefreshToken is empty when not rotated.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthProvider verifies credentials and manages tokens against an identity source.
// Failures are reported as *domainauth.ProviderError so callers can tag them.
type AuthProvider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Login verifies the credentials and returns a grant.
	Login(ctx context.Context, in LoginInput) (LoginGrant, error)

	// Refresh exchanges a refresh credential for a new access token.
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)

	// Logout invalidates the token at the source. Best effort.
	Logout(ctx context.Context, token string) error
}
