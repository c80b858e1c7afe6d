package devauth

// Package devauth provides the local AuthProvider: a fixed allow-list of demo accounts that
// works without any backend. Tokens are HS256 JWTs minted in-process.

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.AuthProvider = (*Provider)(nil)

const (
	defaultTokenTTL   = 8 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	issuer           = "eduadmin-devauth"
)

// Config controls the local provider.
type Config struct {
	// Accounts is the allow-list. Empty means DefaultAccounts.
	Accounts []Account
	// Secret signs minted tokens. Empty generates a random per-process secret.
	Secret []byte
	// TokenTTL bounds access tokens. Negative mints tokens without an exp claim.
	TokenTTL   time.Duration
	RefreshTTL time.Duration
	// BcryptCost is used when hashing the default accounts.
	BcryptCost int
	Now        func() time.Time
	Logger     *slog.Logger
}

// Provider implements ports.AuthProvider over an in-memory allow-list.
type Provider struct {
	accounts   map[string]Account
	byID       map[string]string
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// NewProvider constructs the local provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	accounts := cfg.Accounts
	if len(accounts) == 0 {
		var err error
		accounts, err = DefaultAccounts(cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
	}

	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}

	p := &Provider{
		accounts:   make(map[string]Account, len(accounts)),
		byID:       make(map[string]string, len(accounts)),
		secret:     secret,
		tokenTTL:   cfg.TokenTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if p.tokenTTL == 0 {
		p.tokenTTL = defaultTokenTTL
	}
	if p.refreshTTL <= 0 {
		p.refreshTTL = defaultRefreshTTL
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, a := range accounts {
		email := NormalizeEmail(a.Principal.Email)
		a.Principal.Email = email
		p.accounts[email] = a
		p.byID[a.Principal.ID] = email
	}
	return p, nil
}

func (p *Provider) Name() string { return "local" }

// Login verifies in against the allow-list. An unknown email fails with ErrUnknownAccount so a
// chained provider can fall through; a known email with the wrong password is final.
func (p *Provider) Login(_ context.Context, in ports.LoginInput) (ports.LoginGrant, error) {
	acct, ok := p.accounts[NormalizeEmail(in.Email)]
	if !ok {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", domainauth.ErrUnknownAccount)
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(in.Password)); err != nil {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", nil)
	}

	pair, err := p.mint(acct.Principal)
	if err != nil {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureProviderError, "login", err)
	}
	return ports.LoginGrant{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Principal:    acct.Principal,
	}, nil
}

// Refresh validates a refresh token minted by this provider and rotates both tokens.
func (p *Provider) Refresh(_ context.Context, refreshToken string) (ports.TokenPair, error) {
	if refreshToken == "" {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "refresh", domainauth.ErrNoRefreshToken)
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(refreshToken, claims,
		func(*jwt.Token) (interface{}, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if foreignToken(err) {
			// Not minted here; a chained provider may own it.
			err = errors.Join(domainauth.ErrUnknownAccount, err)
		}
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "refresh", err)
	}
	if claims.Type != tokenTypeRefresh {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "refresh", errors.New("not a refresh token"))
	}

	email, ok := p.byID[claims.Subject]
	if !ok {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "refresh", domainauth.ErrUnknownAccount)
	}
	pair, err := p.mint(p.accounts[email].Principal)
	if err != nil {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureProviderError, "refresh", err)
	}
	return pair, nil
}

// Logout has nothing to invalidate: minted tokens are not tracked.
func (p *Provider) Logout(ctx context.Context, _ string) error {
	p.logger.DebugContext(ctx, "local logout")
	return nil
}

func (p *Provider) mint(principal domainauth.Principal) (ports.TokenPair, error) {
	now := p.now()

	access := tokenClaims{
		Email: principal.Email,
		Role:  string(principal.Role),
		Type:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   issuer,
			Subject:  principal.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if p.tokenTTL > 0 {
		access.ExpiresAt = jwt.NewNumericDate(now.Add(p.tokenTTL))
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(p.secret)
	if err != nil {
		return ports.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := tokenClaims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.refreshTTL)),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(p.secret)
	if err != nil {
		return ports.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return ports.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func foreignToken(err error) bool {
	return errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
		errors.Is(err, jwt.ErrTokenUnverifiable) ||
		errors.Is(err, jwt.ErrTokenInvalidIssuer)
}
