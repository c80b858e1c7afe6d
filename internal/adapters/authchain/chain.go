// Package authchain composes AuthProviders: each is tried in order and the next one is consulted
// only when the previous reports a local miss (auth.ErrUnknownAccount).
package authchain

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.AuthProvider = (*ChainProvider)(nil)

// ChainProvider tries providers in order.
type ChainProvider struct {
	providers []ports.AuthProvider
	logger    *slog.Logger
}

// New builds a chain. Nil providers are skipped.
func New(logger *slog.Logger, providers ...ports.AuthProvider) *ChainProvider {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]ports.AuthProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &ChainProvider{providers: out, logger: logger}
}

func (c *ChainProvider) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

// Login returns the first provider's answer unless it is a local miss. A wrong password for a
// known account never reaches the next provider.
func (c *ChainProvider) Login(ctx context.Context, in ports.LoginInput) (ports.LoginGrant, error) {
	var lastErr error
	for _, p := range c.providers {
		grant, err := p.Login(ctx, in)
		if err == nil {
			return grant, nil
		}
		if !errors.Is(err, domainauth.ErrUnknownAccount) {
			return ports.LoginGrant{}, err
		}
		c.logger.DebugContext(ctx, "login miss, trying next provider", "provider", p.Name())
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domainauth.NewProviderError(domainauth.FailureProviderError, "login", errors.New("no providers configured"))
	}
	return ports.LoginGrant{}, lastErr
}

// Refresh is routed the same way: a provider that does not recognise the token reports a miss.
func (c *ChainProvider) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	var lastErr error
	for _, p := range c.providers {
		pair, err := p.Refresh(ctx, refreshToken)
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, domainauth.ErrUnknownAccount) {
			return ports.TokenPair{}, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domainauth.NewProviderError(domainauth.FailureProviderError, "refresh", errors.New("no providers configured"))
	}
	return ports.TokenPair{}, lastErr
}

// Logout is sent to every provider; the token owner invalidates it and the rest ignore it.
func (c *ChainProvider) Logout(ctx context.Context, token string) error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Logout(ctx, token); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
