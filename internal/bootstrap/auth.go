package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/eduadmin/portal/config"
	"github.com/eduadmin/portal/internal/adapters/authchain"
	"github.com/eduadmin/portal/internal/adapters/devauth"
	"github.com/eduadmin/portal/internal/adapters/remoteauth"
	"github.com/eduadmin/portal/internal/ports"
)

// AuthOptions contains configuration for the auth provider.
type AuthOptions struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
	// HTTPClient overrides the remote provider's client (tests).
	HTTPClient *http.Client
}

// BuildAuthProvider creates the provider for the configured auth mode.
// Hybrid mode consults the local allow-list first and falls through to the backend for unknown accounts.
//
//nolint:ireturn // the concrete provider depends on the mode.
func BuildAuthProvider(opts AuthOptions) (ports.AuthProvider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var providers []ports.AuthProvider
	if opts.Auth.Mode.UsesLocal() {
		local, err := buildLocalProvider(opts.Auth.Demo, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, local)
	}
	if opts.Auth.Mode.UsesRemote() {
		remote, err := remoteauth.NewProvider(remoteauth.Config{
			BaseURL:     opts.Auth.API.BaseURL,
			Timeout:     opts.Auth.API.Timeout,
			CSRFEnabled: opts.Auth.CSRFEnabled,
			HTTPClient:  opts.HTTPClient,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build remote auth provider: %w", err)
		}
		providers = append(providers, remote)
	}

	switch len(providers) {
	case 0:
		return nil, fmt.Errorf("unsupported auth mode %q", opts.Auth.Mode)
	case 1:
		logger.Info("auth provider configured", "mode", string(opts.Auth.Mode), "provider", providers[0].Name())
		return providers[0], nil
	default:
		chain := authchain.New(logger, providers...)
		logger.Info("auth provider configured", "mode", string(opts.Auth.Mode), "provider", chain.Name())
		return chain, nil
	}
}

func buildLocalProvider(cfg config.DemoAuthConfig, logger *slog.Logger) (*devauth.Provider, error) {
	var accounts []devauth.Account
	if cfg.AccountsFile != "" {
		var err error
		accounts, err = devauth.LoadAccounts(cfg.AccountsFile, cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("load demo accounts: %w", err)
		}
		if len(accounts) == 0 {
			return nil, errors.New("demo accounts file lists no accounts")
		}
		logger.Info("demo accounts loaded", "file", cfg.AccountsFile, "count", len(accounts))
	}
	if cfg.Secret == "" {
		logger.Warn("AUTH_DEMO_SECRET not set: demo refresh tokens will not survive a restart")
	}

	p, err := devauth.NewProvider(devauth.Config{
		Accounts:   accounts,
		Secret:     []byte(cfg.Secret),
		TokenTTL:   cfg.TokenTTL,
		RefreshTTL: cfg.RefreshTTL,
		BcryptCost: cfg.BcryptCost,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build local auth provider: %w", err)
	}
	return p, nil
}
