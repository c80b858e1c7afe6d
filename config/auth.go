package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode selects which credential verifiers are active.
type AuthMode string

const (
	// AuthModeLocal verifies against the built-in demo allow-list only.
	AuthModeLocal AuthMode = "local"
	// AuthModeRemote verifies against the backend authentication API only.
	AuthModeRemote AuthMode = "remote"
	// AuthModeHybrid tries the local allow-list first and falls through to the backend on a miss.
	AuthModeHybrid AuthMode = "hybrid"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "remote", "hybrid":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, remote, hybrid)", v)
	}
}

// UsesLocal reports whether the demo allow-list is consulted.
func (a AuthMode) UsesLocal() bool { return a == AuthModeLocal || a == AuthModeHybrid }

// UsesRemote reports whether the backend API is consulted.
func (a AuthMode) UsesRemote() bool { return a == AuthModeRemote || a == AuthModeHybrid }

// RemoteAuthConfig points at the backend authentication API.
type RemoteAuthConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:3001/api"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

// DemoAuthConfig controls the local demo allow-list verifier.
type DemoAuthConfig struct {
	// AccountsFile optionally replaces the built-in demo accounts with a TOML allow-list.
	AccountsFile string `env:"ACCOUNTS_FILE"`
	// Secret signs demo tokens. Empty means a random per-process secret.
	Secret     string        `env:"SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"   envDefault:"8h"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which verifiers are used.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	// CSRFEnabled turns on double-submit CSRF checks for the portal's own state-changing routes
	// and makes the remote provider fetch and send a CSRF token on its calls.
	CSRFEnabled bool `env:"AUTH_CSRF_ENABLED" envDefault:"true"`

	// API configuration (used when Mode is remote or hybrid).
	API RemoteAuthConfig `envPrefix:"AUTH_API_"`

	// Demo configuration (used when Mode is local or hybrid).
	Demo DemoAuthConfig `envPrefix:"AUTH_DEMO_"`
}

// Sanitize normalises URLs and falls back to defaults for non-positive durations.
func (c *AuthConfig) Sanitize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}
	c.Demo.AccountsFile = strings.TrimSpace(c.Demo.AccountsFile)
	if c.Demo.RefreshTTL <= 0 {
		c.Demo.RefreshTTL = 7 * 24 * time.Hour
	}
}

// Validate checks that the selected mode has what it needs.
func (c *AuthConfig) Validate() error {
	if c.Mode.UsesRemote() && c.API.BaseURL == "" {
		return errors.New("AUTH_API_BASE_URL is required when AUTH_MODE is remote or hybrid")
	}
	return nil
}
