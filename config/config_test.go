package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, AuthModeLocal, cfg.Auth.Mode)
	assert.True(t, cfg.Auth.CSRFEnabled)
	assert.Equal(t, 30, cfg.Session.IdleTimeoutMinutes)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout())
	assert.False(t, cfg.Session.RememberMeDefault)
	assert.Equal(t, BackendSQLite, cfg.Storage.Durable)
	assert.Equal(t, BackendMemory, cfg.Storage.Ephemeral)
	assert.False(t, cfg.UsesRedis())
	assert.NoError(t, cfg.Validate())
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "Hybrid")
	t.Setenv("AUTH_CSRF_ENABLED", "false")
	t.Setenv("AUTH_API_BASE_URL", " https://api.okul.com/v1/ ")
	t.Setenv("AUTH_API_TIMEOUT", "3s")
	t.Setenv("AUTH_DEMO_ACCOUNTS_FILE", "/etc/eduadmin/accounts.toml")
	t.Setenv("AUTH_DEMO_TOKEN_TTL", "1h")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, AuthModeHybrid, cfg.Auth.Mode)
	assert.True(t, cfg.Auth.Mode.UsesLocal())
	assert.True(t, cfg.Auth.Mode.UsesRemote())
	assert.False(t, cfg.Auth.CSRFEnabled)
	assert.Equal(t, "https://api.okul.com/v1", cfg.Auth.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Auth.API.Timeout)
	assert.Equal(t, "/etc/eduadmin/accounts.toml", cfg.Auth.Demo.AccountsFile)
	assert.Equal(t, time.Hour, cfg.Auth.Demo.TokenTTL)
}

func TestAuthMode_UnmarshalText(t *testing.T) {
	var m AuthMode
	require.NoError(t, m.UnmarshalText([]byte(" REMOTE ")))
	assert.Equal(t, AuthModeRemote, m)
	assert.False(t, m.UsesLocal())

	err := m.UnmarshalText([]byte("oauth"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid options")
}

func TestAuthConfig_ValidateRemoteNeedsBaseURL(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeRemote}
	cfg.Sanitize()
	assert.Error(t, cfg.Validate())

	cfg.Mode = AuthModeLocal
	assert.NoError(t, cfg.Validate())
}

func TestSessionConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "default kept", in: 30, want: 30},
		{name: "zero falls back", in: 0, want: 30},
		{name: "negative falls back", in: -5, want: 30},
		{name: "one minute allowed", in: 1, want: 1},
		{name: "clamped to twelve hours", in: 10_000, want: 720},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := SessionConfig{IdleTimeoutMinutes: tt.in}
			cfg.Sanitize()
			assert.Equal(t, tt.want, cfg.IdleTimeoutMinutes)
		})
	}
}

func TestStorageConfig_Validate(t *testing.T) {
	t.Setenv("STORAGE_DURABLE", "redis")
	t.Setenv("STORAGE_EPHEMERAL", "redis")
	t.Setenv("STORAGE_EPHEMERAL_TTL", "30m")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, 30*time.Minute, cfg.Storage.EphemeralTTL)
	assert.NoError(t, cfg.Validate())

	bad := StorageConfig{Durable: BackendSQLite, Ephemeral: BackendSQLite, DurablePath: "x.db"}
	assert.Error(t, bad.Validate())

	noPath := StorageConfig{Durable: BackendSQLite, Ephemeral: BackendMemory}
	assert.Error(t, noPath.Validate())
}

func TestBackendKind_UnmarshalTextRejectsUnknown(t *testing.T) {
	t.Setenv("STORAGE_DURABLE", "localstorage")
	var cfg AppConfig
	assert.Error(t, env.Parse(&cfg))
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	cfg := HTTPConfig{Addr: " ", BaseURL: "http://localhost:8080/", PendingRetryAfter: 0}
	cfg.Sanitize()
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Second, cfg.PendingRetryAfter)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	assert.False(t, cfg.Enabled, "expected enabled to be false when address is empty")
	assert.Equal(t, "eduadmin", cfg.Prefix)

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "statsd:1234", cfg.StatsdAddress)
}

func TestAppConfig_DetectDevModeFromNodeEnv(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	var cfg AppConfig
	cfg.Sanitize()
	assert.True(t, cfg.IsDev)
}
