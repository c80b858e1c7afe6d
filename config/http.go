package config

import (
	"strings"
	"time"
)

// DefaultAddr keeps the server on loopback unless HTTP_ADDR says otherwise.
const DefaultAddr = "127.0.0.1:8080"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`

	// BaseURL is the base URL of the application (e.g., "https://portal.okul.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// PendingRetryAfter is advertised to clients while the session restore is still running.
	PendingRetryAfter time.Duration `env:"HTTP_PENDING_RETRY_AFTER" envDefault:"1s"`
}

// Sanitize applies defaults for empty or non-positive values.
func (c *HTTPConfig) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.PendingRetryAfter < time.Second {
		c.PendingRetryAfter = time.Second
	}
}
