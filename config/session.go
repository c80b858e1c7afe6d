package config

import "time"

const (
	defaultIdleTimeoutMinutes = 30
	maxIdleTimeoutMinutes     = 12 * 60
)

// SessionConfig controls the session lifecycle.
type SessionConfig struct {
	// IdleTimeoutMinutes is how long a session may go without user activity before it is ended.
	IdleTimeoutMinutes int `env:"SESSION_IDLE_TIMEOUT_MINUTES" envDefault:"30"`

	// RememberMeDefault is the pre-selected state of the "remember me" choice.
	RememberMeDefault bool `env:"SESSION_REMEMBER_ME_DEFAULT" envDefault:"false"`

	// CrossInstanceSync makes instances sharing durable storage follow each other's logins and logouts.
	CrossInstanceSync bool `env:"SESSION_CROSS_INSTANCE_SYNC" envDefault:"false"`
}

// Sanitize clamps the idle timeout to 1..720 minutes. Non-positive values fall back to the default.
func (c *SessionConfig) Sanitize() {
	switch {
	case c.IdleTimeoutMinutes <= 0:
		c.IdleTimeoutMinutes = defaultIdleTimeoutMinutes
	case c.IdleTimeoutMinutes > maxIdleTimeoutMinutes:
		c.IdleTimeoutMinutes = maxIdleTimeoutMinutes
	}
}

// IdleTimeout returns the idle threshold as a duration.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}
