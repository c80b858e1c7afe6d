package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BackendKind names a physical storage backend for a credential store tier.
type BackendKind string

const (
	// BackendSQLite is a local database file; it survives process restarts.
	BackendSQLite BackendKind = "sqlite"
	// BackendRedis is a shared Redis keyspace.
	BackendRedis BackendKind = "redis"
	// BackendMemory lives as long as the process.
	BackendMemory BackendKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for BackendKind.
func (b *BackendKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "sqlite", "redis", "memory":
		*b = BackendKind(v)
		return nil
	default:
		return fmt.Errorf("invalid BackendKind: %q (valid options: sqlite, redis, memory)", v)
	}
}

// StorageConfig selects the backends behind the durable and ephemeral tiers.
type StorageConfig struct {
	Durable     BackendKind `env:"STORAGE_DURABLE"      envDefault:"sqlite"`
	DurablePath string      `env:"STORAGE_DURABLE_PATH" envDefault:"data/session.db"`

	Ephemeral    BackendKind   `env:"STORAGE_EPHEMERAL"     envDefault:"memory"`
	EphemeralTTL time.Duration `env:"STORAGE_EPHEMERAL_TTL" envDefault:"12h"`

	// WatchDebounce coalesces bursts of file events from the durable database.
	WatchDebounce time.Duration `env:"STORAGE_WATCH_DEBOUNCE" envDefault:"150ms"`
}

// Sanitize trims paths and resets non-positive durations.
func (c *StorageConfig) Sanitize() {
	c.DurablePath = strings.TrimSpace(c.DurablePath)
	if c.EphemeralTTL < 0 {
		c.EphemeralTTL = 0
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = 150 * time.Millisecond
	}
}

// Validate rejects tier assignments that break the tier contract.
func (c *StorageConfig) Validate() error {
	if c.Durable == BackendSQLite && c.DurablePath == "" {
		return errors.New("STORAGE_DURABLE_PATH is required for the sqlite durable tier")
	}
	if c.Ephemeral == BackendSQLite {
		return errors.New("STORAGE_EPHEMERAL cannot be sqlite: the ephemeral tier must not outlive the process")
	}
	return nil
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// KeyPrefix namespaces the durable session keys.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"eduadmin:session:"`
	// Channel carries cross-instance session change events.
	Channel string `env:"CHANNEL" envDefault:"eduadmin:session:changes"`
}
