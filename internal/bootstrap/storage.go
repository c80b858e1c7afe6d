package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduadmin/portal/config"
	redisadapter "github.com/eduadmin/portal/internal/adapters/redis"
	"github.com/eduadmin/portal/internal/adapters/sqlite"
	"github.com/eduadmin/portal/internal/credstore"
	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/observability/statsd"
	"github.com/eduadmin/portal/internal/ports"
)

// StorageOptions contains what is needed to assemble the credential store.
type StorageOptions struct {
	Storage config.StorageConfig
	Redis   config.RedisConfig
	// RedisClient is required when either tier uses Redis.
	RedisClient redis.UniversalClient
	InstanceID  string
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// Storage is the assembled credential store plus the handles needed to watch and close it.
type Storage struct {
	Store *credstore.Store
	// SQLite is set when the durable tier is a local database file.
	SQLite *sqlite.Backend
	// Ephemeral is the backend behind the ephemeral tier.
	Ephemeral ports.StorageBackend

	closers []func(context.Context) error
}

// OpenStorage builds the durable and ephemeral backends and the store over them.
// A backend that cannot be opened is logged and left nil; the store then serves that tier from memory.
func OpenStorage(ctx context.Context, opts StorageOptions) (*Storage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Storage{}

	durable, err := s.openDurable(ctx, opts, logger)
	if err != nil {
		logger.WarnContext(ctx, "durable storage unavailable, using memory fallback",
			"backend", string(opts.Storage.Durable), "error", err)
		durable = nil
	}

	ephemeral, err := s.openEphemeral(opts)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Ephemeral = ephemeral

	s.Store = credstore.New(credstore.Options{
		Durable:   durable,
		Ephemeral: ephemeral,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
	logger.InfoContext(ctx, "credential store ready",
		"durable", string(opts.Storage.Durable),
		"durable_available", s.Store.IsAvailable(ctx, domainauth.TierDurable),
		"ephemeral", string(opts.Storage.Ephemeral),
	)
	return s, nil
}

//nolint:ireturn // the durable backend depends on configuration.
func (s *Storage) openDurable(ctx context.Context, opts StorageOptions, logger *slog.Logger) (ports.StorageBackend, error) {
	switch opts.Storage.Durable {
	case config.BackendSQLite:
		b, err := sqlite.Open(ctx, sqlite.Options{Path: opts.Storage.DurablePath, Origin: opts.InstanceID, Logger: logger})
		if err != nil {
			return nil, err
		}
		s.SQLite = b
		s.closers = append(s.closers, func(context.Context) error { return b.Close() })
		return b, nil
	case config.BackendRedis:
		if opts.RedisClient == nil {
			return nil, errors.New("redis client not configured")
		}
		return redisadapter.NewBackend(opts.RedisClient, redisadapter.BackendOptions{
			Prefix: opts.Redis.KeyPrefix + "durable:",
		}), nil
	case config.BackendMemory:
		return credstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported durable backend %q", opts.Storage.Durable)
	}
}

// openEphemeral returns a process-scoped backend. Redis keys are namespaced per instance,
// expire after the configured TTL and are removed on Close.
//
//nolint:ireturn // the ephemeral backend depends on configuration.
func (s *Storage) openEphemeral(opts StorageOptions) (ports.StorageBackend, error) {
	switch opts.Storage.Ephemeral {
	case config.BackendMemory, "":
		return credstore.NewMemoryBackend(), nil
	case config.BackendRedis:
		if opts.RedisClient == nil {
			return nil, errors.New("ephemeral redis tier requires a redis client")
		}
		b := redisadapter.NewBackend(opts.RedisClient, redisadapter.BackendOptions{
			Prefix: opts.Redis.KeyPrefix + "ephemeral:" + opts.InstanceID + ":",
			TTL:    opts.Storage.EphemeralTTL,
		})
		s.closers = append(s.closers, b.Clear)
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported ephemeral backend %q", opts.Storage.Ephemeral)
	}
}

// Close releases backends in reverse order of opening.
func (s *Storage) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// ConnectRedis establishes a connection to Redis.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	var (
		client   redis.UniversalClient
		addrDesc string
		err      error
	)

	switch {
	case cfg.UseCluster:
		client, addrDesc, err = newClusterClient(cfg)
	case cfg.UseSentinel:
		client, addrDesc, err = newSentinelClient(cfg)
	default:
		client, addrDesc, err = newDirectClient(cfg)
	}
	if err != nil {
		return nil, err
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "addr", redactAddr(addrDesc))
	}

	return client, nil
}

// redactAddr strips credentials before an address is logged.
func redactAddr(addrDesc string) string {
	if u, parseErr := url.Parse(addrDesc); parseErr == nil && u.User != nil {
		u.User = url.User("*")
		return u.Redacted()
	}
	if i := strings.LastIndex(addrDesc, "@"); i > -1 {
		return addrDesc[i+1:]
	}
	return addrDesc
}

//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newClusterClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	addrs := normalizeAddrs(cfg.ClusterNodes)
	password := cfg.Password
	username := ""
	var tlsConfig *tls.Config

	if len(addrs) == 0 {
		addr, parsedUsername, parsedPassword, parsedTLS, err := clusterFallbackFromURI(cfg.URI, password)
		if err != nil {
			return nil, "", err
		}
		if addr != "" {
			addrs = []string{addr}
			username = parsedUsername
			password = parsedPassword
			tlsConfig = parsedTLS
		}
	}

	if len(addrs) == 0 {
		return nil, "", errors.New("redis cluster configuration requires at least one address")
	}

	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:     addrs,
		Username:  username,
		Password:  password,
		TLSConfig: tlsConfig,
	})
	return client, "cluster:" + strings.Join(addrs, ","), nil
}

//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newSentinelClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	nodes := normalizeAddrs(cfg.SentinelNodes)
	if len(nodes) == 0 {
		return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
	}

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:       cfg.SentinelMasterName,
		SentinelAddrs:    nodes,
		Password:         cfg.Password,
		SentinelPassword: cfg.SentinelPassword,
		DB:               cfg.DB,
	})
	return client, "sentinel:" + cfg.SentinelMasterName, nil
}

//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newDirectClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("redis direct configuration requires a URI")
	}

	if isRedisURL(uri) {
		opt, err := redis.ParseURL(uri)
		if err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), opt.Addr, nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     uri,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), uri, nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func clusterFallbackFromURI(uri, defaultPassword string) (string, string, string, *tls.Config, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return "", "", defaultPassword, nil, nil
	}

	if !isRedisURL(trimmed) {
		return trimmed, "", defaultPassword, nil, nil
	}

	opt, err := redis.ParseURL(trimmed)
	if err != nil {
		return "", "", defaultPassword, nil, fmt.Errorf("parse redis cluster url: %w", err)
	}

	password := defaultPassword
	if opt.Password != "" {
		password = opt.Password
	}

	return opt.Addr, opt.Username, password, opt.TLSConfig, nil
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
