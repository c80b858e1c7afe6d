package bootstrap

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/eduadmin/portal/config"
	redisadapter "github.com/eduadmin/portal/internal/adapters/redis"
	"github.com/eduadmin/portal/internal/adapters/sqlite"
	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/observability/statsd"
	"github.com/eduadmin/portal/internal/ports"
	"github.com/eduadmin/portal/internal/service"
)

// SessionOptions contains dependencies for the session components.
type SessionOptions struct {
	Session     config.SessionConfig
	Storage     config.StorageConfig
	Redis       config.RedisConfig
	Store       *Storage
	Provider    ports.AuthProvider
	RedisClient redis.UniversalClient
	InstanceID  string
	Metrics     statsd.Sink
	Logger      *slog.Logger
	// AfterFunc overrides the watchdog timer factory (tests).
	AfterFunc service.AfterFunc
}

// Session bundles the per-process session components.
type Session struct {
	Manager  *service.SessionManager
	Activity *service.ActivityBus
	Watchdog *service.ActivityWatchdog
	// Notifier is nil unless cross-instance sync is enabled and supported by the durable backend.
	Notifier ports.ChangeNotifier
}

// BuildSession wires the session manager, the activity bus and the idle watchdog.
// The watchdog is armed whenever the manager becomes Authenticated and disarmed otherwise.
// Call Manager.Restore afterwards to settle the initial status.
func BuildSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := buildNotifier(opts, logger)

	manager := service.NewSessionManager(service.SessionManagerOptions{
		State:      service.NewSessionState(opts.Store.Store, logger),
		Provider:   opts.Provider,
		Notifier:   notifier,
		InstanceID: opts.InstanceID,
		Metrics:    opts.Metrics,
		Logger:     logger,
	})

	bus := service.NewActivityBus()
	watchdog := service.NewActivityWatchdog(service.WatchdogOptions{
		Target: service.LogoutFunc(func(ctx context.Context) {
			manager.EndSession(ctx, service.ReasonIdle)
		}),
		Sources:   []ports.ActivitySource{bus},
		Logger:    logger,
		AfterFunc: opts.AfterFunc,
	})

	idle := opts.Session.IdleTimeout()
	manager.OnChange(func(s domainauth.Status) {
		if s == domainauth.StatusAuthenticated {
			watchdog.Arm(idle)
			return
		}
		watchdog.Disarm()
	})

	return &Session{
		Manager:  manager,
		Activity: bus,
		Watchdog: watchdog,
		Notifier: notifier,
	}
}

// Follow applies other instances' changes until ctx is done. Without a notifier it just waits.
func (s *Session) Follow(ctx context.Context) error {
	if s.Notifier == nil {
		<-ctx.Done()
		return nil
	}
	return s.Manager.Follow(ctx, s.Notifier)
}

// Close disarms the watchdog so no timer fires during shutdown.
func (s *Session) Close() {
	s.Watchdog.Disarm()
}

//nolint:ireturn // the notifier depends on the durable backend.
func buildNotifier(opts SessionOptions, logger *slog.Logger) ports.ChangeNotifier {
	if !opts.Session.CrossInstanceSync {
		return nil
	}
	switch opts.Storage.Durable {
	case config.BackendSQLite:
		if opts.Store == nil || opts.Store.SQLite == nil {
			logger.Warn("cross-instance sync disabled: durable sqlite store is not open")
			return nil
		}
		logger.Info("cross-instance sync via file watcher", "path", opts.Store.SQLite.Path())
		return sqlite.NewWatcher(opts.Store.SQLite, opts.Storage.WatchDebounce, logger)
	case config.BackendRedis:
		if opts.RedisClient == nil {
			logger.Warn("cross-instance sync disabled: redis client not configured")
			return nil
		}
		logger.Info("cross-instance sync via redis pub/sub", "channel", opts.Redis.Channel)
		return redisadapter.NewNotifier(opts.RedisClient, redisadapter.NotifierOptions{
			Channel: opts.Redis.Channel,
			Origin:  opts.InstanceID,
			Logger:  logger,
		})
	default:
		logger.Warn("cross-instance sync disabled: durable backend is process-local", "backend", string(opts.Storage.Durable))
		return nil
	}
}
