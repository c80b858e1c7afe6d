package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/eduadmin/portal/config"
	"github.com/eduadmin/portal/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger("info")
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.LogLevel)

	instanceID := uuid.NewString()
	logStartupInfo(ctx, logger, &cfg, instanceID)

	metricsSink, closeMetrics := bootstrap.BuildMetrics(cfg.Observability.Metrics, instanceID, logger)
	defer func() {
		if cerr := closeMetrics(); cerr != nil {
			logger.ErrorContext(ctx, "close metrics failed", "error", cerr)
		}
	}()

	var redisClient redis.UniversalClient
	if cfg.UsesRedis() {
		redisClient, err = bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	storage, err := bootstrap.OpenStorage(ctx, bootstrap.StorageOptions{
		Storage:     cfg.Storage,
		Redis:       cfg.Redis,
		RedisClient: redisClient,
		InstanceID:  instanceID,
		Metrics:     metricsSink,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		// ctx is already cancelled here; ephemeral cleanup still needs to reach redis.
		if cerr := storage.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.ErrorContext(ctx, "close storage failed", "error", cerr)
		}
	}()

	provider, err := bootstrap.BuildAuthProvider(bootstrap.AuthOptions{Auth: cfg.Auth, Logger: logger})
	if err != nil {
		return err
	}

	session := bootstrap.BuildSession(bootstrap.SessionOptions{
		Session:     cfg.Session,
		Storage:     cfg.Storage,
		Redis:       cfg.Redis,
		Store:       storage,
		Provider:    provider,
		RedisClient: redisClient,
		InstanceID:  instanceID,
		Metrics:     metricsSink,
		Logger:      logger,
	})
	defer session.Close()

	server := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{
		HTTP:              cfg.HTTP,
		Session:           session,
		RememberMeDefault: cfg.Session.RememberMeDefault,
		CSRFEnabled:       cfg.Auth.CSRFEnabled,
		Logger:            logger,
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return bootstrap.ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	group.Go(func() error {
		return session.Follow(gctx)
	})
	group.Go(func() error {
		session.Manager.Restore(gctx)
		return nil
	})

	err = group.Wait()
	logger.InfoContext(ctx, "eduadmin stopped")
	return err
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, instanceID string) {
	logger.InfoContext(ctx, "starting eduadmin",
		"instance_id", instanceID,
		"auth_mode", string(cfg.Auth.Mode),
		"durable_backend", string(cfg.Storage.Durable),
		"ephemeral_backend", string(cfg.Storage.Ephemeral),
		"idle_timeout", cfg.Session.IdleTimeout().String(),
		"cross_instance_sync", cfg.Session.CrossInstanceSync,
		"dev", cfg.IsDev,
	)
}
