package bootstrap

import (
	"log/slog"

	"github.com/eduadmin/portal/config"
	"github.com/eduadmin/portal/internal/observability/statsd"
)

// BuildMetrics returns the configured StatsD sink, or a no-op sink when metrics are disabled
// or the endpoint cannot be set up. The returned close func is never nil.
//
//nolint:ireturn // callers only need the Sink behaviour.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, instanceID string, logger *slog.Logger) (statsd.Sink, func() error) {
	noop := func() error { return nil }
	if !cfg.IsEnabled() {
		return statsd.Noop{}, noop
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled:    true,
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		Logger:     logger,
		GlobalTags: map[string]string{"instance": instanceID},
	})
	if err != nil {
		logger.Warn("metrics disabled: statsd client setup failed", "addr", cfg.StatsdAddress, "error", err)
		return statsd.Noop{}, noop
	}
	logger.Info("metrics enabled", "addr", cfg.StatsdAddress, "prefix", cfg.Prefix)
	return client, client.Close
}
