package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/eduadmin/portal/config"
	httpx "github.com/eduadmin/portal/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	HTTP              config.HTTPConfig
	Session           *Session
	RememberMeDefault bool
	CSRFEnabled       bool
	Logger            *slog.Logger
}

// BuildHTTPHandler assembles the router and the outer middleware.
// Order: Recover -> Logging -> Router.
func BuildHTTPHandler(cfg HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := httpx.NewRouter(httpx.RouterServices{
		Session:           cfg.Session.Manager,
		Activity:          cfg.Session.Activity,
		RememberMeDefault: cfg.RememberMeDefault,
		PendingRetryAfter: cfg.HTTP.PendingRetryAfter,
		CSRFEnabled:       cfg.CSRFEnabled,
		Logger:            logger,
	})

	h := httpx.Logging(logger)(router)
	return httpx.Recover(logger)(h)
}

// NewHTTPServer builds the server without starting it.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	addr := cfg.HTTP.Addr
	// Guard against empty addr; Go's default would bind every interface.
	if addr == "" {
		addr = config.DefaultAddr
	}
	return &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP runs server until ctx is done, then shuts it down within timeout.
func ServeHTTP(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	return serve(ctx, server, ln, timeout, logger)
}

func serve(ctx context.Context, server *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
