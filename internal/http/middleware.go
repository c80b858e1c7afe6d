package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Guard is the part of the session manager the access middleware needs.
type Guard interface {
	TokenSource
	Decide(req domainauth.Requirement) domainauth.Decision
	Principal() *domainauth.Principal
}

// RequireSession admits a request only when it presents the live session's token
// (cookie or Bearer) and the session satisfies req. Callers without the token are
// treated as unauthenticated whatever the process-wide session holds.
//
// While the session restore is still running the request is answered with 503 and Retry-After
// so clients never see a denial that a moment later would have been an allow.
// Browser requests are redirected (login or forbidden page); API requests get 401/403 JSON.
func RequireSession(g Guard, req domainauth.Requirement, retryAfter time.Duration) func(http.Handler) http.Handler {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	retrySeconds := strconv.Itoa(int(retryAfter / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(req)
			if d.Outcome != domainauth.Pending && !holdsSession(g, r) {
				d = domainauth.DecisionNotAuthenticated
			}
			switch d.Outcome {
			case domainauth.Allow:
				ctx := SetPrincipalInContext(r.Context(), g.Principal())
				next.ServeHTTP(w, r.WithContext(ctx))
			case domainauth.Pending:
				w.Header().Set("Retry-After", retrySeconds)
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: CodeSessionPending,
					Err:     errors.New("session is still being restored"),
				})
			default:
				deny(w, r, d)
			}
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, d domainauth.Decision) {
	if IsBrowserRequest(r) {
		if target := domainauth.RedirectTarget(d, r.URL.RequestURI()); target != "" {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
	}
	if d.Reason == domainauth.ReasonInsufficientRole {
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: CodeInsufficientPermissions,
			Err:     errors.New("insufficient permissions"),
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: CodeAuthenticationRequired,
		Err:     errors.New("authentication required"),
	})
}

// ActivityPublisher receives user interaction signals.
type ActivityPublisher interface {
	Publish(ports.ActivitySignal)
}

// BackgroundHeader marks requests issued by timers or polling rather than by the user.
const BackgroundHeader = "X-Background-Request"

// TrackActivity counts every user-initiated request from the session holder as activity
// for the idle watchdog. Anonymous traffic never keeps a session alive.
func TrackActivity(src TokenSource, pub ActivityPublisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userInitiated(r) && holdsSession(src, r) {
				pub.Publish(ports.SignalPointer)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userInitiated(r *http.Request) bool {
	if r.Header.Get(BackgroundHeader) != "" {
		return false
	}
	switch r.URL.Path {
	case "/healthz", "/api/session/activity":
		// Health checks are not the user; the activity endpoint publishes its own signal.
		return false
	}
	return !strings.HasPrefix(r.URL.Path, "/static/")
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// It sets a context value that downstream handlers use to choose between redirects and JSON errors.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest treats non-API paths that accept HTML (or say nothing) as browser navigation.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/static/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}
