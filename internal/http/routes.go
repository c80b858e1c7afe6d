package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Session  SessionService
	Activity ActivityPublisher
	// Views defaults to DefaultViews when nil.
	Views             []View
	RememberMeDefault bool
	PendingRetryAfter time.Duration
	// CSRFEnabled wraps every route in CSRFProtection.
	CSRFEnabled bool
	Logger      *slog.Logger
}

// NewRouter creates the portal router: session API, guarded views and health.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &SessionHandlers{
		Svc:               services.Session,
		Activity:          services.Activity,
		RememberMeDefault: services.RememberMeDefault,
		Logger:            logger,
	}
	registerSessionRoutes(mux, h, services.PendingRetryAfter)

	views := services.Views
	if views == nil {
		views = DefaultViews()
	}
	for _, v := range views {
		guard := RequireSession(services.Session, v.Requirement, services.PendingRetryAfter)
		mux.Handle("GET "+v.Path, guard(viewHandler(v)))
	}

	mux.HandleFunc("GET /login", loginPage)
	mux.HandleFunc("GET /forbidden", forbiddenPage)
	mux.Handle("GET /healthz", healthHandler(services.Session.Status))
	mux.Handle("HEAD /healthz", healthHandler(services.Session.Status))

	var handler http.Handler = mux
	if services.Activity != nil {
		handler = TrackActivity(services.Session, services.Activity)(handler)
	}
	if services.CSRFEnabled {
		handler = CSRFProtection(CSRFConfig{})(handler)
	}
	return BrowserDetection()(handler)
}

func registerSessionRoutes(mux *http.ServeMux, h *SessionHandlers, retryAfter time.Duration) {
	mux.HandleFunc("GET /api/session", h.Status)
	mux.HandleFunc("POST /api/session/login", h.Login)
	mux.HandleFunc("POST /api/session/logout", h.Logout)
	mux.HandleFunc("POST /api/session/refresh", h.Refresh)

	authed := RequireSession(h.Svc, domainauth.Requirement{}, retryAfter)
	mux.Handle("POST /api/session/activity", authed(http.HandlerFunc(h.RecordActivity)))
	mux.Handle("PATCH /api/session/profile", authed(http.HandlerFunc(h.UpdateProfile)))
}
