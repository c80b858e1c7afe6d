package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
	"github.com/eduadmin/portal/internal/service"
)

// SessionService is the session manager surface used by the HTTP handlers.
type SessionService interface {
	Guard
	Status() domainauth.Status
	Tier() (domainauth.Tier, bool)
	Login(ctx context.Context, email, password string, rememberMe bool) service.LoginResult
	Logout(ctx context.Context)
	Refresh(ctx context.Context) error
	UpdateProfile(ctx context.Context, u domainauth.ProfileUpdate) error
}

var _ SessionService = (*service.SessionManager)(nil)

// SessionHandlers exposes login, logout, refresh, profile and status over JSON.
type SessionHandlers struct {
	Svc               SessionService
	Activity          ActivityPublisher
	RememberMeDefault bool
	Logger            *slog.Logger
}

func (h *SessionHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe *bool  `json:"remember_me,omitempty"`
}

// sessionResponse describes the session. AccessToken is only returned to Bearer
// callers after a refresh; browsers get the cookie instead.
type sessionResponse struct {
	Status      string                `json:"status"`
	Principal   *domainauth.Principal `json:"principal,omitempty"`
	Tier        string                `json:"tier,omitempty"`
	CSRFToken   string                `json:"csrf_token,omitempty"`
	AccessToken string                `json:"access_token,omitempty"`
}

func (h *SessionHandlers) snapshot(r *http.Request) sessionResponse {
	resp := sessionResponse{Status: h.Svc.Status().String(), Principal: h.Svc.Principal(), CSRFToken: GetCSRFToken(r)}
	if tier, ok := h.Svc.Tier(); ok {
		resp.Tier = tier.String()
	}
	return resp
}

// snapshotFor describes the session as r may see it. A caller without the session
// token learns only whether the restore has settled.
func (h *SessionHandlers) snapshotFor(r *http.Request) sessionResponse {
	if holdsSession(h.Svc, r) {
		return h.snapshot(r)
	}
	status := h.Svc.Status()
	if status == domainauth.StatusAuthenticated {
		status = domainauth.StatusUnauthenticated
	}
	return sessionResponse{Status: status.String(), CSRFToken: GetCSRFToken(r)}
}

// issueCookie hands the caller the token of the session it just established.
func (h *SessionHandlers) issueCookie(w http.ResponseWriter, r *http.Request) {
	tier, _ := h.Svc.Tier()
	setSessionCookie(w, r, h.Svc.Token(), tier)
}

// Login handles POST /api/session/login.
func (h *SessionHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: CodeMissingCredentials,
			Err:     errors.New("email and password are required"),
		})
		return
	}

	remember := h.RememberMeDefault
	if req.RememberMe != nil {
		remember = *req.RememberMe
	}

	res := h.Svc.Login(r.Context(), req.Email, req.Password, remember)
	if !res.OK() {
		WriteFailure(w, res.Failure)
		return
	}
	h.issueCookie(w, r)
	WriteJSON(w, http.StatusOK, h.snapshot(r))
}

// Logout handles POST /api/session/logout. It always succeeds, but only the
// session holder actually ends the session; anyone else just loses their cookie.
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if holdsSession(h.Svc, r) {
		h.Svc.Logout(r.Context())
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/session/refresh. The rotated token replaces the cookie.
func (h *SessionHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if !holdsSession(h.Svc, r) {
		deny(w, r, domainauth.DecisionNotAuthenticated)
		return
	}
	if err := h.Svc.Refresh(r.Context()); err != nil {
		h.logger().InfoContext(r.Context(), "refresh rejected", "error", err)
		if errors.Is(err, domainauth.ErrNetworkUnavailable) {
			WriteFailure(w, domainauth.FailureNetworkUnavailable)
			return
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: CodeRefreshFailed,
			Err:     errors.New("session could not be refreshed"),
		})
		return
	}
	h.issueCookie(w, r)
	resp := h.snapshot(r)
	if hasBearer(r) {
		resp.AccessToken = h.Svc.Token()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Status handles GET /api/session.
func (h *SessionHandlers) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.snapshotFor(r))
}

type profileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Grade       *string `json:"grade,omitempty"`
}

// UpdateProfile handles PATCH /api/session/profile.
func (h *SessionHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: CodeInvalidProfile,
			Err:     errors.New("display_name cannot be empty"),
		})
		return
	}

	err := h.Svc.UpdateProfile(r.Context(), domainauth.ProfileUpdate{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Grade:       req.Grade,
	})
	switch {
	case errors.Is(err, domainauth.ErrNotAuthenticated):
		deny(w, r, domainauth.DecisionNotAuthenticated)
	case err != nil:
		h.logger().ErrorContext(r.Context(), "profile update failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: CodeProfileUpdateFailed,
			Err:     errors.New("profile could not be saved"),
		})
	default:
		WriteJSON(w, http.StatusOK, h.snapshot(r))
	}
}

type activityRequest struct {
	Signal string `json:"signal"`
}

// RecordActivity handles POST /api/session/activity, which front ends call for interactions
// that never reach the server (key presses, scrolling, touches).
func (h *SessionHandlers) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sig, ok := parseSignal(req.Signal)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: CodeInvalidSignal,
			Err:     errors.New("signal must be one of pointer, key, scroll, touch"),
		})
		return
	}
	if h.Activity != nil {
		h.Activity.Publish(sig)
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseSignal(s string) (ports.ActivitySignal, bool) {
	for _, sig := range []ports.ActivitySignal{ports.SignalPointer, ports.SignalKey, ports.SignalScroll, ports.SignalTouch} {
		if strings.EqualFold(strings.TrimSpace(s), sig.String()) {
			return sig, true
		}
	}
	return 0, false
}
