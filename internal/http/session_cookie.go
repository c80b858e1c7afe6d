package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// SessionCookieName carries the live session's access token for browser callers.
const SessionCookieName = "eduadmin_session"

// durableCookieMaxAge keeps a remembered session's cookie across browser restarts.
const durableCookieMaxAge = 30 * 24 * time.Hour

// TokenSource exposes the access token of the session currently held by the process.
type TokenSource interface {
	Token() string
}

// requestToken returns the session credential the caller presented.
// An Authorization header wins over the cookie, and a non-Bearer scheme presents nothing.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// holdsSession reports whether r presents the token of the live session.
func holdsSession(src TokenSource, r *http.Request) bool {
	live := src.Token()
	got := requestToken(r)
	if live == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(live)) == 1
}

// hasBearer reports whether the caller authenticates with an Authorization header,
// which a cross-site form or link cannot attach.
func hasBearer(r *http.Request) bool {
	scheme, _, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	return ok && strings.EqualFold(scheme, "Bearer")
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || isForwardedHTTPS(r)
}

// setSessionCookie hands the session token to the browser. Ephemeral sessions get a
// browser-session cookie; durable ones outlive the browser.
func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, tier domainauth.Tier) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
	if tier == domainauth.TierDurable {
		c.MaxAge = int(durableCookieMaxAge / time.Second)
	}
	http.SetCookie(w, c)
}

// clearSessionCookie expires the session cookie, mirroring the attributes used to set it.
func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
