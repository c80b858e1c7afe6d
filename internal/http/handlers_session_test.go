package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
	"github.com/eduadmin/portal/internal/testutil"
)

func decodeSession(t *testing.T, body []byte) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func decodeError(t *testing.T, body []byte) map[string]string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestSessionHandlers_LoginSuccess(t *testing.T) {
	env := newStudentEnv(t)

	w := env.do(http.MethodPost, "/api/session/login",
		`{"email":"ahmet.yilmaz@okul.com","password":"okul123"}`, apiHeader())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeSession(t, w.Body.Bytes())
	assert.Equal(t, "authenticated", resp.Status)
	assert.Equal(t, "ephemeral", resp.Tier)
	require.NotNil(t, resp.Principal)
	assert.Equal(t, domainauth.RoleStudent, resp.Principal.Role)
	assert.Equal(t, "9-A", resp.Principal.Grade)
	assert.Empty(t, resp.AccessToken)

	c := findCookie(w, SessionCookieName)
	require.NotNil(t, c)
	assert.Equal(t, env.manager.Token(), c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Zero(t, c.MaxAge, "ephemeral sessions end with the browser")
}

func TestSessionHandlers_LoginRememberMe(t *testing.T) {
	env := newStudentEnv(t)

	w := env.do(http.MethodPost, "/api/session/login",
		`{"email":"ahmet.yilmaz@okul.com","password":"okul123","remember_me":true}`, apiHeader())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "durable", decodeSession(t, w.Body.Bytes()).Tier)
	c := findCookie(w, SessionCookieName)
	require.NotNil(t, c)
	assert.Positive(t, c.MaxAge)
}

func TestSessionHandlers_LoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		errCode string
	}{
		{name: "wrong password", body: `{"email":"ahmet.yilmaz@okul.com","password":"nope"}`, code: http.StatusUnauthorized, errCode: "invalid_credentials"},
		{name: "unknown email", body: `{"email":"nobody@okul.com","password":"okul123"}`, code: http.StatusUnauthorized, errCode: "invalid_credentials"},
		{name: "missing password", body: `{"email":"ahmet.yilmaz@okul.com"}`, code: http.StatusBadRequest, errCode: "missing_credentials"},
		{name: "unknown field", body: `{"email":"a","password":"b","role":"admin"}`, code: http.StatusBadRequest, errCode: "invalid_json"},
		{name: "malformed", body: `{`, code: http.StatusBadRequest, errCode: "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newStudentEnv(t)
			w := env.do(http.MethodPost, "/api/session/login", tt.body, apiHeader())
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.errCode, decodeError(t, w.Body.Bytes())["error"])
			assert.Equal(t, domainauth.StatusUnauthenticated, env.manager.Status())
			assert.Nil(t, findCookie(w, SessionCookieName))
		})
	}
}

func TestSessionHandlers_LoginNetworkFailure(t *testing.T) {
	env := newStudentEnv(t)
	env.provider.LoginFunc = func(context.Context, ports.LoginInput) (ports.LoginGrant, error) {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureNetworkUnavailable, "login", nil)
	}

	w := env.do(http.MethodPost, "/api/session/login", `{"email":"a@b.c","password":"x"}`, apiHeader())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "network_unavailable", decodeError(t, w.Body.Bytes())["error"])
}

func TestSessionHandlers_LogoutIsIdempotent(t *testing.T) {
	env := newStudentEnv(t)
	env.login(t)

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/session/logout", "", apiHeader())
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	assert.NotContains(t, env.jar, SessionCookieName)
	assert.Equal(t, domainauth.StatusUnauthenticated, env.manager.Status())

	w := env.do(http.MethodGet, "/api/session", "", apiHeader())
	resp := decodeSession(t, w.Body.Bytes())
	assert.Equal(t, "unauthenticated", resp.Status)
	assert.Nil(t, resp.Principal)
	assert.Empty(t, resp.Tier)
}

func TestSessionHandlers_Refresh(t *testing.T) {
	env := newStudentEnv(t)

	w := env.do(http.MethodPost, "/api/session/refresh", "", apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.login(t)
	w = env.do(http.MethodPost, "/api/session/refresh", "", apiHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mock-rotated-1", env.manager.Token())
	assert.Empty(t, decodeSession(t, w.Body.Bytes()).AccessToken, "cookie callers get the cookie")
	assert.Equal(t, "mock-rotated-1", env.jar[SessionCookieName].Value)

	w = env.do(http.MethodGet, "/dashboard", "", apiHeader())
	assert.Equal(t, http.StatusOK, w.Code, "rotated cookie still opens the session")
}

func TestSessionHandlers_RefreshWithBearer(t *testing.T) {
	env := newStudentEnv(t)
	env.login(t)
	client := env.stranger()

	w := client.do(http.MethodPost, "/api/session/refresh", "", bearer(env.manager.Token()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeSession(t, w.Body.Bytes())
	assert.Equal(t, "mock-rotated-1", resp.AccessToken)

	w = client.do(http.MethodGet, "/grades", "", bearer(resp.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionHandlers_UpdateProfile(t *testing.T) {
	env := newStudentEnv(t)

	w := env.do(http.MethodPatch, "/api/session/profile", `{"display_name":"Ahmet Y."}`, apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.login(t)
	w = env.do(http.MethodPatch, "/api/session/profile", `{"display_name":"Ahmet Y.","grade":"10-B"}`, apiHeader())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeSession(t, w.Body.Bytes())
	assert.Equal(t, "Ahmet Y.", resp.Principal.DisplayName)
	assert.Equal(t, "10-B", resp.Principal.Grade)
	assert.Equal(t, domainauth.RoleStudent, resp.Principal.Role)

	w = env.do(http.MethodPatch, "/api/session/profile", `{"display_name":"  "}`, apiHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlers_Activity(t *testing.T) {
	env := newStudentEnv(t)

	w := env.do(http.MethodPost, "/api/session/activity", `{"signal":"Scroll"}`, apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.login(t)
	w = env.do(http.MethodPost, "/api/session/activity", `{"signal":"Scroll"}`, apiHeader())
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodPost, "/api/session/activity", `{"signal":"blink"}`, apiHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []ports.ActivitySignal{ports.SignalScroll}, env.activity.Signals())
}

func TestRouter_ViewsFollowRoles(t *testing.T) {
	env := newStudentEnv(t)
	env.login(t)

	tests := []struct {
		path string
		code int
	}{
		{"/dashboard", http.StatusOK},
		{"/grades", http.StatusOK},
		{"/admin", http.StatusForbidden},
		{"/classes", http.StatusForbidden},
	}
	for _, tt := range tests {
		w := env.do(http.MethodGet, tt.path, "", apiHeader())
		assert.Equal(t, tt.code, w.Code, tt.path)
	}

	w := env.do(http.MethodGet, "/admin", "", browserHeader())
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/forbidden", w.Header().Get("Location"))
}

func TestRouter_ViewCarriesPrincipal(t *testing.T) {
	teacher := testutil.NewPrincipal().WithID("2").WithEmail("ayse.demir@okul.com").WithRole(domainauth.RoleTeacher).Build()
	env := newTestEnv(t, teacher, true)
	env.login(t)

	w := env.do(http.MethodGet, "/classes", "", apiHeader())
	require.Equal(t, http.StatusOK, w.Code)
	var resp viewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "classes", resp.View)
	assert.Equal(t, "2", resp.Principal.ID)
}

func TestRouter_PendingBeforeRestore(t *testing.T) {
	env := newTestEnv(t, testutil.NewPrincipal().Build(), false)

	w := env.do(http.MethodGet, "/dashboard", "", browserHeader())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Header().Get("Location"))

	env.manager.Restore(context.Background())
	w = env.do(http.MethodGet, "/dashboard", "", browserHeader())
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard", w.Header().Get("Location"))
}

func TestRouter_LoginPageSanitisesRedirect(t *testing.T) {
	env := newStudentEnv(t)
	w := env.do(http.MethodGet, "/login?redirect_uri=//evil.example.com", "", browserHeader())
	require.Equal(t, http.StatusOK, w.Code)
	var resp pageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/", resp.RedirectURI)
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t, testutil.NewPrincipal().Build(), false)

	w := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["settled"])
	assert.NotContains(t, body, "session")

	w = env.do(http.MethodHead, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.activity.Signals(), "health checks are not user activity")
}

func TestRouter_AnonymousCallerIsDenied(t *testing.T) {
	env := newStudentEnv(t)
	env.login(t)
	token := env.manager.Token()
	anon := env.stranger()

	w := anon.do(http.MethodGet, "/dashboard", "", apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authentication_required", decodeError(t, w.Body.Bytes())["error"])

	w = anon.do(http.MethodGet, "/dashboard", "", browserHeader())
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard", w.Header().Get("Location"))

	w = anon.do(http.MethodGet, "/admin", "", apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code, "role is not revealed to strangers")

	w = anon.do(http.MethodGet, "/api/session", "", apiHeader())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w.Body.Bytes())
	assert.Equal(t, "unauthenticated", resp.Status)
	assert.Nil(t, resp.Principal)
	assert.Empty(t, resp.Tier)

	w = anon.do(http.MethodPatch, "/api/session/profile", `{"display_name":"x"}`, apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = anon.do(http.MethodPost, "/api/session/refresh", "", apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = anon.do(http.MethodPost, "/api/session/activity", `{"signal":"key"}`, apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = anon.do(http.MethodPost, "/api/session/logout", "", apiHeader())
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, domainauth.StatusAuthenticated, env.manager.Status(), "strangers cannot end the session")
	assert.Equal(t, token, env.manager.Token())
	assert.Equal(t, "Ahmet Yılmaz", env.manager.Principal().DisplayName)
	assert.Empty(t, env.activity.Signals(), "anonymous traffic is not user activity")

	w = env.do(http.MethodGet, "/dashboard", "", apiHeader())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []ports.ActivitySignal{ports.SignalPointer}, env.activity.Signals())
}

func TestRouter_ForgedCredentials(t *testing.T) {
	env := newStudentEnv(t)
	env.login(t)
	anon := env.stranger()

	tests := []struct {
		name   string
		header http.Header
		cookie string
	}{
		{name: "wrong bearer", header: bearer("mock-token-999")},
		{name: "empty bearer", header: bearer("")},
		{name: "basic scheme", header: http.Header{"Accept": {"application/json"}, "Authorization": {"Basic " + env.manager.Token()}}},
		{name: "wrong cookie", header: apiHeader(), cookie: "mock-token-999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anon.jar = map[string]*http.Cookie{}
			if tt.cookie != "" {
				anon.jar[SessionCookieName] = &http.Cookie{Name: SessionCookieName, Value: tt.cookie}
			}
			w := anon.do(http.MethodGet, "/grades", "", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	w := anon.do(http.MethodGet, "/grades", "", bearer(env.manager.Token()))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_StaleCookieAfterLogout(t *testing.T) {
	env := newStudentEnv(t)
	env.login(t)
	stale := env.jar[SessionCookieName]

	w := env.do(http.MethodPost, "/api/session/logout", "", apiHeader())
	require.Equal(t, http.StatusNoContent, w.Code)

	env.login(t)
	old := env.stranger()
	old.jar[SessionCookieName] = stale
	w = old.do(http.MethodGet, "/dashboard", "", apiHeader())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_CSRF(t *testing.T) {
	env := newCSRFEnv(t)

	// No CSRF cookie yet: a cross-site form post cannot log in.
	w := env.do(http.MethodPost, "/api/session/login",
		`{"email":"ahmet.yilmaz@okul.com","password":"okul123"}`, apiHeader())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "csrf_failed", decodeError(t, w.Body.Bytes())["error"])
	assert.Equal(t, domainauth.StatusUnauthenticated, env.manager.Status())

	w = env.do(http.MethodGet, "/api/session", "", apiHeader())
	require.Equal(t, http.StatusOK, w.Code)
	csrf := decodeSession(t, w.Body.Bytes()).CSRFToken
	require.NotEmpty(t, csrf)
	assert.Equal(t, env.jar[DefaultCSRFCookieName].Value, csrf)

	env.login(t)

	// A mismatched header is rejected even with the session cookie attached.
	forged := apiHeader()
	forged.Set(DefaultCSRFHeaderName, "not-the-token")
	w = env.do(http.MethodPost, "/api/session/logout", "", forged)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, domainauth.StatusAuthenticated, env.manager.Status())

	w = env.do(http.MethodPatch, "/api/session/profile", `{"grade":"10-B"}`, apiHeader())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Bearer callers are not exposed to cross-site requests.
	w = env.stranger().do(http.MethodPost, "/api/session/activity", `{"signal":"touch"}`, bearer(env.manager.Token()))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodPost, "/api/session/logout", "", apiHeader())
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domainauth.StatusUnauthenticated, env.manager.Status())
}
