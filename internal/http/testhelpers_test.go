package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eduadmin/portal/internal/credstore"
	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	mocks "github.com/eduadmin/portal/internal/mocks/auth"
	"github.com/eduadmin/portal/internal/ports"
	"github.com/eduadmin/portal/internal/service"
	"github.com/eduadmin/portal/internal/testutil"
)

const testPassword = "okul123"

type testEnv struct {
	provider *mocks.MockAuthProvider
	manager  *service.SessionManager
	activity *recordingPublisher
	handler  http.Handler
	// jar holds the cookies the router has set, like a browser would.
	jar map[string]*http.Cookie
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newTestEnv builds a router over a real session manager. The manager is left in Checking unless restore is true.
func newTestEnv(t *testing.T, user domainauth.Principal, restore bool) *testEnv {
	t.Helper()
	return buildTestEnv(t, user, restore, false)
}

// newCSRFEnv is newStudentEnv with CSRFProtection switched on.
func newCSRFEnv(t *testing.T) *testEnv {
	t.Helper()
	return buildTestEnv(t, testutil.NewPrincipal().Build(), true, true)
}

func buildTestEnv(t *testing.T, user domainauth.Principal, restore, csrf bool) *testEnv {
	t.Helper()
	provider := mocks.NewMockAuthProvider()
	provider.DefaultUser = user
	provider.DefaultPassword = testPassword

	store := credstore.New(credstore.Options{
		Durable:   mocks.NewToggleBackend(),
		Ephemeral: mocks.NewToggleBackend(),
		Logger:    discardLogger(),
	})
	manager := service.NewSessionManager(service.SessionManagerOptions{
		State:    service.NewSessionState(store, discardLogger()),
		Provider: provider,
		Logger:   discardLogger(),
	})
	if restore {
		manager.Restore(context.Background())
	}
	pub := &recordingPublisher{}
	return &testEnv{
		provider: provider,
		manager:  manager,
		activity: pub,
		handler: NewRouter(RouterServices{
			Session:     manager,
			Activity:    pub,
			CSRFEnabled: csrf,
			Logger:      discardLogger(),
		}),
		jar: map[string]*http.Cookie{},
	}
}

func newStudentEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, testutil.NewPrincipal().Build(), true)
}

// stranger returns a client of the same router that holds no cookies.
func (e *testEnv) stranger() *testEnv {
	c := *e
	c.jar = map[string]*http.Cookie{}
	return &c
}

// login signs in through the HTTP API so the jar ends up holding the session cookie.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	e.do(http.MethodGet, "/api/session", "", apiHeader())
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, e.provider.DefaultUser.Email, testPassword)
	w := e.do(http.MethodPost, "/api/session/login", body, apiHeader())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, e.jar, SessionCookieName)
}

// do serves one request. Jar cookies are attached, a held CSRF cookie is echoed in the
// header on unsafe methods unless header sets one, and Set-Cookie responses update the jar.
func (e *testEnv) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range e.jar {
		req.AddCookie(c)
	}
	if c, ok := e.jar[DefaultCSRFCookieName]; ok && requiresCSRFValidation(method) && req.Header.Get(DefaultCSRFHeaderName) == "" {
		req.Header.Set(DefaultCSRFHeaderName, c.Value)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.MaxAge < 0 {
			delete(e.jar, c.Name)
			continue
		}
		e.jar[c.Name] = c
	}
	return w
}

// bearer returns API headers that authenticate with token.
func bearer(token string) http.Header {
	h := apiHeader()
	h.Set("Authorization", "Bearer "+token)
	return h
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	res := w.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func apiHeader() http.Header { return http.Header{"Accept": []string{"application/json"}} }

func browserHeader() http.Header { return http.Header{"Accept": []string{"text/html,application/xhtml+xml"}} }

type recordingPublisher struct {
	mu      sync.Mutex
	signals []ports.ActivitySignal
}

func (p *recordingPublisher) Publish(s ports.ActivitySignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, s)
}

func (p *recordingPublisher) Signals() []ports.ActivitySignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.ActivitySignal(nil), p.signals...)
}

// staticGuard returns a fixed decision to callers presenting token.
type staticGuard struct {
	decision  domainauth.Decision
	principal *domainauth.Principal
	token     string
}

func (g staticGuard) Decide(domainauth.Requirement) domainauth.Decision { return g.decision }
func (g staticGuard) Principal() *domainauth.Principal                  { return g.principal }
func (g staticGuard) Token() string                                     { return g.token }
