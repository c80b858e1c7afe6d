// Package remoteauth implements ports.AuthProvider against the platform's REST auth endpoints.
package remoteauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.AuthProvider = (*Provider)(nil)

const (
	loginPath   = "/auth/login"
	logoutPath  = "/auth/logout"
	refreshPath = "/auth/refresh"
	csrfPath    = "/auth/csrf-token"

	// CSRFHeader carries the token fetched from csrfPath on every POST.
	CSRFHeader = "X-CSRF-Token"

	maxBodyBytes   = 1 << 20
	defaultTimeout = 10 * time.Second
)

// Config holds configuration for the remote provider.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	CSRFEnabled bool
	HTTPClient  *http.Client // Optional; a client with a cookie jar is created when nil
	Logger      *slog.Logger
}

// Provider talks to the backend over HTTP.
type Provider struct {
	base        *url.URL
	client      *http.Client
	csrfEnabled bool
	logger      *slog.Logger

	mu        sync.Mutex
	csrfToken string
}

// NewProvider creates a remote provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http(s): %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		// The backend binds the CSRF token to its session cookie.
		jar, jarErr := cookiejar.New(nil)
		if jarErr != nil {
			return nil, fmt.Errorf("create cookie jar: %w", jarErr)
		}
		client = &http.Client{Timeout: timeout, Jar: jar}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		base:        base,
		client:      client,
		csrfEnabled: cfg.CSRFEnabled,
		logger:      logger.With("component", "remoteauth"),
	}, nil
}

func (p *Provider) Name() string { return "remote" }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	User         remoteUser `json:"user"`
}

type remoteUser struct {
	ID       flexibleID `json:"id"`
	Role     string     `json:"role"`
	FullName string     `json:"full_name"`
	Email    string     `json:"email"`
	Grade    string     `json:"grade"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// Login posts credentials and maps the response to a grant.
func (p *Provider) Login(ctx context.Context, in ports.LoginInput) (ports.LoginGrant, error) {
	const op = "login"
	status, body, err := p.post(ctx, op, loginPath, loginRequest{Email: in.Email, Password: in.Password}, "")
	if err != nil {
		return ports.LoginGrant{}, err
	}
	if err := statusError(op, status); err != nil {
		return ports.LoginGrant{}, err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureProviderError, op, fmt.Errorf("decode response: %w", err))
	}
	principal, err := resp.User.principal()
	if err != nil {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureProviderError, op, err)
	}
	if resp.Token == "" {
		return ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureProviderError, op, errors.New("response carries no token"))
	}
	return ports.LoginGrant{Token: resp.Token, RefreshToken: resp.RefreshToken, Principal: principal}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	const op = "refresh"
	if refreshToken == "" {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, op, domainauth.ErrNoRefreshToken)
	}
	status, body, err := p.post(ctx, op, refreshPath, refreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return ports.TokenPair{}, err
	}
	if err := statusError(op, status); err != nil {
		return ports.TokenPair{}, err
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureProviderError, op, fmt.Errorf("decode response: %w", err))
	}
	if resp.AccessToken == "" {
		return ports.TokenPair{}, domainauth.NewProviderError(domainauth.FailureProviderError, op, errors.New("response carries no access_token"))
	}
	return ports.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

// Logout asks the backend to invalidate token. Callers treat failures as best effort.
func (p *Provider) Logout(ctx context.Context, token string) error {
	const op = "logout"
	status, _, err := p.post(ctx, op, logoutPath, struct{}{}, token)
	if err != nil {
		return err
	}
	// An already invalid token is as good as a logged-out one.
	if status == http.StatusUnauthorized {
		return nil
	}
	return statusError(op, status)
}

// post sends a JSON POST. With CSRF enabled, a 403 drops the cached token and retries once.
func (p *Provider) post(ctx context.Context, op, path string, in any, bearer string) (int, []byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, nil, domainauth.NewProviderError(domainauth.FailureProviderError, op, fmt.Errorf("encode request: %w", err))
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(path), bytes.NewReader(payload))
		if err != nil {
			return 0, nil, domainauth.NewProviderError(domainauth.FailureProviderError, op, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		if p.csrfEnabled {
			token, csrfErr := p.csrf(ctx)
			if csrfErr != nil {
				return 0, nil, csrfErr
			}
			req.Header.Set(CSRFHeader, token)
		}

		status, body, err := p.do(req, op)
		if err != nil {
			return 0, nil, err
		}
		if status == http.StatusForbidden && p.csrfEnabled && attempt == 0 {
			p.logger.DebugContext(ctx, "csrf token rejected, refetching", "op", op)
			p.invalidateCSRF()
			continue
		}
		return status, body, nil
	}
}

func (p *Provider) csrf(ctx context.Context) (string, error) {
	p.mu.Lock()
	cached := p.csrfToken
	p.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	const op = "csrf"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(csrfPath), nil)
	if err != nil {
		return "", domainauth.NewProviderError(domainauth.FailureProviderError, op, err)
	}
	req.Header.Set("Accept", "application/json")
	status, body, err := p.do(req, op)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", domainauth.NewProviderError(domainauth.FailureProviderError, op, fmt.Errorf("unexpected status %d", status))
	}
	var resp csrfResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.CSRFToken == "" {
		return "", domainauth.NewProviderError(domainauth.FailureProviderError, op, errors.New("malformed csrf response"))
	}

	p.mu.Lock()
	p.csrfToken = resp.CSRFToken
	p.mu.Unlock()
	return resp.CSRFToken, nil
}

func (p *Provider) invalidateCSRF() {
	p.mu.Lock()
	p.csrfToken = ""
	p.mu.Unlock()
}

// do executes req. Transport failures are NetworkUnavailable.
func (p *Provider) do(req *http.Request, op string) (int, []byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, domainauth.NewProviderError(domainauth.FailureNetworkUnavailable, op, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close response body", "error", cerr)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, domainauth.NewProviderError(domainauth.FailureNetworkUnavailable, op, fmt.Errorf("read body: %w", err))
	}
	return resp.StatusCode, body, nil
}

func (p *Provider) endpoint(path string) string {
	u := *p.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func statusError(op string, status int) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domainauth.NewProviderError(domainauth.FailureInvalidCredentials, op, nil)
	default:
		return domainauth.NewProviderError(domainauth.FailureProviderError, op, fmt.Errorf("unexpected status %d", status))
	}
}

func (u remoteUser) principal() (domainauth.Principal, error) {
	role, err := domainauth.ParseRole(u.Role)
	if err != nil {
		return domainauth.Principal{}, err
	}
	if u.ID == "" {
		return domainauth.Principal{}, errors.New("user carries no id")
	}
	if strings.TrimSpace(u.Email) == "" {
		return domainauth.Principal{}, errors.New("user carries no email")
	}
	return domainauth.Principal{
		ID:          string(u.ID),
		DisplayName: u.FullName,
		Email:       strings.ToLower(strings.TrimSpace(u.Email)),
		Role:        role,
		Grade:       u.Grade,
	}, nil
}

// flexibleID accepts both JSON strings and numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}
