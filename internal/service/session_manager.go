package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/observability/metrics"
	"github.com/eduadmin/portal/internal/observability/statsd"
	"github.com/eduadmin/portal/internal/ports"
)

// Logout reasons used in logs and metrics.
const (
	ReasonUser          = "user"
	ReasonIdle          = "idle"
	ReasonRefreshFailed = "refresh_failed"
	ReasonExpired       = "expired"
)

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	State    *SessionState
	Provider ports.AuthProvider
	// Notifier is optional; when set, local saves and clears are announced to other instances.
	Notifier   ports.ChangeNotifier
	InstanceID string
	Metrics    statsd.Sink
	Logger     *slog.Logger
	Now        func() time.Time
}

// LoginResult is the outcome of Login. Failure is FailureNone exactly when Principal is set.
type LoginResult struct {
	Principal *domainauth.Principal
	Failure   domainauth.FailureKind
	Err       error
}

// OK reports whether the login succeeded.
func (r LoginResult) OK() bool { return r.Failure == domainauth.FailureNone && r.Principal != nil }

// SessionManager owns the authentication status and the current principal and credential.
// One instance exists per process; it is safe for concurrent use.
type SessionManager struct {
	state      *SessionState
	provider   ports.AuthProvider
	notifier   ports.ChangeNotifier
	instanceID string
	metrics    statsd.Sink
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.RWMutex
	status     domainauth.Status
	principal  *domainauth.Principal
	credential *domainauth.Credential
	tier       domainauth.Tier
	listeners  []func(domainauth.Status)

	refreshGroup singleflight.Group
}

// NewSessionManager constructs a manager in the Checking status. Call Restore to settle it.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Noop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	state := opts.State
	if state == nil {
		state = NewSessionState(nil, logger)
	}
	return &SessionManager{
		state:      state,
		provider:   opts.Provider,
		notifier:   opts.Notifier,
		instanceID: opts.InstanceID,
		metrics:    sink,
		logger:     logger.With("component", "session_manager"),
		now:        now,
		status:     domainauth.StatusChecking,
	}
}

// Restore loads a persisted session and settles the status. Expired sessions are cleared.
func (m *SessionManager) Restore(ctx context.Context) {
	start := time.Now()
	result := m.reload(ctx)
	metrics.EmitSession(m.metrics, metrics.SessionMetric{
		Event:    metrics.EventRestore,
		Result:   metrics.ResultSuccess,
		Reason:   result,
		Duration: time.Since(start),
	})
}

// Resync re-reads persisted state after another instance changed it.
func (m *SessionManager) Resync(ctx context.Context) {
	m.reload(ctx)
}

// reload applies whatever the store holds now and reports what it found.
func (m *SessionManager) reload(ctx context.Context) string {
	p, c, tier, ok := m.state.Load(ctx)
	switch {
	case !ok:
		m.setUnauthenticated()
		m.logger.DebugContext(ctx, "no persisted session")
		return "absent"
	case c.Expired(m.now()):
		m.state.Clear(ctx)
		m.setUnauthenticated()
		m.logger.InfoContext(ctx, "persisted session expired", "user_id", p.ID, "tier", tier.String())
		return ReasonExpired
	default:
		m.setAuthenticated(*p, *c, tier)
		m.logger.InfoContext(ctx, "session restored", "user_id", p.ID, "role", string(p.Role), "tier", tier.String())
		return "restored"
	}
}

// Login verifies credentials with the provider and persists the session on success.
// It never returns an error; failures are reported in the result and leave any existing session untouched.
func (m *SessionManager) Login(ctx context.Context, email, password string, rememberMe bool) LoginResult {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	res := m.login(ctx, email, password, rememberMe)

	metric := metrics.SessionMetric{
		Event:    metrics.EventLogin,
		Result:   metrics.ResultSuccess,
		Provider: m.providerName(),
		Duration: time.Since(start),
	}
	if !res.OK() {
		metric.Result = metrics.ResultError
		metric.Reason = res.Failure.String()
		metric.Err = res.Err
		m.logger.WarnContext(ctx, "login failed", "failure", res.Failure.String(), "error", res.Err)
	} else {
		m.logger.InfoContext(ctx, "login succeeded", "user_id", res.Principal.ID, "role", string(res.Principal.Role), "remember_me", rememberMe)
	}
	metrics.EmitSession(m.metrics, metric)
	return res
}

func (m *SessionManager) login(ctx context.Context, email, password string, rememberMe bool) (res LoginResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("login panic: %v", r)
			res = LoginResult{Failure: domainauth.FailureProviderError, Err: err}
		}
	}()

	if m.provider == nil {
		return failed(domainauth.NewProviderError(domainauth.FailureProviderError, "login", errors.New("no auth provider configured")))
	}
	if email == "" || password == "" {
		return failed(domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", errors.New("email and password are required")))
	}

	grant, err := m.provider.Login(ctx, ports.LoginInput{Email: email, Password: password})
	if err != nil {
		return failed(err)
	}
	if !grant.Principal.Role.Valid() || grant.Principal.ID == "" || grant.Token == "" {
		return failed(domainauth.NewProviderError(domainauth.FailureProviderError, "login", errors.New("incomplete grant")))
	}

	cred := domainauth.Credential{
		Token:        grant.Token,
		RefreshToken: grant.RefreshToken,
		Claims:       DecodeClaims(grant.Token),
	}
	if cred.Expired(m.now()) {
		return failed(domainauth.NewProviderError(domainauth.FailureProviderError, "login", errors.New("issued token already expired")))
	}

	tier := domainauth.TierEphemeral
	if rememberMe {
		tier = domainauth.TierDurable
	}
	if err := m.state.Save(ctx, grant.Principal, cred, tier); err != nil {
		return failed(domainauth.NewProviderError(domainauth.FailureProviderError, "login", err))
	}

	m.setAuthenticated(grant.Principal, cred, tier)
	m.publish(ctx, ports.ChangeSaved)

	principal := grant.Principal
	return LoginResult{Principal: &principal}
}

func failed(err error) LoginResult {
	return LoginResult{Failure: domainauth.KindOf(err), Err: err}
}

// Logout ends the session. The remote call is best effort; local state is always cleared. Idempotent.
func (m *SessionManager) Logout(ctx context.Context) {
	m.EndSession(ctx, ReasonUser)
}

// EndSession is Logout with an explicit reason for logs and metrics.
func (m *SessionManager) EndSession(ctx context.Context, reason string) {
	start := time.Now()
	token := m.Token()

	result := metrics.ResultSuccess
	if token == "" {
		result = metrics.ResultNoop
	}

	var remoteErr error
	if token != "" && m.provider != nil {
		remoteErr = m.remoteLogout(ctx, token)
		if remoteErr != nil {
			m.logger.WarnContext(ctx, "remote logout failed", "error", remoteErr)
		}
	}

	m.state.Clear(ctx)
	changed := m.setUnauthenticated()
	if changed {
		m.publish(ctx, ports.ChangeCleared)
		m.logger.InfoContext(ctx, "session ended", "reason", reason)
	}

	metrics.EmitSession(m.metrics, metrics.SessionMetric{
		Event:    metrics.EventLogout,
		Result:   result,
		Provider: m.providerName(),
		Reason:   reason,
		Duration: time.Since(start),
	})
}

func (m *SessionManager) remoteLogout(ctx context.Context, token string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logout panic: %v", r)
		}
	}()
	return m.provider.Logout(ctx, token)
}

// Refresh exchanges the stored refresh token for a new access token. On rejection the session is torn
// down and the failure returned. Concurrent calls share one exchange.
func (m *SessionManager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *SessionManager) refresh(ctx context.Context) error {
	start := time.Now()

	m.mu.RLock()
	if m.status != domainauth.StatusAuthenticated || m.credential == nil {
		m.mu.RUnlock()
		return domainauth.ErrNotAuthenticated
	}
	principal := *m.principal
	cred := *m.credential
	tier := m.tier
	m.mu.RUnlock()

	emit := func(err error) {
		metric := metrics.SessionMetric{
			Event:    metrics.EventRefresh,
			Result:   metrics.ResultSuccess,
			Provider: m.providerName(),
			Duration: time.Since(start),
		}
		if err != nil {
			metric.Result = metrics.ResultError
			metric.Reason = domainauth.KindOf(err).String()
			metric.Err = err
		}
		metrics.EmitSession(m.metrics, metric)
	}

	var err error
	switch {
	case cred.RefreshToken == "":
		err = domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "refresh", domainauth.ErrNoRefreshToken)
	case m.provider == nil:
		err = domainauth.NewProviderError(domainauth.FailureProviderError, "refresh", errors.New("no auth provider configured"))
	}

	var pair ports.TokenPair
	if err == nil {
		pair, err = m.provider.Refresh(ctx, cred.RefreshToken)
	}
	if err == nil && pair.AccessToken == "" {
		err = domainauth.NewProviderError(domainauth.FailureProviderError, "refresh", errors.New("empty access token"))
	}
	if err != nil {
		emit(err)
		m.logger.WarnContext(ctx, "refresh failed, ending session", "user_id", principal.ID, "error", err)
		if m.sameSession(cred.Token) {
			m.state.Clear(ctx)
			if m.setUnauthenticated() {
				m.publish(ctx, ports.ChangeCleared)
			}
		}
		return err
	}

	next := domainauth.Credential{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Claims:       DecodeClaims(pair.AccessToken),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	// The session may have ended while the exchange was in flight.
	if !m.sameSession(cred.Token) {
		emit(domainauth.ErrNotAuthenticated)
		return domainauth.ErrNotAuthenticated
	}
	if err := m.state.Save(ctx, principal, next, tier); err != nil {
		emit(err)
		return fmt.Errorf("persist refreshed credential: %w", err)
	}
	m.setAuthenticated(principal, next, tier)
	m.publish(ctx, ports.ChangeSaved)
	emit(nil)
	m.logger.InfoContext(ctx, "credential refreshed", "user_id", principal.ID)
	return nil
}

// UpdateProfile changes principal fields and persists them to the session's tier. The credential is kept.
func (m *SessionManager) UpdateProfile(ctx context.Context, u domainauth.ProfileUpdate) error {
	m.mu.RLock()
	if m.status != domainauth.StatusAuthenticated {
		m.mu.RUnlock()
		return domainauth.ErrNotAuthenticated
	}
	next := m.principal.WithProfile(u)
	cred := *m.credential
	tier := m.tier
	m.mu.RUnlock()

	if err := m.state.Save(ctx, next, cred, tier); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	if !m.sameSession(cred.Token) {
		return domainauth.ErrNotAuthenticated
	}
	m.setAuthenticated(next, cred, tier)
	m.publish(ctx, ports.ChangeSaved)
	return nil
}

// Status returns the current authentication status.
func (m *SessionManager) Status() domainauth.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Principal returns a copy of the current principal, or nil when not authenticated.
func (m *SessionManager) Principal() *domainauth.Principal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.principal == nil {
		return nil
	}
	p := *m.principal
	return &p
}

// Token returns the current bearer token, or "" when not authenticated.
func (m *SessionManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.credential == nil {
		return ""
	}
	return m.credential.Token
}

// Tier returns the tier the current session is persisted in.
func (m *SessionManager) Tier() (domainauth.Tier, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tier, m.status == domainauth.StatusAuthenticated
}

// HasRole reports whether an authenticated principal holds role.
func (m *SessionManager) HasRole(role domainauth.Role) bool {
	return m.HasAnyRole(role)
}

// HasAnyRole reports whether an authenticated principal holds any of roles.
func (m *SessionManager) HasAnyRole(roles ...domainauth.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != domainauth.StatusAuthenticated || m.principal == nil {
		return false
	}
	for _, r := range roles {
		if m.principal.Role == r {
			return true
		}
	}
	return false
}

// Decide evaluates req against the current status and principal.
func (m *SessionManager) Decide(req domainauth.Requirement) domainauth.Decision {
	m.mu.RLock()
	status := m.status
	var role domainauth.Role
	if m.principal != nil {
		role = m.principal.Role
	}
	m.mu.RUnlock()
	return domainauth.Evaluate(status, role, req)
}

// OnChange registers fn to be called after every status transition.
func (m *SessionManager) OnChange(fn func(domainauth.Status)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Follow applies change events from other instances until ctx is done.
func (m *SessionManager) Follow(ctx context.Context, n ports.ChangeNotifier) error {
	return n.Listen(ctx, func(ev ports.ChangeEvent) {
		m.logger.InfoContext(ctx, "session changed elsewhere", "kind", string(ev.Kind), "origin", ev.Origin)
		m.Resync(ctx)
	})
}

func (m *SessionManager) sameSession(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == domainauth.StatusAuthenticated && m.credential != nil && m.credential.Token == token
}

func (m *SessionManager) setAuthenticated(p domainauth.Principal, c domainauth.Credential, tier domainauth.Tier) {
	m.mu.Lock()
	prev := m.status
	m.status = domainauth.StatusAuthenticated
	m.principal = &p
	m.credential = &c
	m.tier = tier
	listeners := m.snapshotListeners(prev)
	m.mu.Unlock()
	notify(listeners, domainauth.StatusAuthenticated)
}

// setUnauthenticated reports whether the status changed.
func (m *SessionManager) setUnauthenticated() bool {
	m.mu.Lock()
	prev := m.status
	m.status = domainauth.StatusUnauthenticated
	m.principal = nil
	m.credential = nil
	listeners := m.snapshotListeners(prev)
	m.mu.Unlock()
	notify(listeners, domainauth.StatusUnauthenticated)
	return prev != domainauth.StatusUnauthenticated
}

// snapshotListeners must be called with mu held. It returns nil when the status did not change.
func (m *SessionManager) snapshotListeners(prev domainauth.Status) []func(domainauth.Status) {
	if prev == m.status {
		return nil
	}
	return slices.Clone(m.listeners)
}

func notify(listeners []func(domainauth.Status), s domainauth.Status) {
	for _, fn := range listeners {
		fn(s)
	}
}

func (m *SessionManager) publish(ctx context.Context, kind ports.ChangeKind) {
	if m.notifier == nil {
		return
	}
	ev := ports.ChangeEvent{Kind: kind, Origin: m.instanceID}
	if err := m.notifier.Publish(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "publish session change failed", "kind", string(kind), "error", err)
	}
}

func (m *SessionManager) providerName() string {
	if m.provider == nil {
		return ""
	}
	return m.provider.Name()
}
