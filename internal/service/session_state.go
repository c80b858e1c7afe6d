package service

import (
	"context"
	"errors"
	"log/slog"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// Persisted keys. The same layout is used in every tier.
const (
	KeyRole         = "userRole"
	KeyName         = "userName"
	KeyEmail        = "userEmail"
	KeyID           = "userId"
	KeyToken        = "authToken"
	KeyGrade        = "userGrade"
	KeyRefreshToken = "refreshToken"
)

// SessionKeys lists every key SessionState writes.
var SessionKeys = []string{KeyRole, KeyName, KeyEmail, KeyID, KeyToken, KeyGrade, KeyRefreshToken}

// ErrStoreMisconfigured means SessionState was built without a credential store.
var ErrStoreMisconfigured = errors.New("credential store is not configured")

// CredentialStore is the tiered key-value store SessionState persists to.
type CredentialStore interface {
	Set(ctx context.Context, key, value string, tier domainauth.Tier)
	Get(ctx context.Context, key string, tier domainauth.Tier) (string, bool)
	Remove(ctx context.Context, key string, tier domainauth.Tier)
	ClearAll(ctx context.Context)
}

// loadOrder is the tier precedence for Load.
var loadOrder = []domainauth.Tier{domainauth.TierDurable, domainauth.TierEphemeral, domainauth.TierMemory}

// SessionState maps a principal and credential to persisted keys.
type SessionState struct {
	store  CredentialStore
	logger *slog.Logger
}

// NewSessionState constructs a SessionState over store.
func NewSessionState(store CredentialStore, logger *slog.Logger) *SessionState {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionState{store: store, logger: logger}
}

// Load returns the first complete session found in tier order. Partial or malformed data counts as absent.
func (s *SessionState) Load(ctx context.Context) (*domainauth.Principal, *domainauth.Credential, domainauth.Tier, bool) {
	if s.store == nil {
		return nil, nil, 0, false
	}
	for _, tier := range loadOrder {
		p, c, ok := s.loadTier(ctx, tier)
		if ok {
			return p, c, tier, true
		}
	}
	return nil, nil, 0, false
}

func (s *SessionState) loadTier(ctx context.Context, tier domainauth.Tier) (*domainauth.Principal, *domainauth.Credential, bool) {
	required := map[string]string{}
	for _, key := range []string{KeyRole, KeyName, KeyEmail, KeyID, KeyToken} {
		v, ok := s.store.Get(ctx, key, tier)
		if !ok {
			return nil, nil, false
		}
		required[key] = v
	}

	role, err := domainauth.ParseRole(required[KeyRole])
	if err != nil {
		s.logger.DebugContext(ctx, "ignoring persisted session with invalid role", "tier", tier.String(), "error", err)
		return nil, nil, false
	}
	if required[KeyToken] == "" || required[KeyID] == "" {
		return nil, nil, false
	}

	grade, _ := s.store.Get(ctx, KeyGrade, tier)
	refresh, _ := s.store.Get(ctx, KeyRefreshToken, tier)

	p := &domainauth.Principal{
		ID:          required[KeyID],
		DisplayName: required[KeyName],
		Email:       required[KeyEmail],
		Role:        role,
		Grade:       grade,
	}
	c := &domainauth.Credential{
		Token:        required[KeyToken],
		RefreshToken: refresh,
		Claims:       DecodeClaims(required[KeyToken]),
	}
	return p, c, true
}

// Save writes every key of the session to tier. Keys left in other tiers by an earlier session are
// removed first so Load cannot resurrect them.
func (s *SessionState) Save(ctx context.Context, p domainauth.Principal, c domainauth.Credential, tier domainauth.Tier) error {
	if s.store == nil {
		return ErrStoreMisconfigured
	}

	for _, other := range loadOrder {
		if other == tier || other == domainauth.TierMemory {
			continue
		}
		for _, key := range SessionKeys {
			s.store.Remove(ctx, key, other)
		}
	}

	s.store.Set(ctx, KeyRole, string(p.Role), tier)
	s.store.Set(ctx, KeyName, p.DisplayName, tier)
	s.store.Set(ctx, KeyEmail, p.Email, tier)
	s.store.Set(ctx, KeyID, p.ID, tier)
	s.store.Set(ctx, KeyToken, c.Token, tier)
	s.setOptional(ctx, KeyGrade, p.Grade, tier)
	s.setOptional(ctx, KeyRefreshToken, c.RefreshToken, tier)

	s.logger.DebugContext(ctx, "session saved", "user_id", p.ID, "tier", tier.String())
	return nil
}

func (s *SessionState) setOptional(ctx context.Context, key, value string, tier domainauth.Tier) {
	if value == "" {
		s.store.Remove(ctx, key, tier)
		return
	}
	s.store.Set(ctx, key, value, tier)
}

// Clear removes the session from every tier. Idempotent.
func (s *SessionState) Clear(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.store.ClearAll(ctx)
}
