package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduadmin/portal/internal/credstore"
	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	mocks "github.com/eduadmin/portal/internal/mocks/auth"
	"github.com/eduadmin/portal/internal/testutil"
)

func newState(t *testing.T) (*SessionState, *mocks.ToggleBackend, *mocks.ToggleBackend, *credstore.Store) {
	t.Helper()
	durable := mocks.NewToggleBackend()
	ephemeral := mocks.NewToggleBackend()
	store := credstore.New(credstore.Options{Durable: durable, Ephemeral: ephemeral})
	return NewSessionState(store, nil), durable, ephemeral, store
}

func TestSessionState_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, durable, ephemeral, _ := newState(t)
	p := testutil.NewPrincipal().Build()
	c := domainauth.Credential{Token: "tok", RefreshToken: "ref"}

	require.NoError(t, s.Save(ctx, p, c, domainauth.TierDurable))
	assert.ElementsMatch(t, SessionKeys, durable.Keys())
	assert.Empty(t, ephemeral.Keys())

	gotP, gotC, tier, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, domainauth.TierDurable, tier)
	assert.Equal(t, p, *gotP)
	assert.Equal(t, "tok", gotC.Token)
	assert.Equal(t, "ref", gotC.RefreshToken)
}

func TestSessionState_DurableWinsOverEphemeral(t *testing.T) {
	ctx := context.Background()
	s, _, _, store := newState(t)

	// Write an ephemeral session directly, then a durable one through another path.
	ephemeral := testutil.NewPrincipal().WithID("e").Build()
	require.NoError(t, s.Save(ctx, ephemeral, domainauth.Credential{Token: "e"}, domainauth.TierEphemeral))
	for k, v := range map[string]string{KeyRole: "admin", KeyName: "D", KeyEmail: "d@x", KeyID: "d", KeyToken: "d"} {
		store.Set(ctx, k, v, domainauth.TierDurable)
	}

	p, _, tier, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, domainauth.TierDurable, tier)
	assert.Equal(t, "d", p.ID)
}

func TestSessionState_SaveRemovesOtherTier(t *testing.T) {
	ctx := context.Background()
	s, durable, ephemeral, _ := newState(t)
	p := testutil.NewPrincipal().Build()

	require.NoError(t, s.Save(ctx, p, domainauth.Credential{Token: "old"}, domainauth.TierDurable))
	require.NoError(t, s.Save(ctx, p, domainauth.Credential{Token: "new"}, domainauth.TierEphemeral))

	assert.Empty(t, durable.Keys())
	assert.NotEmpty(t, ephemeral.Keys())
	_, c, tier, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, domainauth.TierEphemeral, tier)
	assert.Equal(t, "new", c.Token)
}

func TestSessionState_OptionalKeysCleared(t *testing.T) {
	ctx := context.Background()
	s, durable, _, _ := newState(t)

	require.NoError(t, s.Save(ctx, testutil.NewPrincipal().Build(), domainauth.Credential{Token: "t", RefreshToken: "r"}, domainauth.TierDurable))
	teacher := testutil.NewPrincipal().WithRole(domainauth.RoleTeacher).Build()
	require.NoError(t, s.Save(ctx, teacher, domainauth.Credential{Token: "t2"}, domainauth.TierDurable))

	assert.NotContains(t, durable.Keys(), KeyGrade)
	assert.NotContains(t, durable.Keys(), KeyRefreshToken)
	p, c, _, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Empty(t, p.Grade)
	assert.Empty(t, c.RefreshToken)
}

func TestSessionState_PartialOrMalformedIsAbsent(t *testing.T) {
	ctx := context.Background()
	cases := map[string]map[string]string{
		"missing token": {KeyRole: "student", KeyName: "n", KeyEmail: "e", KeyID: "1"},
		"missing role":  {KeyName: "n", KeyEmail: "e", KeyID: "1", KeyToken: "t"},
		"unknown role":  {KeyRole: "janitor", KeyName: "n", KeyEmail: "e", KeyID: "1", KeyToken: "t"},
		"empty token":   {KeyRole: "student", KeyName: "n", KeyEmail: "e", KeyID: "1", KeyToken: ""},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			s, _, _, store := newState(t)
			for k, v := range kv {
				store.Set(ctx, k, v, domainauth.TierDurable)
			}
			_, _, _, ok := s.Load(ctx)
			assert.False(t, ok)
		})
	}
}

func TestSessionState_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	s, durable, ephemeral, _ := newState(t)
	require.NoError(t, s.Save(ctx, testutil.NewPrincipal().Build(), domainauth.Credential{Token: "t"}, domainauth.TierEphemeral))

	s.Clear(ctx)
	s.Clear(ctx)

	assert.Empty(t, durable.Keys())
	assert.Empty(t, ephemeral.Keys())
	_, _, _, ok := s.Load(ctx)
	assert.False(t, ok)
}

func TestSessionState_MemoryFallback(t *testing.T) {
	ctx := context.Background()
	store := credstore.New(credstore.Options{Durable: mocks.FailingBackend{}, Ephemeral: mocks.FailingBackend{}})
	s := NewSessionState(store, nil)

	require.NoError(t, s.Save(ctx, testutil.NewPrincipal().Build(), domainauth.Credential{Token: "t"}, domainauth.TierDurable))
	p, _, tier, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleStudent, p.Role)
	assert.Equal(t, domainauth.TierDurable, tier)
}

func TestSessionState_Misconfigured(t *testing.T) {
	s := NewSessionState(nil, nil)
	err := s.Save(context.Background(), testutil.NewPrincipal().Build(), domainauth.Credential{Token: "t"}, domainauth.TierDurable)
	assert.ErrorIs(t, err, ErrStoreMisconfigured)
	_, _, _, ok := s.Load(context.Background())
	assert.False(t, ok)
	s.Clear(context.Background())
}
