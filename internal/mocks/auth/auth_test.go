package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/ports"
)

func TestMockAuthProvider_LoginDefaults(t *testing.T) {
	provider := NewMockAuthProvider()
	ctx := context.Background()

	grant, err := provider.Login(ctx, ports.LoginInput{Email: "MOCK.user@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "mock-token-1", grant.Token)
	assert.Equal(t, "mock-refresh-1", grant.RefreshToken)
	assert.Equal(t, domainauth.RoleTeacher, grant.Principal.Role)

	_, err = provider.Login(ctx, ports.LoginInput{Email: "mock.user@example.com", Password: "nope"})
	require.ErrorIs(t, err, domainauth.ErrInvalidCredentials)

	_, err = provider.Login(ctx, ports.LoginInput{Email: "someone@example.com", Password: "secret"})
	require.ErrorIs(t, err, domainauth.ErrUnknownAccount)

	login, _, _ := provider.Calls()
	assert.Equal(t, 3, login)
}

func TestMockAuthProvider_Refresh(t *testing.T) {
	provider := NewMockAuthProvider()

	pair, err := provider.Refresh(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "mock-rotated-1", pair.AccessToken)

	_, err = provider.Refresh(context.Background(), "")
	require.Error(t, err)
}

func TestToggleBackend(t *testing.T) {
	ctx := context.Background()
	b := NewToggleBackend()

	require.NoError(t, b.Set(ctx, "k", "v"))
	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	b.SetFailing(true)
	_, _, err = b.Get(ctx, "k")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.ErrorIs(t, b.Set(ctx, "k", "v2"), ErrBackendUnavailable)
	assert.ElementsMatch(t, []string{"k"}, b.Keys())

	b.Wipe()
	assert.Empty(t, b.Keys())
}

func TestFailingBackend(t *testing.T) {
	ctx := context.Background()
	var b FailingBackend
	_, _, err := b.Get(ctx, "k")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.ErrorIs(t, b.Clear(ctx), ErrBackendUnavailable)
}
