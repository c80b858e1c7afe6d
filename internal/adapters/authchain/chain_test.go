package authchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/mocks"
	"github.com/eduadmin/portal/internal/ports"
)

var miss = domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", domainauth.ErrUnknownAccount)

func TestLogin_FallsThroughOnlyOnMiss(t *testing.T) {
	ctx := context.Background()
	in := ports.LoginInput{Email: "remote@school.org", Password: "pw"}
	want := ports.LoginGrant{Token: "remote-token"}

	t.Run("miss then remote", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		local := mocks.NewMockAuthProvider(ctrl)
		remote := mocks.NewMockAuthProvider(ctrl)
		local.EXPECT().Login(ctx, in).Return(ports.LoginGrant{}, miss)
		local.EXPECT().Name().Return("local").AnyTimes()
		remote.EXPECT().Login(ctx, in).Return(want, nil)

		got, err := New(nil, local, remote).Login(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("wrong password stops", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		local := mocks.NewMockAuthProvider(ctrl)
		remote := mocks.NewMockAuthProvider(ctrl)
		local.EXPECT().Login(ctx, in).Return(ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureInvalidCredentials, "login", nil))

		_, err := New(nil, local, remote).Login(ctx, in)
		assert.True(t, errors.Is(err, domainauth.ErrInvalidCredentials))
	})

	t.Run("local success skips remote", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		local := mocks.NewMockAuthProvider(ctrl)
		remote := mocks.NewMockAuthProvider(ctrl)
		local.EXPECT().Login(ctx, in).Return(want, nil)

		_, err := New(nil, local, remote).Login(ctx, in)
		require.NoError(t, err)
	})

	t.Run("remote network failure surfaces", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		local := mocks.NewMockAuthProvider(ctrl)
		remote := mocks.NewMockAuthProvider(ctrl)
		local.EXPECT().Login(ctx, in).Return(ports.LoginGrant{}, miss)
		local.EXPECT().Name().Return("local").AnyTimes()
		remote.EXPECT().Login(ctx, in).Return(ports.LoginGrant{}, domainauth.NewProviderError(domainauth.FailureNetworkUnavailable, "login", nil))

		_, err := New(nil, local, remote).Login(ctx, in)
		assert.Equal(t, domainauth.FailureNetworkUnavailable, domainauth.KindOf(err))
	})
}

func TestLogin_AllMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockAuthProvider(ctrl)
	local.EXPECT().Login(gomock.Any(), gomock.Any()).Return(ports.LoginGrant{}, miss)
	local.EXPECT().Name().Return("local").AnyTimes()

	_, err := New(nil, local).Login(context.Background(), ports.LoginInput{})
	assert.Equal(t, domainauth.FailureInvalidCredentials, domainauth.KindOf(err))

	_, err = New(nil).Login(context.Background(), ports.LoginInput{})
	assert.Equal(t, domainauth.FailureProviderError, domainauth.KindOf(err))
}

func TestRefresh_RoutesByMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockAuthProvider(ctrl)
	remote := mocks.NewMockAuthProvider(ctrl)
	local.EXPECT().Refresh(gomock.Any(), "r").Return(ports.TokenPair{}, miss)
	remote.EXPECT().Refresh(gomock.Any(), "r").Return(ports.TokenPair{AccessToken: "a"}, nil)

	pair, err := New(nil, local, remote).Refresh(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "a", pair.AccessToken)
}

func TestLogout_AllProvidersJoinErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockAuthProvider(ctrl)
	remote := mocks.NewMockAuthProvider(ctrl)
	boom := errors.New("boom")
	local.EXPECT().Logout(gomock.Any(), "t").Return(nil)
	remote.EXPECT().Logout(gomock.Any(), "t").Return(boom)

	err := New(nil, local, remote).Logout(context.Background(), "t")
	assert.ErrorIs(t, err, boom)
}

func TestName(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockAuthProvider(ctrl)
	remote := mocks.NewMockAuthProvider(ctrl)
	local.EXPECT().Name().Return("local")
	remote.EXPECT().Name().Return("remote")

	assert.Equal(t, "local+remote", New(nil, local, nil, remote).Name())
}
