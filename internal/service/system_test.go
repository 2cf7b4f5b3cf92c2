package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

func TestBootstrap_Validation(t *testing.T) {
	clock := &testClock{}
	sys := NewSystem(ledger.New(clock))

	err := sys.Bootstrap(context.Background(), Genesis{Admin: addr("0xa0"), Treasury: addr("0xa1"), FeeBps: 1500})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidFeePercentage))

	err = sys.Bootstrap(context.Background(), Genesis{Admin: addr("0xa0"), FeeBps: 100})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidAddress))

	ok, err := sys.Initialized(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBootstrap_Once(t *testing.T) {
	f := newFixture(t)

	ok, err := f.sys.Initialized(f.ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	err = f.sys.Bootstrap(f.ctx, Genesis{Admin: f.other, Treasury: f.other})
	assert.True(t, apperror.IsKind(err, apperror.KindAlreadyInitialized))
}

func TestBootstrap_GrantsComponentRoles(t *testing.T) {
	f := newFixture(t)

	cases := map[common.Address]authz.Role{
		RegistryIdentity:   authz.RoleBountyRegistry,
		SubmissionIdentity: authz.RoleSubmissionManager,
		DisputeIdentity:    authz.RoleDisputeResolver,
		KeeperIdentity:     authz.RoleKeeper,
		AdvisoryIdentity:   authz.RoleAIService,
	}
	for address, role := range cases {
		roles, err := f.sys.Roles(f.ctx, address)
		require.NoError(t, err)
		assert.Equal(t, []authz.Role{role}, roles, role)
	}

	roles, err := f.sys.Roles(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, []authz.Role{authz.RoleAdmin, authz.RolePauser}, roles)
}

func TestRoles_GrantAndRevoke(t *testing.T) {
	f := newFixture(t)

	err := f.sys.GrantRole(f.ctx, f.client, authz.RoleModerator, f.client)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))

	err = f.sys.GrantRole(f.ctx, f.admin, authz.Role("ROOT"), f.client)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))

	require.NoError(t, f.sys.GrantRole(f.ctx, f.admin, authz.RoleKeeper, f.other))
	roles, err := f.sys.Roles(f.ctx, f.other)
	require.NoError(t, err)
	assert.Contains(t, roles, authz.RoleKeeper)

	require.NoError(t, f.sys.RevokeRole(f.ctx, f.admin, authz.RoleKeeper, f.other))
	roles, err = f.sys.Roles(f.ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestRevokeRole_KeepsLastAdmin(t *testing.T) {
	f := newFixture(t)

	err := f.sys.RevokeRole(f.ctx, f.admin, authz.RoleAdmin, f.admin)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))

	require.NoError(t, f.sys.GrantRole(f.ctx, f.admin, authz.RoleAdmin, f.other))
	require.NoError(t, f.sys.RevokeRole(f.ctx, f.other, authz.RoleAdmin, f.admin))

	err = f.sys.GrantRole(f.ctx, f.admin, authz.RoleKeeper, f.client)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorizedCaller))
}
