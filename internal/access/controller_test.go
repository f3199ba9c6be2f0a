package access

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return NewController(NewMemoryStore(), "deployer", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRoleFromNameIsStable(t *testing.T) {
	assert.Equal(t, RoleFromName("BACKEND"), RoleBackend)
	assert.NotEqual(t, RoleAdmin, RoleBackend)
	assert.Len(t, RoleAdmin.String(), 66)
	assert.Equal(t, "ADMIN", RoleAdmin.Name())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("backend")
	require.NoError(t, err)
	assert.Equal(t, RoleBackend, r)

	r, err = ParseRole(RoleAdmin.String())
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)
	assert.Equal(t, "ADMIN", r.Name())

	_, err = ParseRole("0x1234")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = ParseRole("  ")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestDeployerGrantsAndRevokes(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	require.NoError(t, c.GrantRole(ctx, "deployer", RoleBackend, "collector"))
	ok, err := c.HasRole(ctx, RoleBackend, "collector")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.RevokeRole(ctx, "deployer", RoleBackend, "collector"))
	ok, err = c.HasRole(ctx, RoleBackend, "collector")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminRoleHolderMayGrant(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	require.NoError(t, c.GrantRole(ctx, "deployer", RoleAdmin, "ops"))
	require.NoError(t, c.GrantRole(ctx, "ops", RoleBackend, "collector"))

	ok, err := c.HasRole(ctx, RoleBackend, "collector")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonAdminCannotGrantAndNothingChanges(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	err := c.GrantRole(ctx, "mallory", RoleBackend, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)

	ok, err := c.HasRole(ctx, RoleBackend, "mallory")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.GrantRole(ctx, "deployer", RoleBackend, "collector"))
	err = c.RevokeRole(ctx, "collector", RoleBackend, "collector")
	assert.ErrorIs(t, err, ErrUnauthorized)
	ok, err = c.HasRole(ctx, RoleBackend, "collector")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCustomRolesNeedNoCodeChange(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	auditor := RoleFromName("AUDITOR")

	require.NoError(t, c.GrantRole(ctx, "deployer", auditor, "alice"))
	ok, err := c.HasRole(ctx, auditor, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, auditor.String(), auditor.Name())
}

func TestBootstrapIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	require.NoError(t, c.Bootstrap(ctx, []Principal{"collector", "indexer"}))
	require.NoError(t, c.Bootstrap(ctx, []Principal{"collector"}))

	for _, p := range []Principal{"collector", "indexer"} {
		ok, err := c.HasRole(ctx, RoleBackend, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}
}

func TestEmptyPrincipalHasNoRoles(t *testing.T) {
	c := newTestController(t)
	ok, err := c.IsAdmin(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
