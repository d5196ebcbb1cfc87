package services

import (
	"context"
	"testing"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeTenant(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{TenantID: "tenant-a", Subject: "user-1"})

	t.Run("defaults to caller tenant", func(t *testing.T) {
		tenant, err := ScopeTenant(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "tenant-a", tenant)
	})

	t.Run("accepts own tenant", func(t *testing.T) {
		tenant, err := ScopeTenant(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, "tenant-a", tenant)
	})

	t.Run("rejects foreign tenant", func(t *testing.T) {
		_, err := ScopeTenant(ctx, "tenant-b")
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("requires caller", func(t *testing.T) {
		_, err := ScopeTenant(context.Background(), "tenant-a")
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("empty tenant is unauthenticated", func(t *testing.T) {
		_, err := ScopeTenant(WithCaller(context.Background(), Caller{Subject: "x"}), "")
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})
}

func TestAuthorizeTenant(t *testing.T) {
	assert.NoError(t, AuthorizeTenant("a", "a", "account", "1"))
	err := AuthorizeTenant("a", "b", "account", "1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}
