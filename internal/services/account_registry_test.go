package services

import (
	"context"
	"strings"
	"testing"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRegistry_CreateTenant(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.registry.CreateTenant(context.Background(), "  ")
	assertKind(t, err, apperrors.KindValidation)

	err = f.registry.DeactivateTenant(context.Background(), "missing")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestAccountRegistry_CreateAccount(t *testing.T) {
	f := newLedgerFixture(t)
	other := newLedgerFixtureWith(t, f.store, nil)

	t.Run("new account starts at zero", func(t *testing.T) {
		account, err := f.registry.CreateAccount(f.ctx, CreateAccountInput{
			LedgerID: f.ledgers[models.AccountTypeAsset].ID,
			Name:     "  Wallet ",
			Code:     "1.03",
			Type:     "ASSET",
			Subtype:  "cash",
			Metadata: models.Metadata{"color": "green"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Wallet", account.Name)
		assert.Equal(t, models.AccountTypeAsset, account.Type)
		assert.True(t, account.IsActive)
		assert.Equal(t, f.tenant.ID, account.TenantID)
		b, err := f.balances.GetBalance(f.ctx, account.ID, nil)
		require.NoError(t, err)
		assertDecimal(t, "0", b.Balance)
		assert.Contains(t, f.auditBuf.String(), "ACCOUNT_CREATED")
	})

	tests := []struct {
		name string
		in   CreateAccountInput
		kind apperrors.Kind
	}{
		{
			name: "duplicate code",
			in:   CreateAccountInput{LedgerID: f.ledgers[models.AccountTypeAsset].ID, Name: "Other", Code: "1.01", Type: "asset"},
			kind: apperrors.KindDuplicateCode,
		},
		{
			name: "unknown type",
			in:   CreateAccountInput{LedgerID: f.ledgers[models.AccountTypeAsset].ID, Name: "X", Code: "9.01", Type: "cash"},
			kind: apperrors.KindInvalidAccountType,
		},
		{
			name: "type differs from ledger",
			in:   CreateAccountInput{LedgerID: f.ledgers[models.AccountTypeAsset].ID, Name: "X", Code: "9.02", Type: "expense"},
			kind: apperrors.KindInvalidAccountType,
		},
		{
			name: "unknown ledger",
			in:   CreateAccountInput{LedgerID: "missing", Name: "X", Code: "9.03", Type: "asset"},
			kind: apperrors.KindLedgerNotFound,
		},
		{
			name: "ledger of another tenant",
			in:   CreateAccountInput{LedgerID: other.ledgers[models.AccountTypeAsset].ID, Name: "X", Code: "9.04", Type: "asset"},
			kind: apperrors.KindLedgerNotFound,
		},
		{
			name: "missing name",
			in:   CreateAccountInput{LedgerID: f.ledgers[models.AccountTypeAsset].ID, Code: "9.05", Type: "asset"},
			kind: apperrors.KindValidation,
		},
		{
			name: "code too long",
			in:   CreateAccountInput{LedgerID: f.ledgers[models.AccountTypeAsset].ID, Name: "X", Code: strings.Repeat("9", 51), Type: "asset"},
			kind: apperrors.KindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.CreateAccount(f.ctx, tt.in)
			assertKind(t, err, tt.kind)
		})
	}

	t.Run("same code in another tenant", func(t *testing.T) {
		_, err := other.registry.CreateAccount(other.ctx, CreateAccountInput{
			LedgerID: other.ledgers[models.AccountTypeAsset].ID, Name: "Wallet", Code: "1.03", Type: "asset",
		})
		assert.NoError(t, err)
	})

	t.Run("deactivated tenant", func(t *testing.T) {
		g := newLedgerFixture(t)
		require.NoError(t, g.registry.DeactivateTenant(context.Background(), g.tenant.ID))

		_, err := g.registry.CreateAccount(g.ctx, CreateAccountInput{
			LedgerID: g.ledgers[models.AccountTypeAsset].ID, Name: "X", Code: "9.06", Type: "asset",
		})
		assertKind(t, err, apperrors.KindForbidden)
	})
}

func TestAccountRegistry_UpdateAccount(t *testing.T) {
	f := newLedgerFixture(t)
	f.expense(t, "lunch", "20", "5.01", "1.01", day(2024, 6, 1))
	ptr := func(s string) *string { return &s }

	t.Run("name description and metadata", func(t *testing.T) {
		updated, err := f.registry.UpdateAccount(f.ctx, f.id("1.02"), UpdateAccountInput{
			Name:        ptr("Emergency Fund"),
			Description: ptr("six months"),
			Metadata:    models.Metadata{"goal": "10000"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Emergency Fund", updated.Name)

		got, err := f.registry.GetAccount(f.ctx, f.id("1.02"))
		require.NoError(t, err)
		assert.Equal(t, "six months", got.Description)
		assert.Equal(t, "10000", got.Metadata["goal"])
		assert.Equal(t, "1.02", got.Code)
	})

	t.Run("unchanged code and type are accepted", func(t *testing.T) {
		_, err := f.registry.UpdateAccount(f.ctx, f.id("1.02"), UpdateAccountInput{Code: ptr("1.02"), Type: ptr("asset")})
		assert.NoError(t, err)
	})

	t.Run("code is immutable", func(t *testing.T) {
		_, err := f.registry.UpdateAccount(f.ctx, f.id("1.02"), UpdateAccountInput{Code: ptr("1.09")})
		assertKind(t, err, apperrors.KindCodeImmutable)
	})

	t.Run("type is immutable", func(t *testing.T) {
		_, err := f.registry.UpdateAccount(f.ctx, f.id("1.02"), UpdateAccountInput{Type: ptr("liability")})
		assertKind(t, err, apperrors.KindTypeImmutable)
	})

	t.Run("deactivating through a patch follows the entry rule", func(t *testing.T) {
		inactive := false
		_, err := f.registry.UpdateAccount(f.ctx, f.id("1.01"), UpdateAccountInput{IsActive: &inactive})
		assertKind(t, err, apperrors.KindHasTransactions)

		updated, err := f.registry.UpdateAccount(f.ctx, f.id("1.10"), UpdateAccountInput{IsActive: &inactive})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := f.registry.UpdateAccount(f.ctx, f.id("1.02"), UpdateAccountInput{Name: ptr("")})
		assertKind(t, err, apperrors.KindValidation)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.registry.UpdateAccount(f.ctx, "missing", UpdateAccountInput{Name: ptr("X")})
		assertKind(t, err, apperrors.KindNotFound)
	})
}

func TestAccountRegistry_DeactivateAccount(t *testing.T) {
	f := newLedgerFixture(t)
	tx := f.expense(t, "lunch", "20", "5.01", "1.01", day(2024, 6, 1))

	t.Run("account with entries stays active", func(t *testing.T) {
		_, err := f.registry.DeactivateAccount(f.ctx, f.id("1.01"))
		assertKind(t, err, apperrors.KindHasTransactions)

		got, err := f.registry.GetAccount(f.ctx, f.id("1.01"))
		require.NoError(t, err)
		assert.True(t, got.IsActive)
	})

	t.Run("reversal keeps the account referenced", func(t *testing.T) {
		_, err := f.reversals.Reverse(f.ctx, tx.ID)
		require.NoError(t, err)

		_, err = f.registry.DeactivateAccount(f.ctx, f.id("5.01"))
		assertKind(t, err, apperrors.KindHasTransactions)
	})

	t.Run("unused account", func(t *testing.T) {
		account, err := f.registry.DeactivateAccount(f.ctx, f.id("2.10"))
		require.NoError(t, err)
		assert.False(t, account.IsActive)

		again, err := f.registry.DeactivateAccount(f.ctx, f.id("2.10"))
		require.NoError(t, err)
		assert.False(t, again.IsActive)

		got, err := f.registry.GetAccount(f.ctx, f.id("2.10"))
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Contains(t, f.auditBuf.String(), "ACCOUNT_DEACTIVATED")
	})
}

func TestAccountRegistry_TenantIsolation(t *testing.T) {
	f := newLedgerFixture(t)
	other := newLedgerFixtureWith(t, f.store, nil)

	_, err := other.registry.GetAccount(other.ctx, f.id("1.01"))
	assertKind(t, err, apperrors.KindForbidden)

	name := "stolen"
	_, err = other.registry.UpdateAccount(other.ctx, f.id("1.01"), UpdateAccountInput{Name: &name})
	assertKind(t, err, apperrors.KindForbidden)

	_, err = other.registry.DeactivateAccount(other.ctx, f.id("1.02"))
	assertKind(t, err, apperrors.KindForbidden)

	_, err = f.registry.GetAccount(f.ctx, "missing")
	assertKind(t, err, apperrors.KindNotFound)

	_, err = f.registry.ListAccounts(f.ctx, models.AccountFilter{TenantID: other.tenant.ID})
	assertKind(t, err, apperrors.KindForbidden)
}

func TestAccountRegistry_ListAccounts(t *testing.T) {
	f := newLedgerFixture(t)
	newLedgerFixtureWith(t, f.store, nil)

	all, err := f.registry.ListAccounts(f.ctx, models.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, len(chart))
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Code, all[i].Code)
	}

	revenue := models.AccountTypeRevenue
	byType, err := f.registry.ListAccounts(f.ctx, models.AccountFilter{Type: &revenue})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	bySearch, err := f.registry.ListAccounts(f.ctx, models.AccountFilter{Search: " credit "})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "2.01", bySearch[0].Code)

	byLedger, err := f.registry.ListAccounts(f.ctx, models.AccountFilter{LedgerID: f.ledgers[models.AccountTypeExpense].ID})
	require.NoError(t, err)
	assert.Len(t, byLedger, 2)

	bad := models.AccountType("cash")
	_, err = f.registry.ListAccounts(f.ctx, models.AccountFilter{Type: &bad})
	assertKind(t, err, apperrors.KindInvalidAccountType)

	ledgers, err := f.registry.ListLedgers(f.ctx, "")
	require.NoError(t, err)
	assert.Len(t, ledgers, len(models.AccountTypes))
}
