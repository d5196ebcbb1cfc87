package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// AccountRegistry is the only writer of tenant, ledger and account rows.
type AccountRegistry struct {
	deps      Deps
	validator *ValidationHelper
}

func NewAccountRegistry(deps Deps) *AccountRegistry {
	return &AccountRegistry{
		deps:      deps.withDefaults(),
		validator: NewValidationHelper(),
	}
}

type CreateLedgerInput struct {
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name" validate:"required,max=100"`
	Type     string `json:"type"`
}

type CreateAccountInput struct {
	TenantID    string          `json:"tenantId,omitempty"`
	LedgerID    string          `json:"ledgerId" validate:"required"`
	Name        string          `json:"name" validate:"required,max=200"`
	Code        string          `json:"code" validate:"required,max=50"`
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype,omitempty" validate:"max=50"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

// UpdateAccountInput is a patch; nil fields are left unchanged. Code and
// Type are accepted only so that an attempt to change them can be refused.
type UpdateAccountInput struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=500"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
	IsActive    *bool           `json:"isActive,omitempty"`
	Code        *string         `json:"code,omitempty"`
	Type        *string         `json:"type,omitempty"`
}

func (r *AccountRegistry) validate(s any) error {
	if err := r.validator.ValidateStruct(s); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "Validation failed")
	}
	return nil
}

func parseAccountType(s string) (models.AccountType, error) {
	t := models.AccountType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", apperrors.New(apperrors.KindInvalidAccountType,
			"account type %q must be one of asset, liability, equity, revenue, expense", s)
	}
	return t, nil
}

// CreateTenant onboards a tenant. It is an operator action and is not
// scoped to a caller.
func (r *AccountRegistry) CreateTenant(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.KindValidation, "tenant name is required")
	}
	tenant := &models.Tenant{
		ID:        r.deps.NewID(),
		Name:      name,
		IsActive:  true,
		CreatedAt: r.deps.Now(),
	}
	err := r.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateTenant(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[ACCOUNT] tenant %s onboarded", tenant.ID)
	return tenant, nil
}

// DeactivateTenant soft-deactivates a tenant; its rows are kept.
func (r *AccountRegistry) DeactivateTenant(ctx context.Context, tenantID string) error {
	err := r.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeactivateTenant(ctx, tenantID, r.deps.Now())
	})
	if err != nil {
		return notFound(err, apperrors.KindNotFound, "tenant", tenantID)
	}
	log.Printf("[ACCOUNT] tenant %s deactivated", tenantID)
	return nil
}

func (r *AccountRegistry) CreateLedger(ctx context.Context, in CreateLedgerInput) (*models.Ledger, error) {
	tenantID, err := ScopeTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	ledgerType, err := parseAccountType(in.Type)
	if err != nil {
		return nil, err
	}
	if err := r.validate(&in); err != nil {
		return nil, err
	}

	ledger := &models.Ledger{
		ID:        r.deps.NewID(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(in.Name),
		Type:      ledgerType,
		CreatedAt: r.deps.Now(),
	}
	err = r.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		if err := requireActiveTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		return tx.CreateLedger(ctx, ledger)
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (r *AccountRegistry) ListLedgers(ctx context.Context, tenantID string) ([]models.Ledger, error) {
	tenantID, err := ScopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.deps.Store.ListLedgers(ctx, tenantID)
}

// CreateAccount opens an account with a zero balance. The account type must
// match the type of its ledger.
func (r *AccountRegistry) CreateAccount(ctx context.Context, in CreateAccountInput) (*models.Account, error) {
	tenantID, err := ScopeTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	accountType, err := parseAccountType(in.Type)
	if err != nil {
		return nil, err
	}
	if err := r.validate(&in); err != nil {
		return nil, err
	}

	now := r.deps.Now()
	account := &models.Account{
		ID:          r.deps.NewID(),
		TenantID:    tenantID,
		LedgerID:    in.LedgerID,
		Name:        strings.TrimSpace(in.Name),
		Code:        strings.TrimSpace(in.Code),
		Type:        accountType,
		Subtype:     strings.TrimSpace(in.Subtype),
		Description: in.Description,
		IsActive:    true,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		if err := requireActiveTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		ledger, err := tx.GetLedger(ctx, in.LedgerID)
		if err != nil {
			return notFound(err, apperrors.KindLedgerNotFound, "ledger", in.LedgerID)
		}
		if ledger.TenantID != tenantID {
			return apperrors.New(apperrors.KindLedgerNotFound, "ledger %s not found", in.LedgerID)
		}
		if ledger.Type != accountType {
			return apperrors.New(apperrors.KindInvalidAccountType,
				"account type %s does not match ledger %s of type %s", accountType, ledger.Name, ledger.Type)
		}

		if err := tx.CreateAccount(ctx, account); err != nil {
			if errors.Is(err, store.ErrDuplicateAccountCode) {
				return apperrors.New(apperrors.KindDuplicateCode, "account code %s already exists", account.Code)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.deps.Audit.LogAccount(audit.EventAccountCreated, account)
	r.deps.afterCommit(ctx, tenantID, nil)
	return account, nil
}

// lockOwned loads an account for update and applies the tenant guard.
func lockOwned(ctx context.Context, tx store.Tx, tenantID, id string) (*models.Account, error) {
	account, err := tx.LockAccount(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.KindNotFound, "account", id)
	}
	if err := AuthorizeTenant(tenantID, account.TenantID, "account", id); err != nil {
		return nil, err
	}
	return account, nil
}

func ensureNoEntries(ctx context.Context, tx store.Tx, account *models.Account) error {
	n, err := tx.CountAccountEntries(ctx, account.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.New(apperrors.KindHasTransactions,
			"account %s has %d entries and cannot be deactivated", account.Code, n)
	}
	return nil
}

// UpdateAccount applies a patch. Code and type are immutable; deactivating
// through a patch follows the same rule as DeactivateAccount.
func (r *AccountRegistry) UpdateAccount(ctx context.Context, id string, patch UpdateAccountInput) (*models.Account, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if err := r.validate(&patch); err != nil {
		return nil, err
	}

	var updated *models.Account
	err = r.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		account, err := lockOwned(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}

		if patch.Code != nil && strings.TrimSpace(*patch.Code) != account.Code {
			return apperrors.New(apperrors.KindCodeImmutable, "account code %s cannot be changed", account.Code)
		}
		if patch.Type != nil && models.AccountType(strings.ToLower(strings.TrimSpace(*patch.Type))) != account.Type {
			return apperrors.New(apperrors.KindTypeImmutable, "account type %s cannot be changed", account.Type)
		}

		if patch.Name != nil {
			account.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			account.Description = *patch.Description
		}
		if patch.Metadata != nil {
			account.Metadata = patch.Metadata
		}
		if patch.IsActive != nil && *patch.IsActive != account.IsActive {
			if !*patch.IsActive {
				if err := ensureNoEntries(ctx, tx, account); err != nil {
					return err
				}
			}
			account.IsActive = *patch.IsActive
		}
		account.UpdatedAt = r.deps.Now()

		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.deps.Audit.LogAccount(audit.EventAccountUpdated, updated)
	r.deps.afterCommit(ctx, tenantID, nil)
	return updated, nil
}

// DeactivateAccount marks an account inactive. The row is never deleted, and
// an account referenced by any entry stays active.
func (r *AccountRegistry) DeactivateAccount(ctx context.Context, id string) (*models.Account, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	var deactivated *models.Account
	err = r.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		account, err := lockOwned(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := ensureNoEntries(ctx, tx, account); err != nil {
			return err
		}
		deactivated = account
		if !account.IsActive {
			return nil
		}
		account.IsActive = false
		account.UpdatedAt = r.deps.Now()
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	r.deps.Audit.LogAccount(audit.EventAccountDeactivated, deactivated)
	r.deps.afterCommit(ctx, tenantID, nil)
	return deactivated, nil
}

func (r *AccountRegistry) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	account, err := r.deps.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.KindNotFound, "account", id)
	}
	if err := AuthorizeTenant(tenantID, account.TenantID, "account", id); err != nil {
		return nil, err
	}
	return account, nil
}

// ListAccounts filters the caller's accounts; Search matches the name
// case-insensitively.
func (r *AccountRegistry) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	tenantID, err := ScopeTenant(ctx, filter.TenantID)
	if err != nil {
		return nil, err
	}
	filter.TenantID = tenantID
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperrors.New(apperrors.KindInvalidAccountType, "unknown account type %q", *filter.Type)
	}
	return r.deps.Store.ListAccounts(ctx, filter)
}
