package services

import (
	"context"
	"time"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

type Balance struct {
	AccountID   string          `json:"accountId"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type BalanceHistory struct {
	Balance
	OpeningBalance decimal.Decimal          `json:"openingBalance"`
	History        []models.BalanceSnapshot `json:"history"`
}

// BalanceCalculator derives balances from the entry log. It never looks at
// an account's isActive flag.
type BalanceCalculator struct {
	deps Deps
}

func NewBalanceCalculator(deps Deps) *BalanceCalculator {
	return &BalanceCalculator{deps: deps.withDefaults()}
}

// SignedBalance applies the sign convention of the account type: debits
// increase asset and expense accounts, credits increase the others.
func SignedBalance(t models.AccountType, debits, credits decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debits.Sub(credits)
	}
	return credits.Sub(debits)
}

func signedChange(t models.AccountType, e models.Entry) decimal.Decimal {
	if e.Type == models.EntryTypeDebit {
		return SignedBalance(t, e.Amount, decimal.Zero)
	}
	return SignedBalance(t, decimal.Zero, e.Amount)
}

func (c *BalanceCalculator) account(ctx context.Context, id string) (*models.Account, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	account, err := c.deps.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.KindNotFound, "account", id)
	}
	if err := AuthorizeTenant(tenantID, account.TenantID, "account", id); err != nil {
		return nil, err
	}
	return account, nil
}

func (c *BalanceCalculator) sum(ctx context.Context, account *models.Account, filter models.EntryFilter) (decimal.Decimal, error) {
	filter.TenantID = account.TenantID
	filter.AccountID = account.ID
	totals, err := c.deps.Store.SumEntries(ctx, filter)
	if err != nil {
		return decimal.Zero, err
	}
	for _, t := range totals {
		if t.AccountID == account.ID {
			return SignedBalance(account.Type, t.Debits, t.Credits), nil
		}
	}
	return decimal.Zero, nil
}

// GetBalance sums the account's entries effective at or before asOf
// (default now).
func (c *BalanceCalculator) GetBalance(ctx context.Context, accountID string, asOf *time.Time) (*Balance, error) {
	account, err := c.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	at := c.deps.Now()
	if asOf != nil {
		at = *asOf
	}

	balance, err := c.sum(ctx, account, models.EntryFilter{Until: &at})
	if err != nil {
		return nil, err
	}
	return &Balance{
		AccountID:   account.ID,
		Balance:     balance,
		Currency:    c.deps.Currency,
		LastUpdated: at,
	}, nil
}

// GetBalanceHistory returns one snapshot per distinct effective instant in
// [start, end]. Entries sharing an instant collapse into one snapshot, so
// GetBalance at a snapshot's date always equals its balance.
func (c *BalanceCalculator) GetBalanceHistory(ctx context.Context, accountID string, start, end time.Time) (*BalanceHistory, error) {
	if start.After(end) {
		return nil, apperrors.New(apperrors.KindValidation, "startDate must not be after endDate")
	}
	account, err := c.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	opening, err := c.sum(ctx, account, models.EntryFilter{Before: &start})
	if err != nil {
		return nil, err
	}
	entries, err := c.deps.Store.ListEntries(ctx, models.EntryFilter{
		TenantID:  account.TenantID,
		AccountID: account.ID,
		From:      &start,
		Until:     &end,
	})
	if err != nil {
		return nil, err
	}

	history := []models.BalanceSnapshot{}
	running := opening
	for _, e := range entries {
		change := signedChange(account.Type, e)
		running = running.Add(change)
		if n := len(history); n > 0 && history[n-1].Date.Equal(e.EffectiveAt) {
			history[n-1].Balance = running
			history[n-1].Change = history[n-1].Change.Add(change)
			continue
		}
		history = append(history, models.BalanceSnapshot{Date: e.EffectiveAt, Balance: running, Change: change})
	}

	return &BalanceHistory{
		Balance: Balance{
			AccountID:   account.ID,
			Balance:     running,
			Currency:    c.deps.Currency,
			LastUpdated: end,
		},
		OpeningBalance: opening,
		History:        history,
	}, nil
}
