package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/ruralpay/ledger/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// ledgerFixture is one onboarded tenant with a small chart of accounts,
// keyed by account code.
type ledgerFixture struct {
	ctx       context.Context
	store     *memory.Store
	deps      Deps
	auditBuf  *bytes.Buffer
	tenant    *models.Tenant
	ledgers   map[models.AccountType]*models.Ledger
	accounts  map[string]*models.Account
	registry  *AccountRegistry
	processor *TransactionProcessor
	reversals *ReversalManager
	balances  *BalanceCalculator
	reports   *ReportGenerator
}

var chart = []struct {
	code    string
	name    string
	typ     models.AccountType
	subtype string
}{
	{"1.01", "Checking", models.AccountTypeAsset, "checking"},
	{"1.02", "Savings", models.AccountTypeAsset, "savings"},
	{"1.10", "Vehicle", models.AccountTypeAsset, "fixed_asset"},
	{"2.01", "Credit Card", models.AccountTypeLiability, "credit_card"},
	{"2.10", "Mortgage", models.AccountTypeLiability, "long_term_debt"},
	{"3.01", "Opening Capital", models.AccountTypeEquity, ""},
	{"4.01", "Salary", models.AccountTypeRevenue, "salary"},
	{"4.02", "Interest Income", models.AccountTypeRevenue, "interest"},
	{"5.01", "Food", models.AccountTypeExpense, "groceries"},
	{"5.02", "Bank Fees", models.AccountTypeExpense, "financial"},
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	return newLedgerFixtureWith(t, memory.New(), nil)
}

func newLedgerFixtureWith(t *testing.T, st *memory.Store, wrap func(store.Store) store.Store) *ledgerFixture {
	t.Helper()

	var s store.Store = st
	if wrap != nil {
		s = wrap(st)
	}
	buf := &bytes.Buffer{}
	deps := Deps{
		Store: s,
		Audit: audit.NewAuditLoggerTo(buf),
		Now:   func() time.Time { return fixedNow },
	}

	f := &ledgerFixture{
		store:     st,
		deps:      deps,
		auditBuf:  buf,
		ledgers:   make(map[models.AccountType]*models.Ledger),
		accounts:  make(map[string]*models.Account),
		registry:  NewAccountRegistry(deps),
		processor: NewTransactionProcessor(deps),
		reversals: NewReversalManager(deps),
		balances:  NewBalanceCalculator(deps),
		reports:   NewReportGenerator(deps),
	}

	tenant, err := f.registry.CreateTenant(context.Background(), "Acme Household")
	require.NoError(t, err)
	f.tenant = tenant
	f.ctx = WithCaller(context.Background(), Caller{TenantID: tenant.ID, Subject: "user-1"})

	for _, typ := range models.AccountTypes {
		ledger, err := f.registry.CreateLedger(f.ctx, CreateLedgerInput{Name: string(typ) + "s", Type: string(typ)})
		require.NoError(t, err)
		f.ledgers[typ] = ledger
	}
	for _, c := range chart {
		account, err := f.registry.CreateAccount(f.ctx, CreateAccountInput{
			LedgerID: f.ledgers[c.typ].ID,
			Name:     c.name,
			Code:     c.code,
			Type:     string(c.typ),
			Subtype:  c.subtype,
		})
		require.NoError(t, err)
		f.accounts[c.code] = account
	}
	return f
}

func (f *ledgerFixture) id(code string) string {
	return f.accounts[code].ID
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *ledgerFixture) expense(t *testing.T, key, amt, category, from string, date time.Time) *models.Transaction {
	t.Helper()
	res, err := f.processor.Create(f.ctx, CreateTransactionInput{
		Type: "expense", Amount: dec(amt), Description: "expense " + key,
		CategoryID: f.id(category), FromAccountID: f.id(from), Date: date, IdempotencyKey: key,
	})
	require.NoError(t, err)
	return res.Legs[0].Transaction
}

func (f *ledgerFixture) income(t *testing.T, key, amt, category, to string, date time.Time) *models.Transaction {
	t.Helper()
	res, err := f.processor.Create(f.ctx, CreateTransactionInput{
		Type: "income", Amount: dec(amt), Description: "income " + key,
		CategoryID: f.id(category), ToAccountID: f.id(to), Date: date, IdempotencyKey: key,
	})
	require.NoError(t, err)
	return res.Legs[0].Transaction
}

func (f *ledgerFixture) transfer(t *testing.T, key, amt, from, to string, date time.Time) *models.Transaction {
	t.Helper()
	res, err := f.processor.Create(f.ctx, CreateTransactionInput{
		Type: "transfer", Amount: dec(amt), Description: "transfer " + key,
		FromAccountID: f.id(from), ToAccountID: f.id(to), Date: date, IdempotencyKey: key,
	})
	require.NoError(t, err)
	return res.Legs[0].Transaction
}

func (f *ledgerFixture) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	b, err := f.balances.GetBalance(f.ctx, f.id(code), nil)
	require.NoError(t, err)
	return b.Balance
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperrors.KindOf(err), err.Error())
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// assertBalanced checks that a transaction's entries net out to its amount.
func assertBalanced(t *testing.T, tx *models.Transaction) {
	t.Helper()
	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range tx.Entries {
		if e.Type == models.EntryTypeDebit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	assert.True(t, debits.Equal(credits), "debits %s credits %s", debits, credits)
	assert.True(t, debits.Equal(tx.Amount), "debits %s amount %s", debits, tx.Amount)
}
