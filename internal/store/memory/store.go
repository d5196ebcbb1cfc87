// Package memory is an in-process implementation of store.Store used by tests
// and local tooling. Units of work run against a copy of the state that
// replaces the live state only when the work succeeds.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

type state struct {
	tenants      map[string]models.Tenant
	ledgers      map[string]models.Ledger
	accounts     map[string]models.Account
	transactions map[string]models.Transaction
	idempotency  map[string]string
	entries      []models.Entry
	nextEntryID  int64
}

func newState() *state {
	return &state{
		tenants:      make(map[string]models.Tenant),
		ledgers:      make(map[string]models.Ledger),
		accounts:     make(map[string]models.Account),
		transactions: make(map[string]models.Transaction),
		idempotency:  make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	// entries are never mutated in place, sharing the backing values is safe
	c.entries = make([]models.Entry, len(s.entries))
	copy(c.entries, s.entries)
	c.nextEntryID = s.nextEntryID
	return c
}

// Store is thread-safe; units of work are serialized.
type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (m *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetTenant(ctx, id)
}

func (m *Store) GetLedger(ctx context.Context, id string) (*models.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetLedger(ctx, id)
}

func (m *Store) ListLedgers(ctx context.Context, tenantID string) ([]models.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListLedgers(ctx, tenantID)
}

func (m *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetAccount(ctx, id)
}

func (m *Store) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListAccounts(ctx, filter)
}

func (m *Store) CountAccountEntries(ctx context.Context, accountID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CountAccountEntries(ctx, accountID)
}

func (m *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetTransaction(ctx, id)
}

func (m *Store) GetTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetTransactionByIdempotencyKey(ctx, tenantID, key)
}

func (m *Store) ListInstallmentGroup(ctx context.Context, tenantID, group string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListInstallmentGroup(ctx, tenantID, group)
}

func (m *Store) ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListTransactions(ctx, filter)
}

func (m *Store) SumEntries(ctx context.Context, filter models.EntryFilter) ([]models.AccountTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.SumEntries(ctx, filter)
}

func (m *Store) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListEntries(ctx, filter)
}

func (m *Store) UnbalancedTransactions(ctx context.Context, tenantID string) ([]models.TransactionImbalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.UnbalancedTransactions(ctx, tenantID)
}

// Reads on state. Callers hold the store lock.

func (s *state) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *state) GetLedger(_ context.Context, id string) (*models.Ledger, error) {
	l, ok := s.ledgers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (s *state) ListLedgers(_ context.Context, tenantID string) ([]models.Ledger, error) {
	ledgers := []models.Ledger{}
	for _, l := range s.ledgers {
		if l.TenantID == tenantID {
			ledgers = append(ledgers, l)
		}
	}
	sort.Slice(ledgers, func(i, j int) bool { return ledgers[i].Name < ledgers[j].Name })
	return ledgers, nil
}

func (s *state) GetAccount(_ context.Context, id string) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	a.Metadata = a.Metadata.Clone()
	return &a, nil
}

func (s *state) ListAccounts(_ context.Context, filter models.AccountFilter) ([]models.Account, error) {
	search := strings.ToLower(filter.Search)
	accounts := []models.Account{}
	for _, a := range s.accounts {
		if a.TenantID != filter.TenantID {
			continue
		}
		if filter.Type != nil && a.Type != *filter.Type {
			continue
		}
		if filter.LedgerID != "" && a.LedgerID != filter.LedgerID {
			continue
		}
		if filter.Active != nil && a.IsActive != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Name), search) {
			continue
		}
		a.Metadata = a.Metadata.Clone()
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}

func (s *state) CountAccountEntries(_ context.Context, accountID string) (int64, error) {
	var n int64
	for _, e := range s.entries {
		if e.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (s *state) transactionWithEntries(t models.Transaction) *models.Transaction {
	t.Tags = append([]string{}, t.Tags...)
	t.Metadata = t.Metadata.Clone()
	t.Entries = []models.Entry{}
	for _, e := range s.entries {
		if e.TransactionID == t.ID {
			t.Entries = append(t.Entries, e)
		}
	}
	return &t
}

func (s *state) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.transactionWithEntries(t), nil
}

func (s *state) GetTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Transaction, error) {
	id, ok := s.idempotency[idempotencyIndex(tenantID, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetTransaction(ctx, id)
}

func (s *state) ListInstallmentGroup(_ context.Context, tenantID, group string) ([]models.Transaction, error) {
	matched := []models.Transaction{}
	for _, t := range s.transactions {
		if t.TenantID == tenantID && t.InstallmentGroup == group {
			matched = append(matched, *s.transactionWithEntries(t))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InstallmentNumber < matched[j].InstallmentNumber
	})
	return matched, nil
}

func (s *state) ListTransactions(_ context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	search := strings.ToLower(filter.Search)
	matched := []models.Transaction{}
	for _, t := range s.transactions {
		if t.TenantID != filter.TenantID {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.StartDate != nil && t.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && t.Date.After(*filter.EndDate) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		if filter.MinAmount != nil && t.Amount.LessThan(*filter.MinAmount) {
			continue
		}
		if filter.MaxAmount != nil && t.Amount.GreaterThan(*filter.MaxAmount) {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	summary := models.TransactionSummary{
		TotalIncome:      decimal.Zero,
		TotalExpense:     decimal.Zero,
		TransactionCount: len(matched),
	}
	for _, t := range matched {
		if t.Status != models.TransactionStatusProcessed || t.IsReversal() {
			continue
		}
		switch t.Type {
		case models.TransactionTypeIncome:
			summary.TotalIncome = summary.TotalIncome.Add(t.Amount)
		case models.TransactionTypeExpense:
			summary.TotalExpense = summary.TotalExpense.Add(t.Amount)
		}
	}
	summary.NetAmount = summary.TotalIncome.Sub(summary.TotalExpense)

	page := &models.TransactionPage{
		Transactions: []models.Transaction{},
		Summary:      summary,
		Page:         filter.Page,
		Limit:        filter.Limit,
		Total:        len(matched),
	}
	start := (filter.Page - 1) * filter.Limit
	if start < 0 {
		start = 0
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	for i := start; i < end; i++ {
		page.Transactions = append(page.Transactions, *s.transactionWithEntries(matched[i]))
	}
	return page, nil
}

func matchEntry(e models.Entry, filter models.EntryFilter) bool {
	if filter.TenantID != "" && e.TenantID != filter.TenantID {
		return false
	}
	if filter.AccountID != "" && e.AccountID != filter.AccountID {
		return false
	}
	if filter.From != nil && e.EffectiveAt.Before(*filter.From) {
		return false
	}
	if filter.Until != nil && e.EffectiveAt.After(*filter.Until) {
		return false
	}
	if filter.Before != nil && !e.EffectiveAt.Before(*filter.Before) {
		return false
	}
	return true
}

func (s *state) SumEntries(_ context.Context, filter models.EntryFilter) ([]models.AccountTotals, error) {
	byAccount := make(map[string]*models.AccountTotals)
	for _, e := range s.entries {
		if !matchEntry(e, filter) {
			continue
		}
		t, ok := byAccount[e.AccountID]
		if !ok {
			t = &models.AccountTotals{AccountID: e.AccountID, Debits: decimal.Zero, Credits: decimal.Zero}
			byAccount[e.AccountID] = t
		}
		if e.Type == models.EntryTypeDebit {
			t.Debits = t.Debits.Add(e.Amount)
		} else {
			t.Credits = t.Credits.Add(e.Amount)
		}
	}

	totals := make([]models.AccountTotals, 0, len(byAccount))
	for _, t := range byAccount {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].AccountID < totals[j].AccountID })
	return totals, nil
}

func (s *state) ListEntries(_ context.Context, filter models.EntryFilter) ([]models.Entry, error) {
	entries := []models.Entry{}
	for _, e := range s.entries {
		if matchEntry(e, filter) {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].EffectiveAt.Equal(entries[j].EffectiveAt) {
			return entries[i].EffectiveAt.Before(entries[j].EffectiveAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (s *state) UnbalancedTransactions(_ context.Context, tenantID string) ([]models.TransactionImbalance, error) {
	sums := make(map[string]*models.TransactionImbalance)
	for id, t := range s.transactions {
		if t.TenantID != tenantID {
			continue
		}
		sums[id] = &models.TransactionImbalance{
			TransactionID: id,
			Amount:        t.Amount,
			Debits:        decimal.Zero,
			Credits:       decimal.Zero,
		}
	}
	for _, e := range s.entries {
		im, ok := sums[e.TransactionID]
		if !ok {
			continue
		}
		if e.Type == models.EntryTypeDebit {
			im.Debits = im.Debits.Add(e.Amount)
		} else {
			im.Credits = im.Credits.Add(e.Amount)
		}
	}

	out := []models.TransactionImbalance{}
	for _, im := range sums {
		if !im.Debits.Equal(im.Credits) || !im.Debits.Equal(im.Amount) {
			out = append(out, *im)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out, nil
}

func idempotencyIndex(tenantID, key string) string {
	return tenantID + "\x00" + key
}

var _ store.Store = (*Store)(nil)
