package memory

import (
	"context"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// memTx writes to a private copy of the state. Locks are implicit because
// units of work are serialized by the store.
type memTx struct {
	*state
}

func (t *memTx) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	t.tenants[tenant.ID] = *tenant
	return nil
}

func (t *memTx) DeactivateTenant(_ context.Context, id string, at time.Time) error {
	tenant, ok := t.tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	tenant.IsActive = false
	tenant.DeactivatedAt = &at
	t.tenants[id] = tenant
	return nil
}

func (t *memTx) CreateLedger(_ context.Context, ledger *models.Ledger) error {
	t.ledgers[ledger.ID] = *ledger
	return nil
}

func (t *memTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) ShareAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) CreateAccount(_ context.Context, account *models.Account) error {
	for _, a := range t.accounts {
		if a.TenantID == account.TenantID && a.Code == account.Code {
			return store.ErrDuplicateAccountCode
		}
	}
	a := *account
	a.Metadata = a.Metadata.Clone()
	t.accounts[a.ID] = a
	return nil
}

func (t *memTx) UpdateAccount(_ context.Context, account *models.Account) error {
	if _, ok := t.accounts[account.ID]; !ok {
		return store.ErrNotFound
	}
	a := *account
	a.Metadata = a.Metadata.Clone()
	t.accounts[a.ID] = a
	return nil
}

func (t *memTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *memTx) InsertTransaction(_ context.Context, tx *models.Transaction) error {
	idx := idempotencyIndex(tx.TenantID, tx.IdempotencyKey)
	if _, exists := t.idempotency[idx]; exists {
		return store.ErrDuplicateIdempotencyKey
	}
	stored := *tx
	stored.Entries = nil
	stored.Tags = append([]string{}, tx.Tags...)
	stored.Metadata = tx.Metadata.Clone()
	t.transactions[tx.ID] = stored
	t.idempotency[idx] = tx.ID
	return nil
}

func (t *memTx) InsertEntries(_ context.Context, entries []models.Entry) error {
	for i := range entries {
		if _, ok := t.transactions[entries[i].TransactionID]; !ok {
			return store.ErrNotFound
		}
		if _, ok := t.accounts[entries[i].AccountID]; !ok {
			return store.ErrNotFound
		}
		t.nextEntryID++
		entries[i].ID = t.nextEntryID
		t.entries = append(t.entries, entries[i])
	}
	return nil
}

func (t *memTx) UpdateTransactionDetails(_ context.Context, tx *models.Transaction) error {
	stored, ok := t.transactions[tx.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.Description = tx.Description
	stored.Tags = append([]string{}, tx.Tags...)
	stored.Metadata = tx.Metadata.Clone()
	stored.UpdatedAt = tx.UpdatedAt
	t.transactions[tx.ID] = stored
	return nil
}

func (t *memTx) MarkTransactionReversed(_ context.Context, id, reversedBy string, at time.Time) error {
	stored, ok := t.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	stored.Status = models.TransactionStatusReversed
	stored.ReversedBy = reversedBy
	stored.ReversedAt = &at
	stored.UpdatedAt = at
	t.transactions[id] = stored
	return nil
}

var _ store.Tx = (*memTx)(nil)
