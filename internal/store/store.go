// Package store defines the persistence contract of the ledger: the Account
// Registry rows and the append-only Entry Store. Implementations must give
// WithinTx all-or-nothing semantics and enforce uniqueness of
// (tenant_id, idempotency_key) and (tenant_id, account code).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateIdempotencyKey is returned when (tenant, idempotency key) already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateAccountCode is returned when (tenant, code) already exists.
	ErrDuplicateAccountCode = errors.New("duplicate account code")
)

// Reader is the read side shared by the store and by open units of work.
// Lookups by ID do not filter on tenant; the caller applies the tenant guard.
type Reader interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetLedger(ctx context.Context, id string) (*models.Ledger, error)
	ListLedgers(ctx context.Context, tenantID string) ([]models.Ledger, error)

	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
	CountAccountEntries(ctx context.Context, accountID string) (int64, error)

	// GetTransaction returns the transaction with its entries.
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Transaction, error)
	// ListInstallmentGroup returns the installments booked under one client
	// idempotency key, ordered by installment number.
	ListInstallmentGroup(ctx context.Context, tenantID, group string) ([]models.Transaction, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error)

	// SumEntries returns per-account debit and credit totals, ordered by account ID.
	SumEntries(ctx context.Context, filter models.EntryFilter) ([]models.AccountTotals, error)
	// ListEntries returns entries ordered by effective instant, then ID.
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.Entry, error)
	// UnbalancedTransactions returns every transaction of the tenant whose
	// debit and credit sums differ.
	UnbalancedTransactions(ctx context.Context, tenantID string) ([]models.TransactionImbalance, error)
}

// Tx is a single atomic unit of work.
type Tx interface {
	Reader

	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	DeactivateTenant(ctx context.Context, id string, at time.Time) error
	CreateLedger(ctx context.Context, ledger *models.Ledger) error

	// LockAccount reads the account and holds it exclusively until commit.
	LockAccount(ctx context.Context, id string) (*models.Account, error)
	// ShareAccount reads the account and blocks concurrent LockAccount until commit.
	ShareAccount(ctx context.Context, id string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, account *models.Account) error

	// LockTransaction reads the transaction with its entries and holds the row until commit.
	LockTransaction(ctx context.Context, id string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	// InsertEntries appends entries and assigns their IDs.
	InsertEntries(ctx context.Context, entries []models.Entry) error
	// UpdateTransactionDetails writes description, tags and metadata only.
	UpdateTransactionDetails(ctx context.Context, tx *models.Transaction) error
	MarkTransactionReversed(ctx context.Context, id, reversedBy string, at time.Time) error
}

// Store is the entry point to persistence.
type Store interface {
	Reader

	// WithinTx runs fn in one unit of work. Any error from fn rolls back
	// everything fn wrote.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
