package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeTransfer TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeExpense, TransactionTypeIncome, TransactionTypeTransfer:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusProcessed TransactionStatus = "processed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Opposite swaps debit and credit.
func (e EntryType) Opposite() EntryType {
	if e == EntryTypeDebit {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

// Transaction is a business event that expands into balanced entries.
type Transaction struct {
	ID                string            `json:"id" db:"id"`
	TenantID          string            `json:"tenantId" db:"tenant_id"`
	Type              TransactionType   `json:"type" db:"type"`
	Amount            decimal.Decimal   `json:"amount" db:"amount"`
	Currency          string            `json:"currency" db:"currency"`
	Description       string            `json:"description" db:"description"`
	Date              time.Time         `json:"date" db:"date"`
	Status            TransactionStatus `json:"status" db:"status"`
	IdempotencyKey    string            `json:"idempotencyKey" db:"idempotency_key"`
	Fingerprint       string            `json:"-" db:"fingerprint"`
	CategoryID        string            `json:"categoryId,omitempty" db:"category_id"`
	FromAccountID     string            `json:"fromAccountId,omitempty" db:"from_account_id"`
	ToAccountID       string            `json:"toAccountId,omitempty" db:"to_account_id"`
	InstallmentNumber int               `json:"installmentNumber,omitempty" db:"installment_number"`
	InstallmentCount  int               `json:"installmentCount,omitempty" db:"installment_count"`
	InstallmentGroup  string            `json:"installmentGroup,omitempty" db:"installment_group"`
	ReversalOf        string            `json:"reversalOf,omitempty" db:"reversal_of"`
	ReversedBy        string            `json:"reversedBy,omitempty" db:"reversed_by"`
	ReversedAt        *time.Time        `json:"reversedAt,omitempty" db:"reversed_at"`
	Tags              []string          `json:"tags" db:"tags"`
	Metadata          Metadata          `json:"metadata,omitempty" db:"metadata"`
	Entries           []Entry           `json:"entries"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time         `json:"updatedAt" db:"updated_at"`
}

// IsReversal reports whether this transaction compensates another one.
func (t *Transaction) IsReversal() bool {
	return t.ReversalOf != ""
}

// Entry is one immutable debit or credit line.
type Entry struct {
	ID            int64           `json:"id" db:"id"`
	TenantID      string          `json:"tenantId" db:"tenant_id"`
	TransactionID string          `json:"transactionId" db:"transaction_id"`
	AccountID     string          `json:"accountId" db:"account_id"`
	Type          EntryType       `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Description   string          `json:"description" db:"description"`
	EffectiveAt   time.Time       `json:"date" db:"effective_at"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// TransactionFilter drives the paginated transaction listing.
type TransactionFilter struct {
	TenantID  string
	Type      *TransactionType
	Status    *TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Page      int
	Limit     int
}

// TransactionSummary aggregates the filtered set. Reversed originals and
// reversal transactions are left out of the income and expense totals.
type TransactionSummary struct {
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	TotalExpense     decimal.Decimal `json:"totalExpense"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	TransactionCount int             `json:"transactionCount"`
}

type TransactionPage struct {
	Transactions []Transaction       `json:"transactions"`
	Summary      TransactionSummary `json:"summary"`
	Page         int                `json:"page"`
	Limit        int                `json:"limit"`
	Total        int                `json:"total"`
}
