package models

import (
	"time"
)

// AccountType is one of the five accounting categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// AccountTypes lists the valid account types in reporting order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance of accounts of this type.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

type Tenant struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	IsActive      bool       `json:"isActive" db:"is_active"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty" db:"deactivated_at"`
}

// Ledger groups the accounts of one type for a tenant.
type Ledger struct {
	ID        string      `json:"id" db:"id"`
	TenantID  string      `json:"tenantId" db:"tenant_id"`
	Name      string      `json:"name" db:"name"`
	Type      AccountType `json:"type" db:"type"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

type Account struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"tenantId" db:"tenant_id"`
	LedgerID    string      `json:"ledgerId" db:"ledger_id"`
	Name        string      `json:"name" db:"name"`
	Code        string      `json:"code" db:"code"`
	Type        AccountType `json:"type" db:"type"`
	Subtype     string      `json:"subtype,omitempty" db:"subtype"`
	Description string      `json:"description,omitempty" db:"description"`
	IsActive    bool        `json:"isActive" db:"is_active"`
	Metadata    Metadata    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

// AccountFilter narrows ListAccounts. Nil fields are ignored.
type AccountFilter struct {
	TenantID string
	Type     *AccountType
	LedgerID string
	Active   *bool
	Search   string
}
