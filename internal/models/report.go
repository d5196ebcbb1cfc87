package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountTotals is the debit and credit sum of one account's entries.
type AccountTotals struct {
	AccountID string          `json:"accountId"`
	Debits    decimal.Decimal `json:"debits"`
	Credits   decimal.Decimal `json:"credits"`
}

// EntryFilter selects entries by tenant, account and effective instant.
// From and Until are inclusive, Before is exclusive.
type EntryFilter struct {
	TenantID  string
	AccountID string
	From      *time.Time
	Until     *time.Time
	Before    *time.Time
}

type BalanceSnapshot struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
	Change  decimal.Decimal `json:"change"`
}

// TransactionImbalance reports a transaction whose legs do not net out or
// do not add up to its amount.
type TransactionImbalance struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Debits        decimal.Decimal `json:"debits"`
	Credits       decimal.Decimal `json:"credits"`
}

type TrialBalanceLine struct {
	AccountID       string          `json:"accountId"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Type            AccountType     `json:"type"`
	DebitMovements  decimal.Decimal `json:"debitMovements"`
	CreditMovements decimal.Decimal `json:"creditMovements"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
}

type TrialBalance struct {
	StartDate    time.Time          `json:"startDate"`
	EndDate      time.Time          `json:"endDate"`
	Currency     string             `json:"currency"`
	Accounts     []TrialBalanceLine `json:"accounts"`
	TotalDebits  decimal.Decimal    `json:"totalDebits"`
	TotalCredits decimal.Decimal    `json:"totalCredits"`
	IsBalanced   bool               `json:"isBalanced"`
}

type ReportLine struct {
	AccountID string          `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Subtype   string          `json:"subtype,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

type ReportSection struct {
	Accounts []ReportLine    `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

// Add appends a line and keeps the section total current.
func (s *ReportSection) Add(line ReportLine) {
	s.Accounts = append(s.Accounts, line)
	s.Total = s.Total.Add(line.Amount)
}

type BalanceSheetGroup struct {
	Current    ReportSection   `json:"current"`
	NonCurrent ReportSection   `json:"nonCurrent"`
	Total      decimal.Decimal `json:"total"`
}

type EquityGroup struct {
	Accounts         ReportSection   `json:"accounts"`
	RetainedEarnings decimal.Decimal `json:"retainedEarnings"`
	Total            decimal.Decimal `json:"total"`
}

type BalanceSheet struct {
	AsOf        time.Time         `json:"asOf"`
	Currency    string            `json:"currency"`
	Assets      BalanceSheetGroup `json:"assets"`
	Liabilities BalanceSheetGroup `json:"liabilities"`
	Equity      EquityGroup       `json:"equity"`
	Difference  decimal.Decimal   `json:"difference"`
	IsBalanced  bool              `json:"isBalanced"`
}

type IncomeStatementGroup struct {
	Operating    ReportSection   `json:"operating"`
	NonOperating ReportSection   `json:"nonOperating"`
	Total        decimal.Decimal `json:"total"`
}

type IncomeStatement struct {
	StartDate       time.Time            `json:"startDate"`
	EndDate         time.Time            `json:"endDate"`
	Currency        string               `json:"currency"`
	Revenue         IncomeStatementGroup `json:"revenue"`
	Expenses        IncomeStatementGroup `json:"expenses"`
	OperatingProfit decimal.Decimal      `json:"operatingProfit"`
	NetProfit       decimal.Decimal      `json:"netProfit"`
}
