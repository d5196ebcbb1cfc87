package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

const (
	reportTrialBalance    = "trial-balance"
	reportBalanceSheet    = "balance-sheet"
	reportIncomeStatement = "income-statement"
)

// Subtype phrases are matched as whole words, so "mortgage_payable" names a
// mortgage and not a current payable. A plural last word also matches.
var nonCurrentSubtypes = []string{
	"non_current", "noncurrent", "long_term", "fixed", "mortgage",
}

// Subtypes that place an account in the current bucket of the balance sheet.
var currentSubtypes = []string{
	"current", "cash", "bank", "checking", "savings", "receivable", "inventory",
	"prepaid", "payable", "credit_card", "accrued", "short_term",
}

// Subtypes that place revenue or expense outside operating results.
var nonOperatingSubtypes = []string{
	"non_operating", "other_income", "other_expense", "interest", "financial",
}

func subtypeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.' || r == '/'
	})
}

func hasPhrase(words []string, phrase string) bool {
	want := strings.Split(phrase, "_")
	for i := 0; i+len(want) <= len(words); i++ {
		match := true
		for j, w := range want {
			if got := words[i+j]; got != w && got != w+"s" {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func hasAnyPhrase(words []string, phrases []string) bool {
	for _, p := range phrases {
		if hasPhrase(words, p) {
			return true
		}
	}
	return false
}

// IsCurrentSubtype reports whether an asset or liability subtype is current.
// Long-term markers win over current ones wherever they appear.
func IsCurrentSubtype(subtype string) bool {
	words := subtypeWords(subtype)
	if hasAnyPhrase(words, nonCurrentSubtypes) {
		return false
	}
	return hasAnyPhrase(words, currentSubtypes)
}

func IsNonOperatingSubtype(subtype string) bool {
	return hasAnyPhrase(subtypeWords(subtype), nonOperatingSubtypes)
}

// ReportGenerator aggregates the entry log into accounting reports. Output
// depends only on the stored entries and the requested period.
type ReportGenerator struct {
	deps Deps
}

func NewReportGenerator(deps Deps) *ReportGenerator {
	return &ReportGenerator{deps: deps.withDefaults()}
}

type accountTotals map[string]models.AccountTotals

func (g *ReportGenerator) totals(ctx context.Context, filter models.EntryFilter) (accountTotals, error) {
	rows, err := g.deps.Store.SumEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make(accountTotals, len(rows))
	for _, r := range rows {
		out[r.AccountID] = r
	}
	return out, nil
}

func (t accountTotals) of(accountID string) (debits, credits decimal.Decimal) {
	if row, ok := t[accountID]; ok {
		return row.Debits, row.Credits
	}
	return decimal.Zero, decimal.Zero
}

func (g *ReportGenerator) accounts(ctx context.Context, tenantID string) ([]models.Account, error) {
	accounts, err := g.deps.Store.ListAccounts(ctx, models.AccountFilter{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].Code != accounts[j].Code {
			return accounts[i].Code < accounts[j].Code
		}
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

func periodParams(start, end time.Time) string {
	return start.UTC().Format(time.RFC3339Nano) + "|" + end.UTC().Format(time.RFC3339Nano)
}

func (g *ReportGenerator) alarm(tenantID, source, detail string) {
	log.Printf("[REPORT] integrity violation for tenant %s (%s): %s", tenantID, source, detail)
	metrics.IntegrityAlarmsTotal.WithLabelValues(source).Inc()
	g.deps.Audit.LogIntegrityAlarm(tenantID, source, detail)
}

// TrialBalance lists debit and credit movements within [start, end] and the
// balance at end for every account of the tenant. Unequal total movements
// mean the ledger is corrupt; no report is returned then.
func (g *ReportGenerator) TrialBalance(ctx context.Context, tenantID string, start, end time.Time) (*models.TrialBalance, error) {
	tenantID, err := ScopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, apperrors.New(apperrors.KindValidation, "startDate must not be after endDate")
	}

	params := periodParams(start, end)
	var cached models.TrialBalance
	cacheKey, hit := g.deps.Cache.Get(ctx, tenantID, reportTrialBalance, params, &cached)
	if hit {
		return &cached, nil
	}

	accounts, err := g.accounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	movements, err := g.totals(ctx, models.EntryFilter{TenantID: tenantID, From: &start, Until: &end})
	if err != nil {
		return nil, err
	}
	closing, err := g.totals(ctx, models.EntryFilter{TenantID: tenantID, Until: &end})
	if err != nil {
		return nil, err
	}

	report := &models.TrialBalance{
		StartDate:    start,
		EndDate:      end,
		Currency:     g.deps.Currency,
		Accounts:     make([]models.TrialBalanceLine, 0, len(accounts)),
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}
	for _, a := range accounts {
		debits, credits := movements.of(a.ID)
		cd, cc := closing.of(a.ID)
		report.Accounts = append(report.Accounts, models.TrialBalanceLine{
			AccountID:       a.ID,
			Code:            a.Code,
			Name:            a.Name,
			Type:            a.Type,
			DebitMovements:  debits,
			CreditMovements: credits,
			CurrentBalance:  SignedBalance(a.Type, cd, cc),
		})
		report.TotalDebits = report.TotalDebits.Add(debits)
		report.TotalCredits = report.TotalCredits.Add(credits)
	}
	report.IsBalanced = report.TotalDebits.Equal(report.TotalCredits)

	if !report.IsBalanced {
		detail := fmt.Sprintf("debits %s credits %s between %s and %s",
			report.TotalDebits, report.TotalCredits, start.Format(time.RFC3339), end.Format(time.RFC3339))
		g.alarm(tenantID, reportTrialBalance, detail)
		return nil, apperrors.New(apperrors.KindIntegrity, "ledger is inconsistent: %s", detail)
	}

	g.deps.Cache.Set(ctx, cacheKey, report)
	return report, nil
}

func newSection() models.ReportSection {
	return models.ReportSection{Accounts: []models.ReportLine{}, Total: decimal.Zero}
}

func reportLine(a models.Account, amount decimal.Decimal) models.ReportLine {
	return models.ReportLine{AccountID: a.ID, Code: a.Code, Name: a.Name, Subtype: a.Subtype, Amount: amount}
}

// BalanceSheet reports asset, liability and equity balances as of asOf.
// Revenue minus expense to date is shown as retained earnings inside equity.
func (g *ReportGenerator) BalanceSheet(ctx context.Context, tenantID string, asOf time.Time) (*models.BalanceSheet, error) {
	tenantID, err := ScopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	params := asOf.UTC().Format(time.RFC3339Nano)
	var cached models.BalanceSheet
	cacheKey, hit := g.deps.Cache.Get(ctx, tenantID, reportBalanceSheet, params, &cached)
	if hit {
		return &cached, nil
	}

	accounts, err := g.accounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	closing, err := g.totals(ctx, models.EntryFilter{TenantID: tenantID, Until: &asOf})
	if err != nil {
		return nil, err
	}

	sheet := &models.BalanceSheet{
		AsOf:        asOf,
		Currency:    g.deps.Currency,
		Assets:      models.BalanceSheetGroup{Current: newSection(), NonCurrent: newSection()},
		Liabilities: models.BalanceSheetGroup{Current: newSection(), NonCurrent: newSection()},
		Equity:      models.EquityGroup{Accounts: newSection(), RetainedEarnings: decimal.Zero},
	}
	revenue, expense := decimal.Zero, decimal.Zero

	for _, a := range accounts {
		debits, credits := closing.of(a.ID)
		balance := SignedBalance(a.Type, debits, credits)
		switch a.Type {
		case models.AccountTypeAsset:
			addToGroup(&sheet.Assets, a, balance)
		case models.AccountTypeLiability:
			addToGroup(&sheet.Liabilities, a, balance)
		case models.AccountTypeEquity:
			sheet.Equity.Accounts.Add(reportLine(a, balance))
		case models.AccountTypeRevenue:
			revenue = revenue.Add(balance)
		case models.AccountTypeExpense:
			expense = expense.Add(balance)
		}
	}

	sheet.Assets.Total = sheet.Assets.Current.Total.Add(sheet.Assets.NonCurrent.Total)
	sheet.Liabilities.Total = sheet.Liabilities.Current.Total.Add(sheet.Liabilities.NonCurrent.Total)
	sheet.Equity.RetainedEarnings = revenue.Sub(expense)
	sheet.Equity.Total = sheet.Equity.Accounts.Total.Add(sheet.Equity.RetainedEarnings)
	sheet.Difference = sheet.Assets.Total.Sub(sheet.Liabilities.Total.Add(sheet.Equity.Total))
	sheet.IsBalanced = sheet.Difference.Abs().LessThan(g.deps.BalanceTolerance)

	if !sheet.IsBalanced {
		g.alarm(tenantID, reportBalanceSheet, fmt.Sprintf("assets minus liabilities and equity is %s as of %s",
			sheet.Difference, asOf.Format(time.RFC3339)))
	}

	g.deps.Cache.Set(ctx, cacheKey, sheet)
	return sheet, nil
}

func addToGroup(group *models.BalanceSheetGroup, a models.Account, balance decimal.Decimal) {
	if IsCurrentSubtype(a.Subtype) {
		group.Current.Add(reportLine(a, balance))
		return
	}
	group.NonCurrent.Add(reportLine(a, balance))
}

// IncomeStatement aggregates revenue and expense movements within
// [start, end].
func (g *ReportGenerator) IncomeStatement(ctx context.Context, tenantID string, start, end time.Time) (*models.IncomeStatement, error) {
	tenantID, err := ScopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, apperrors.New(apperrors.KindValidation, "startDate must not be after endDate")
	}

	params := periodParams(start, end)
	var cached models.IncomeStatement
	cacheKey, hit := g.deps.Cache.Get(ctx, tenantID, reportIncomeStatement, params, &cached)
	if hit {
		return &cached, nil
	}

	accounts, err := g.accounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	movements, err := g.totals(ctx, models.EntryFilter{TenantID: tenantID, From: &start, Until: &end})
	if err != nil {
		return nil, err
	}

	statement := &models.IncomeStatement{
		StartDate: start,
		EndDate:   end,
		Currency:  g.deps.Currency,
		Revenue:   models.IncomeStatementGroup{Operating: newSection(), NonOperating: newSection()},
		Expenses:  models.IncomeStatementGroup{Operating: newSection(), NonOperating: newSection()},
	}
	for _, a := range accounts {
		var group *models.IncomeStatementGroup
		switch a.Type {
		case models.AccountTypeRevenue:
			group = &statement.Revenue
		case models.AccountTypeExpense:
			group = &statement.Expenses
		default:
			continue
		}
		debits, credits := movements.of(a.ID)
		line := reportLine(a, SignedBalance(a.Type, debits, credits))
		if IsNonOperatingSubtype(a.Subtype) {
			group.NonOperating.Add(line)
		} else {
			group.Operating.Add(line)
		}
	}

	statement.Revenue.Total = statement.Revenue.Operating.Total.Add(statement.Revenue.NonOperating.Total)
	statement.Expenses.Total = statement.Expenses.Operating.Total.Add(statement.Expenses.NonOperating.Total)
	statement.OperatingProfit = statement.Revenue.Operating.Total.Sub(statement.Expenses.Operating.Total)
	statement.NetProfit = statement.Revenue.Total.Sub(statement.Expenses.Total)

	g.deps.Cache.Set(ctx, cacheKey, statement)
	return statement, nil
}

// VerifyIntegrity checks every transaction of the tenant. Findings raise an
// integrity alarm and are returned together with an IntegrityViolation.
func (g *ReportGenerator) VerifyIntegrity(ctx context.Context, tenantID string) ([]models.TransactionImbalance, error) {
	tenantID, err := ScopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	findings, err := g.deps.Store.UnbalancedTransactions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(findings) == 0 {
		return findings, nil
	}
	for _, f := range findings {
		g.alarm(tenantID, "verify", fmt.Sprintf("transaction %s amount %s debits %s credits %s",
			f.TransactionID, f.Amount, f.Debits, f.Credits))
	}
	return findings, apperrors.New(apperrors.KindIntegrity, "%d unbalanced transactions found", len(findings))
}
