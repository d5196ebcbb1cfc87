package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

type testAPI struct {
	t        *testing.T
	server   *httptest.Server
	registry *services.AccountRegistry
	tenantID string
	token    string
	accounts map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	deps := services.Deps{
		Store: memory.New(),
		Audit: audit.NewAuditLoggerTo(io.Discard),
	}
	registry := services.NewAccountRegistry(deps)
	balances := services.NewBalanceCalculator(deps)
	accountHandler := NewAccountHandler(registry, balances)
	ledgerHandler := NewLedgerHandler(registry)
	transactionHandler := NewTransactionHandler(services.NewTransactionProcessor(deps), services.NewReversalManager(deps))
	reportHandler := NewReportHandler(services.NewReportGenerator(deps))
	auth := middleware.NewAuthenticator(config.JWTConfig{SecretKey: testSecret}, nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/ledgers", ledgerHandler.ListLedgers)
		r.Post("/ledgers", ledgerHandler.CreateLedger)
		r.Get("/ledger/integrity", reportHandler.VerifyIntegrity)

		r.Post("/accounts", accountHandler.CreateAccount)
		r.Get("/accounts", accountHandler.ListAccounts)
		r.Get("/accounts/{id}", accountHandler.GetAccount)
		r.Put("/accounts/{id}", accountHandler.UpdateAccount)
		r.Delete("/accounts/{id}", accountHandler.DeactivateAccount)
		r.Get("/accounts/{id}/balance", accountHandler.GetBalance)

		r.Post("/transactions", transactionHandler.CreateTransaction)
		r.Get("/transactions", transactionHandler.ListTransactions)
		r.Get("/transactions/{id}", transactionHandler.GetTransaction)
		r.Put("/transactions/{id}", transactionHandler.UpdateTransaction)
		r.Delete("/transactions/{id}", transactionHandler.DeleteTransaction)

		r.Get("/reports/trial-balance", reportHandler.TrialBalance)
		r.Get("/reports/balance-sheet", reportHandler.BalanceSheet)
		r.Get("/reports/income-statement", reportHandler.IncomeStatement)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	api := &testAPI{t: t, server: server, registry: registry, accounts: map[string]string{}}
	api.tenantID, api.token = api.onboard("Acme")
	return api
}

func (a *testAPI) onboard(name string) (tenantID, token string) {
	a.t.Helper()
	tenant, err := a.registry.CreateTenant(context.Background(), name)
	require.NoError(a.t, err)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": tenant.ID,
		"sub":       "user-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(a.t, err)
	return tenant.ID, signed
}

func (a *testAPI) do(method, path string, body any) *http.Response {
	return a.doAs(a.token, method, path, body)
}

func (a *testAPI) doAs(token, method, path string, body any) *http.Response {
	a.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeAs[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		require.Equalf(t, want, resp.StatusCode, "body: %s", raw)
	}
}

// setupChart creates one ledger per type and a small chart of accounts
// through the API.
func (a *testAPI) setupChart() {
	a.t.Helper()
	ledgers := map[string]string{}
	for _, typ := range []string{"asset", "liability", "equity", "revenue", "expense"} {
		resp := a.do(http.MethodPost, "/ledgers", map[string]string{"name": typ, "type": typ})
		requireStatus(a.t, resp, http.StatusCreated)
		ledgers[typ] = decodeAs[models.Ledger](a.t, resp).ID
	}

	for _, acc := range []struct{ code, name, typ, subtype string }{
		{"1.01", "Checking", "asset", "checking"},
		{"3.01", "Opening Capital", "equity", ""},
		{"4.01", "Service Revenue", "revenue", "services"},
		{"5.01", "Office Expenses", "expense", "office"},
	} {
		resp := a.do(http.MethodPost, "/accounts", map[string]string{
			"ledgerId": ledgers[acc.typ], "name": acc.name, "code": acc.code, "type": acc.typ, "subtype": acc.subtype,
		})
		requireStatus(a.t, resp, http.StatusCreated)
		a.accounts[acc.code] = decodeAs[models.Account](a.t, resp).ID
	}
}

func (a *testAPI) expense(key, amt, date string) *http.Response {
	return a.do(http.MethodPost, "/transactions", map[string]any{
		"type": "expense", "amount": amt, "description": "office supplies",
		"categoryId": a.accounts["5.01"], "fromAccountId": a.accounts["1.01"],
		"date": date, "idempotencyKey": key,
	})
}

func (a *testAPI) income(key, amt, date string) *http.Response {
	return a.do(http.MethodPost, "/transactions", map[string]any{
		"type": "income", "amount": amt, "description": "consulting",
		"categoryId": a.accounts["4.01"], "toAccountId": a.accounts["1.01"],
		"date": date, "idempotencyKey": key,
	})
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestUnauthenticated(t *testing.T) {
	api := newTestAPI(t)
	resp := api.doAs("", http.MethodGet, "/accounts", nil)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeAs[services.ErrorResponse](t, resp)
	assert.Equal(t, "Unauthenticated", body.Kind)
}

func TestCreateTransaction(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()

	resp := api.expense("exp-1", "150.50", "2024-05-10")
	requireStatus(t, resp, http.StatusCreated)
	assert.Empty(t, resp.Header.Get(ReplayedHeader))

	tx := decodeAs[models.Transaction](t, resp)
	assertDecimal(t, "150.50", tx.Amount)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), tx.Date.UTC())
	require.Len(t, tx.Entries, 2)
	for _, e := range tx.Entries {
		switch e.Type {
		case models.EntryTypeDebit:
			assert.Equal(t, api.accounts["5.01"], e.AccountID)
		case models.EntryTypeCredit:
			assert.Equal(t, api.accounts["1.01"], e.AccountID)
		}
		assertDecimal(t, "150.50", e.Amount)
	}

	t.Run("replay returns the stored transaction", func(t *testing.T) {
		resp := api.expense("exp-1", "150.50", "2024-05-10")
		requireStatus(t, resp, http.StatusCreated)
		assert.Equal(t, "true", resp.Header.Get(ReplayedHeader))
		assert.Equal(t, tx.ID, decodeAs[models.Transaction](t, resp).ID)
	})

	t.Run("installments answer an array", func(t *testing.T) {
		resp := api.do(http.MethodPost, "/transactions", map[string]any{
			"type": "expense", "amount": 600, "description": "desk",
			"categoryId": api.accounts["5.01"], "fromAccountId": api.accounts["1.01"],
			"date": "2024-01-31T00:00:00Z", "idempotencyKey": "desk", "installments": 3,
		})
		requireStatus(t, resp, http.StatusCreated)

		legs := decodeAs[[]models.Transaction](t, resp)
		require.Len(t, legs, 3)
		for _, leg := range legs {
			assertDecimal(t, "200", leg.Amount)
		}
		assert.Equal(t, 29, legs[1].Date.Day())
	})

	t.Run("replay without installments answers the stored set", func(t *testing.T) {
		resp := api.do(http.MethodPost, "/transactions", map[string]any{
			"type": "expense", "amount": 600, "description": "desk",
			"categoryId": api.accounts["5.01"], "fromAccountId": api.accounts["1.01"],
			"date": "2024-01-31T00:00:00Z", "idempotencyKey": "desk",
		})
		requireStatus(t, resp, http.StatusCreated)
		assert.Equal(t, "true", resp.Header.Get(ReplayedHeader))

		legs := decodeAs[[]models.Transaction](t, resp)
		require.Len(t, legs, 3)
		assert.Equal(t, "desk", legs[0].InstallmentGroup)
	})
}

func TestCreateTransaction_BadRequests(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()

	tests := []struct {
		name string
		body any
		kind string
	}{
		{"malformed json", `{"type":`, "ValidationError"},
		{"unknown field", `{"type":"expense","bogus":1}`, "ValidationError"},
		{"two objects", `{"type":"expense"}{"type":"income"}`, "ValidationError"},
		{"missing date", map[string]any{
			"type": "expense", "amount": "10", "description": "x", "idempotencyKey": "k1",
			"categoryId": api.accounts["5.01"], "fromAccountId": api.accounts["1.01"],
		}, "ValidationError"},
		{"bad date", map[string]any{
			"type": "expense", "amount": "10", "description": "x", "idempotencyKey": "k2", "date": "10/05/2024",
			"categoryId": api.accounts["5.01"], "fromAccountId": api.accounts["1.01"],
		}, "ValidationError"},
		{"zero amount", map[string]any{
			"type": "expense", "amount": "0", "description": "x", "idempotencyKey": "k3", "date": "2024-05-10",
			"categoryId": api.accounts["5.01"], "fromAccountId": api.accounts["1.01"],
		}, "InvalidAmount"},
		{"unknown account", map[string]any{
			"type": "expense", "amount": "10", "description": "x", "idempotencyKey": "k4", "date": "2024-05-10",
			"categoryId": api.accounts["5.01"], "fromAccountId": "missing",
		}, "AccountNotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeAs[services.ErrorResponse](t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestListTransactions(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()
	requireStatus(t, api.income("inc-1", "1000", "2024-05-01"), http.StatusCreated)
	requireStatus(t, api.expense("exp-1", "100", "2024-05-10"), http.StatusCreated)
	requireStatus(t, api.expense("exp-2", "40", "2024-06-02"), http.StatusCreated)

	resp := api.do(http.MethodGet, "/transactions?startDate=2024-05-01&endDate=2024-05-31&limit=1", nil)
	requireStatus(t, resp, http.StatusOK)
	page := decodeAs[models.TransactionPage](t, resp)

	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "exp-1", page.Transactions[0].IdempotencyKey)
	assertDecimal(t, "1000", page.Summary.TotalIncome)
	assertDecimal(t, "100", page.Summary.TotalExpense)
	assertDecimal(t, "900", page.Summary.NetAmount)
	assert.Equal(t, 2, page.Summary.TransactionCount)

	t.Run("invalid query", func(t *testing.T) {
		for _, q := range []string{"page=abc", "minAmount=lots", "startDate=yesterday", "limit=1000"} {
			resp := api.do(http.MethodGet, "/transactions?"+q, nil)
			assert.Equalf(t, http.StatusBadRequest, resp.StatusCode, "query %s", q)
		}
	})
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()
	resp := api.expense("exp-1", "100", "2024-05-10")
	requireStatus(t, resp, http.StatusCreated)
	tx := decodeAs[models.Transaction](t, resp)

	resp = api.do(http.MethodPut, "/transactions/"+tx.ID, map[string]any{"description": "printer paper"})
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, "printer paper", decodeAs[models.Transaction](t, resp).Description)

	resp = api.do(http.MethodPut, "/transactions/"+tx.ID, map[string]any{"amount": "99"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodDelete, "/transactions/"+tx.ID, nil)
	requireStatus(t, resp, http.StatusNoContent)

	resp = api.do(http.MethodGet, "/transactions/"+tx.ID, nil)
	requireStatus(t, resp, http.StatusOK)
	original := decodeAs[models.Transaction](t, resp)
	assert.Equal(t, models.TransactionStatusReversed, original.Status)
	assert.NotEmpty(t, original.ReversedBy)

	resp = api.do(http.MethodDelete, "/transactions/"+tx.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "AlreadyReversed", decodeAs[services.ErrorResponse](t, resp).Kind)

	resp = api.do(http.MethodGet, "/accounts/"+api.accounts["1.01"]+"/balance", nil)
	requireStatus(t, resp, http.StatusOK)
	assertDecimal(t, "0", decodeAs[services.Balance](t, resp).Balance)

	resp = api.do(http.MethodGet, "/transactions/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccounts(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()

	resp := api.do(http.MethodGet, "/accounts?type=expense", nil)
	requireStatus(t, resp, http.StatusOK)
	accounts := decodeAs[[]models.Account](t, resp)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Office Expenses", accounts[0].Name)

	resp = api.do(http.MethodGet, "/accounts?search=check", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Len(t, decodeAs[[]models.Account](t, resp), 1)

	resp = api.do(http.MethodGet, "/accounts?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	t.Run("code is immutable", func(t *testing.T) {
		resp := api.do(http.MethodPut, "/accounts/"+api.accounts["1.01"], map[string]any{"code": "9.99"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "CodeImmutable", decodeAs[services.ErrorResponse](t, resp).Kind)
	})

	t.Run("duplicate code", func(t *testing.T) {
		ledgers := api.do(http.MethodGet, "/ledgers", nil)
		requireStatus(t, ledgers, http.StatusOK)
		var assetLedger string
		for _, l := range decodeAs[[]models.Ledger](t, ledgers) {
			if l.Type == models.AccountTypeAsset {
				assetLedger = l.ID
			}
		}
		resp := api.do(http.MethodPost, "/accounts", map[string]string{
			"ledgerId": assetLedger, "name": "Other", "code": "1.01", "type": "asset",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "DuplicateCode", decodeAs[services.ErrorResponse](t, resp).Kind)
	})

	t.Run("deactivation is blocked by entries", func(t *testing.T) {
		requireStatus(t, api.expense("exp-1", "10", "2024-05-10"), http.StatusCreated)

		resp := api.do(http.MethodDelete, "/accounts/"+api.accounts["1.01"], nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "HasTransactions", decodeAs[services.ErrorResponse](t, resp).Kind)

		resp = api.do(http.MethodGet, "/accounts/"+api.accounts["1.01"], nil)
		requireStatus(t, resp, http.StatusOK)
		assert.True(t, decodeAs[models.Account](t, resp).IsActive)
	})

	t.Run("unused account can be deactivated", func(t *testing.T) {
		resp := api.do(http.MethodDelete, "/accounts/"+api.accounts["3.01"], nil)
		requireStatus(t, resp, http.StatusOK)
		assert.False(t, decodeAs[models.Account](t, resp).IsActive)
	})
}

func TestCrossTenant(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()
	resp := api.expense("exp-1", "10", "2024-05-10")
	requireStatus(t, resp, http.StatusCreated)
	tx := decodeAs[models.Transaction](t, resp)

	_, other := api.onboard("Other Co")
	for _, path := range []string{
		"/accounts/" + api.accounts["1.01"],
		"/accounts/" + api.accounts["1.01"] + "/balance",
		"/transactions/" + tx.ID,
	} {
		resp := api.doAs(other, http.MethodGet, path, nil)
		assert.Equalf(t, http.StatusForbidden, resp.StatusCode, "GET %s", path)
		assert.Equal(t, "ForbiddenCrossTenant", decodeAs[services.ErrorResponse](t, resp).Kind)
	}

	resp = api.doAs(other, http.MethodDelete, "/transactions/"+tx.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.doAs(other, http.MethodGet, "/accounts", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Empty(t, decodeAs[[]models.Account](t, resp))
}

func TestBalance(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()
	requireStatus(t, api.income("inc-1", "1000", "2024-05-01"), http.StatusCreated)
	requireStatus(t, api.expense("exp-1", "150.50", "2024-05-10"), http.StatusCreated)
	requireStatus(t, api.expense("exp-2", "49.50", "2024-05-10"), http.StatusCreated)
	checking := "/accounts/" + api.accounts["1.01"] + "/balance"

	resp := api.do(http.MethodGet, checking, nil)
	requireStatus(t, resp, http.StatusOK)
	assertDecimal(t, "800", decodeAs[services.Balance](t, resp).Balance)

	resp = api.do(http.MethodGet, checking+"?date=2024-05-09", nil)
	requireStatus(t, resp, http.StatusOK)
	assertDecimal(t, "1000", decodeAs[services.Balance](t, resp).Balance)

	resp = api.do(http.MethodGet, checking+"?startDate=2024-05-01&endDate=2024-05-31", nil)
	requireStatus(t, resp, http.StatusOK)
	var plain map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plain))
	assert.NotContains(t, plain, "history")

	resp = api.do(http.MethodGet, checking+"?startDate=2024-05-01&endDate=2024-05-31&includeHistory=true", nil)
	requireStatus(t, resp, http.StatusOK)
	history := decodeAs[services.BalanceHistory](t, resp)
	assertDecimal(t, "0", history.OpeningBalance)
	assertDecimal(t, "800", history.Balance.Balance)
	require.Len(t, history.History, 2)
	assertDecimal(t, "-200", history.History[1].Change)

	resp = api.do(http.MethodGet, checking+"?startDate=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReports(t *testing.T) {
	api := newTestAPI(t)
	api.setupChart()
	requireStatus(t, api.income("inc-1", "1000", "2024-05-01"), http.StatusCreated)
	requireStatus(t, api.expense("exp-1", "150.50", "2024-05-10"), http.StatusCreated)

	resp := api.do(http.MethodGet, "/reports/trial-balance?startDate=2024-05-01&endDate=2024-05-31", nil)
	requireStatus(t, resp, http.StatusOK)
	tb := decodeAs[models.TrialBalance](t, resp)
	assert.True(t, tb.IsBalanced)
	assertDecimal(t, "1150.50", tb.TotalDebits)
	assertDecimal(t, "1150.50", tb.TotalCredits)

	resp = api.do(http.MethodGet, "/reports/balance-sheet?date=2024-05-31", nil)
	requireStatus(t, resp, http.StatusOK)
	bs := decodeAs[models.BalanceSheet](t, resp)
	assert.True(t, bs.IsBalanced)
	assertDecimal(t, "849.50", bs.Assets.Total)
	assertDecimal(t, "849.50", bs.Equity.RetainedEarnings)

	resp = api.do(http.MethodGet, "/reports/income-statement?startDate=2024-05-01&endDate=2024-05-31", nil)
	requireStatus(t, resp, http.StatusOK)
	is := decodeAs[models.IncomeStatement](t, resp)
	assertDecimal(t, "849.50", is.NetProfit)

	resp = api.do(http.MethodGet, "/reports/trial-balance?startDate=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodGet, "/reports/income-statement?startDate=2024-06-01&endDate=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(http.MethodGet, "/ledger/integrity", nil)
	requireStatus(t, resp, http.StatusOK)
	integrity := decodeAs[integrityReport](t, resp)
	assert.True(t, integrity.Balanced)
	assert.NotNil(t, integrity.Imbalances)
	assert.Empty(t, integrity.Imbalances)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in       string
		endOfDay bool
		want     time.Time
	}{
		{"2024-05-10", false, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"2024-05-10", true, time.Date(2024, 5, 10, 23, 59, 59, 999999999, time.UTC)},
		{"2024-05-10T15:04:05-03:00", true, time.Date(2024, 5, 10, 18, 4, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in, tt.endOfDay)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := ParseDate("May 10", false)
	assert.Error(t, err)
}
