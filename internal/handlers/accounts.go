package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

type AccountHandler struct {
	registry *services.AccountRegistry
	balances *services.BalanceCalculator
}

func NewAccountHandler(registry *services.AccountRegistry, balances *services.BalanceCalculator) *AccountHandler {
	return &AccountHandler{
		registry: registry,
		balances: balances,
	}
}

// CreateAccount opens an account in one of the caller's ledgers
// @Summary Create Account
// @Description Open an account with a zero balance. The account type must match its ledger's type and the code must be unique per tenant.
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateAccountInput true "Account"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAccountInput
	if !decodeBody(w, r, "ACCOUNT", &req) {
		return
	}

	account, err := h.registry.CreateAccount(r.Context(), req)
	if err != nil {
		log.Printf("[ACCOUNT] CreateAccount - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// ListAccounts lists the caller's accounts
// @Summary List Accounts
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param type query string false "Account type" Enums(asset, liability, equity, revenue, expense)
// @Param ledgerId query string false "Ledger ID"
// @Param active query bool false "Only active or only inactive accounts"
// @Param search query string false "Case-insensitive name match"
// @Success 200 {array} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts [get]
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := query(r)
	filter := models.AccountFilter{
		LedgerID: q.text("ledgerId"),
		Active:   q.flag("active"),
		Search:   q.text("search"),
	}
	if t := q.text("type"); t != "" {
		accountType := models.AccountType(strings.ToLower(t))
		filter.Type = &accountType
	}
	if q.err != nil {
		services.SendError(w, q.err)
		return
	}

	accounts, err := h.registry.ListAccounts(r.Context(), filter)
	if err != nil {
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetAccount returns one account
// @Summary Get Account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.registry.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdateAccount changes the mutable fields of an account
// @Summary Update Account
// @Description Name, description, metadata and isActive may change. Code and type are immutable.
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body services.UpdateAccountInput true "Fields to change"
// @Success 200 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts/{id} [put]
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateAccountInput
	if !decodeBody(w, r, "ACCOUNT", &req) {
		return
	}

	account, err := h.registry.UpdateAccount(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		log.Printf("[ACCOUNT] UpdateAccount - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// DeactivateAccount deactivates an account that has no entries
// @Summary Deactivate Account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts/{id} [delete]
func (h *AccountHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.registry.DeactivateAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("[ACCOUNT] DeactivateAccount - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetBalance returns the derived balance of an account
// @Summary Account Balance
// @Description Balance as of now or as of date. With startDate and endDate the response also carries the opening balance and, when includeHistory is set, one snapshot per entry instant.
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param date query string false "As-of date (RFC 3339 or YYYY-MM-DD)"
// @Param startDate query string false "Period start"
// @Param endDate query string false "Period end"
// @Param includeHistory query bool false "Include balance snapshots"
// @Success 200 {object} services.BalanceHistory
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/balance [get]
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := query(r)
	asOf := q.date("date", true)
	start := q.date("startDate", false)
	end := q.date("endDate", true)
	includeHistory := q.flag("includeHistory")
	if q.err != nil {
		services.SendError(w, q.err)
		return
	}

	if start == nil && end == nil {
		balance, err := h.balances.GetBalance(r.Context(), id, asOf)
		if err != nil {
			services.SendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, balance)
		return
	}
	if start == nil || end == nil {
		services.SendErrorResponse(w, "startDate and endDate must be given together", http.StatusBadRequest, nil)
		return
	}

	history, err := h.balances.GetBalanceHistory(r.Context(), id, *start, *end)
	if err != nil {
		services.SendError(w, err)
		return
	}
	if includeHistory == nil || !*includeHistory {
		writeJSON(w, http.StatusOK, history.Balance)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
