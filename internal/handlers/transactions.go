package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

// ReplayedHeader marks a create response that was served from an earlier
// request with the same idempotency key.
const ReplayedHeader = "Idempotent-Replayed"

type TransactionHandler struct {
	processor *services.TransactionProcessor
	reversals *services.ReversalManager
}

func NewTransactionHandler(processor *services.TransactionProcessor, reversals *services.ReversalManager) *TransactionHandler {
	return &TransactionHandler{
		processor: processor,
		reversals: reversals,
	}
}

// createTransactionRequest takes the date as text so that a bare
// YYYY-MM-DD is accepted next to RFC 3339.
type createTransactionRequest struct {
	services.CreateTransactionInput
	Date string `json:"date"`
}

// CreateTransaction books a transaction
// @Summary Create Transaction
// @Description Expand an expense, income or transfer into balanced debit and credit entries. With installments > 1 the amount is split into monthly transactions and the response is an array. Replaying an idempotency key returns the stored result with the Idempotent-Replayed header set.
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateTransactionInput true "Transaction"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /transactions [post]
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !decodeBody(w, r, "TRANSACTION", &req) {
		return
	}

	in := req.CreateTransactionInput
	if strings.TrimSpace(req.Date) == "" {
		services.SendError(w, apperrors.New(apperrors.KindValidation, "date is required"))
		return
	}
	date, err := ParseDate(req.Date, false)
	if err != nil {
		services.SendError(w, apperrors.New(apperrors.KindValidation, "invalid date: %v", err))
		return
	}
	in.Date = date

	result, err := h.processor.Create(r.Context(), in)
	if err != nil {
		log.Printf("[TRANSACTION] CreateTransaction - %v", err)
		services.SendError(w, err)
		return
	}

	if !result.Created() {
		w.Header().Set(ReplayedHeader, "true")
	}
	transactions := result.Transactions()
	if in.Installments > 1 || len(transactions) > 1 {
		writeJSON(w, http.StatusCreated, transactions)
		return
	}
	writeJSON(w, http.StatusCreated, transactions[0])
}

// ListTransactions returns one page of transactions, newest first
// @Summary List Transactions
// @Description The summary block is computed over the whole filtered set, not only the page.
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param type query string false "Transaction type" Enums(expense, income, transfer)
// @Param startDate query string false "Earliest date (RFC 3339 or YYYY-MM-DD)"
// @Param endDate query string false "Latest date, inclusive"
// @Param search query string false "Description contains"
// @Param minAmount query number false "Minimum amount"
// @Param maxAmount query number false "Maximum amount"
// @Param page query int false "Page, from 1" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} models.TransactionPage
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /transactions [get]
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := query(r)
	filter := models.TransactionFilter{
		StartDate: q.date("startDate", false),
		EndDate:   q.date("endDate", true),
		Search:    q.text("search"),
		MinAmount: q.amount("minAmount"),
		MaxAmount: q.amount("maxAmount"),
		Page:      q.integer("page"),
		Limit:     q.integer("limit"),
	}
	if t := q.text("type"); t != "" {
		txType := models.TransactionType(strings.ToLower(t))
		filter.Type = &txType
	}
	if q.err != nil {
		services.SendError(w, q.err)
		return
	}

	page, err := h.processor.List(r.Context(), filter)
	if err != nil {
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetTransaction returns a transaction with its entries
// @Summary Get Transaction
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.processor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTransaction changes description, tags or metadata
// @Summary Update Transaction
// @Description Amount, type and entries are immutable; sending a different amount or type is refused.
// @Tags Transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body services.UpdateTransactionInput true "Fields to change"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateTransactionInput
	if !decodeBody(w, r, "TRANSACTION", &req) {
		return
	}

	t, err := h.processor.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		log.Printf("[TRANSACTION] UpdateTransaction - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTransaction reverses a transaction
// @Summary Delete Transaction
// @Description Books a compensating transaction and marks the original reversed. Nothing is removed.
// @Tags Transactions
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 204
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	result, err := h.reversals.Reverse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("[TRANSACTION] DeleteTransaction - %v", err)
		services.SendError(w, err)
		return
	}
	log.Printf("[TRANSACTION] %s reversed by %s", result.Original.ID, result.Reversal.ID)
	w.WriteHeader(http.StatusNoContent)
}
