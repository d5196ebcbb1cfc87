package handlers

import (
	"log"
	"net/http"

	"github.com/ruralpay/ledger/internal/services"
)

type LedgerHandler struct {
	registry *services.AccountRegistry
}

func NewLedgerHandler(registry *services.AccountRegistry) *LedgerHandler {
	return &LedgerHandler{registry: registry}
}

// ListLedgers lists the caller's ledgers
// @Summary List Ledgers
// @Tags Ledgers
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Ledger
// @Failure 401 {object} services.ErrorResponse
// @Router /ledgers [get]
func (h *LedgerHandler) ListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers, err := h.registry.ListLedgers(r.Context(), "")
	if err != nil {
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgers)
}

// CreateLedger creates a ledger of one account type
// @Summary Create Ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateLedgerInput true "Ledger"
// @Success 201 {object} models.Ledger
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /ledgers [post]
func (h *LedgerHandler) CreateLedger(w http.ResponseWriter, r *http.Request) {
	var req services.CreateLedgerInput
	if !decodeBody(w, r, "LEDGER", &req) {
		return
	}

	ledger, err := h.registry.CreateLedger(r.Context(), req)
	if err != nil {
		log.Printf("[LEDGER] CreateLedger - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ledger)
}
