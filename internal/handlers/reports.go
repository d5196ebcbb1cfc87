package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

// ReportHandler serves the financial statements and the ledger-wide
// integrity check. Every report is computed for the caller's tenant.
type ReportHandler struct {
	reports *services.ReportGenerator
}

func NewReportHandler(reports *services.ReportGenerator) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// TrialBalance reports debit and credit movements per account
// @Summary Trial Balance
// @Description Movements within the period and closing balances for every account. Answers 500 IntegrityViolation instead of an unbalanced report.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param startDate query string true "Period start (RFC 3339 or YYYY-MM-DD)"
// @Param endDate query string true "Period end, inclusive"
// @Success 200 {object} models.TrialBalance
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /reports/trial-balance [get]
func (h *ReportHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	q := query(r)
	start := q.requiredDate("startDate", false)
	end := q.requiredDate("endDate", true)
	if q.err != nil {
		services.SendError(w, q.err)
		return
	}

	report, err := h.reports.TrialBalance(r.Context(), "", start, end)
	if err != nil {
		log.Printf("[REPORT] TrialBalance - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// BalanceSheet reports assets, liabilities and equity at a point in time
// @Summary Balance Sheet
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param date query string false "As-of date, defaults to now"
// @Success 200 {object} models.BalanceSheet
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /reports/balance-sheet [get]
func (h *ReportHandler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	q := query(r)
	asOf := q.date("date", true)
	if q.err != nil {
		services.SendError(w, q.err)
		return
	}

	at := time.Now().UTC()
	if asOf != nil {
		at = *asOf
	}

	report, err := h.reports.BalanceSheet(r.Context(), "", at)
	if err != nil {
		log.Printf("[REPORT] BalanceSheet - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// IncomeStatement reports revenue and expenses over a period
// @Summary Income Statement
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param startDate query string true "Period start (RFC 3339 or YYYY-MM-DD)"
// @Param endDate query string true "Period end, inclusive"
// @Success 200 {object} models.IncomeStatement
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /reports/income-statement [get]
func (h *ReportHandler) IncomeStatement(w http.ResponseWriter, r *http.Request) {
	q := query(r)
	start := q.requiredDate("startDate", false)
	end := q.requiredDate("endDate", true)
	if q.err != nil {
		services.SendError(w, q.err)
		return
	}

	report, err := h.reports.IncomeStatement(r.Context(), "", start, end)
	if err != nil {
		log.Printf("[REPORT] IncomeStatement - %v", err)
		services.SendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type integrityReport struct {
	Balanced   bool                          `json:"balanced"`
	Imbalances []models.TransactionImbalance `json:"imbalances"`
}

// VerifyIntegrity lists transactions whose entries do not balance
// @Summary Ledger Integrity
// @Description Answers 200 with an empty list when every transaction balances, 500 with the offending transactions otherwise.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handlers.integrityReport
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} handlers.integrityReport
// @Router /ledger/integrity [get]
func (h *ReportHandler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	imbalances, err := h.reports.VerifyIntegrity(r.Context(), "")
	if err != nil && apperrors.KindOf(err) != apperrors.KindIntegrity {
		services.SendError(w, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		log.Printf("[REPORT] VerifyIntegrity - %v", err)
		status = services.StatusFor(apperrors.KindIntegrity)
	}
	if imbalances == nil {
		imbalances = []models.TransactionImbalance{}
	}
	writeJSON(w, status, integrityReport{
		Balanced:   err == nil,
		Imbalances: imbalances,
	})
}
