// Package audit writes the permanent trail of ledger writes as one JSON line
// per event.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"

	"github.com/ruralpay/ledger/internal/amount"
	"github.com/ruralpay/ledger/internal/models"
)

const (
	EventTransactionCreated  = "TRANSACTION_CREATED"
	EventTransactionReplayed = "TRANSACTION_REPLAYED"
	EventTransactionUpdated  = "TRANSACTION_UPDATED"
	EventTransactionReversed = "TRANSACTION_REVERSED"
	EventAccountCreated      = "ACCOUNT_CREATED"
	EventAccountUpdated      = "ACCOUNT_UPDATED"
	EventAccountDeactivated  = "ACCOUNT_DEACTIVATED"
	EventIntegrityAlarm      = "INTEGRITY_ALARM"
)

type AuditEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	TenantID      string            `json:"tenant_id"`
	TransactionID string            `json:"transaction_id,omitempty"`
	AccountID     string            `json:"account_id,omitempty"`
	Amount        string            `json:"amount,omitempty"`
	Status        string            `json:"status"`
	Details       map[string]string `json:"details,omitempty"`
}

type AuditLogger struct {
	logger *log.Logger
	now    func() time.Time
}

func NewAuditLogger() *AuditLogger {
	return NewAuditLoggerTo(os.Stderr)
}

// NewAuditLoggerTo writes audit lines to w.
func NewAuditLoggerTo(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: log.New(w, "", log.LstdFlags),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuditLogger) LogTransaction(eventType string, tx *models.Transaction) {
	details := map[string]string{
		"type":            string(tx.Type),
		"idempotency_key": tx.IdempotencyKey,
	}
	if tx.InstallmentCount > 1 {
		details["installment_group"] = tx.InstallmentGroup
	}
	if tx.ReversalOf != "" {
		details["reversal_of"] = tx.ReversalOf
	}
	a.log(AuditEvent{
		EventType:     eventType,
		TenantID:      tx.TenantID,
		TransactionID: tx.ID,
		Amount:        amount.Display(tx.Amount, tx.Currency),
		Status:        string(tx.Status),
		Details:       details,
	})
}

func (a *AuditLogger) LogAccount(eventType string, account *models.Account) {
	a.log(AuditEvent{
		EventType: eventType,
		TenantID:  account.TenantID,
		AccountID: account.ID,
		Status:    "SUCCESS",
		Details: map[string]string{
			"code": account.Code,
			"type": string(account.Type),
		},
	})
}

// LogIntegrityAlarm records a detected debit/credit mismatch.
func (a *AuditLogger) LogIntegrityAlarm(tenantID, source, detail string) {
	a.log(AuditEvent{
		EventType: EventIntegrityAlarm,
		TenantID:  tenantID,
		Status:    "FAILED",
		Details: map[string]string{
			"source": source,
			"detail": detail,
		},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = a.now()
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}
