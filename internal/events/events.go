// Package events publishes ledger domain events after their unit of work
// has committed. Delivery is best effort; the ledger is the system of record.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeTransactionCreated  = "ledger.transaction.created"
	TypeTransactionReversed = "ledger.transaction.reversed"
)

type EntryLine struct {
	AccountID string          `json:"account_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
}

type TransactionEvent struct {
	Type          string          `json:"type"`
	TenantID      string          `json:"tenant_id"`
	TransactionID string          `json:"transaction_id"`
	ReversalOf    string          `json:"reversal_of,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Entries       []EntryLine     `json:"entries"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event TransactionEvent) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TransactionEvent) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

var _ Publisher = NopPublisher{}
