package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency        = "BRL"
	DefaultMaxInstallments = 360
)

// Deps bundles the collaborators shared by the ledger services.
type Deps struct {
	Store           store.Store
	Audit           *audit.AuditLogger
	Cache           *ReportCache
	Events          events.Publisher
	Currency        string
	MaxInstallments int
	// BalanceTolerance bounds |assets - (liabilities + equity)| on the balance sheet.
	BalanceTolerance decimal.Decimal
	Now              func() time.Time
	NewID            func() string
}

func (d Deps) withDefaults() Deps {
	if d.Audit == nil {
		d.Audit = audit.NewAuditLogger()
	}
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	if d.Currency == "" {
		d.Currency = DefaultCurrency
	}
	if d.MaxInstallments <= 0 {
		d.MaxInstallments = DefaultMaxInstallments
	}
	if d.BalanceTolerance.IsZero() {
		d.BalanceTolerance = decimal.New(1, -2)
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// notFound translates store.ErrNotFound into the given kind.
func notFound(err error, kind apperrors.Kind, what, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.New(kind, "%s %s not found", what, id)
	}
	return err
}

func requireActiveTenant(ctx context.Context, r store.Reader, tenantID string) error {
	tenant, err := r.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.New(apperrors.KindForbidden, "tenant %s is not onboarded", tenantID)
		}
		return err
	}
	if !tenant.IsActive {
		return apperrors.New(apperrors.KindForbidden, "tenant %s is deactivated", tenantID)
	}
	return nil
}

// afterCommit runs the side effects of a committed write. None of them can
// undo the write, so failures are only logged.
func (d Deps) afterCommit(ctx context.Context, tenantID string, evt *events.TransactionEvent) {
	ctx = context.WithoutCancel(ctx)
	d.Cache.Invalidate(ctx, tenantID)
	if evt == nil {
		return
	}
	if err := d.Events.Publish(ctx, *evt); err != nil {
		metrics.EventPublishFailuresTotal.Inc()
		log.Printf("[EVENTS] publish %s for transaction %s failed: %v", evt.Type, evt.TransactionID, err)
	}
}

func transactionEvent(eventType string, tx *models.Transaction, at time.Time) *events.TransactionEvent {
	lines := make([]events.EntryLine, 0, len(tx.Entries))
	for _, e := range tx.Entries {
		lines = append(lines, events.EntryLine{AccountID: e.AccountID, Type: string(e.Type), Amount: e.Amount})
	}
	return &events.TransactionEvent{
		Type:          eventType,
		TenantID:      tx.TenantID,
		TransactionID: tx.ID,
		ReversalOf:    tx.ReversalOf,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Entries:       lines,
		OccurredAt:    at,
	}
}
