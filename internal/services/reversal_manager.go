package services

import (
	"context"
	"errors"
	"log"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const reversalPrefix = "ESTORNO: "

type ReversalResult struct {
	Original *models.Transaction
	Reversal *models.Transaction
}

// ReversalManager deletes transactions logically: it books a compensating
// transaction and never removes rows.
type ReversalManager struct {
	deps Deps
}

func NewReversalManager(deps Deps) *ReversalManager {
	return &ReversalManager{deps: deps.withDefaults()}
}

func reversalKey(originalID string) string {
	return "reversal:" + originalID
}

// Reverse books the mirror image of a transaction's entries (same accounts
// and amounts, debit and credit swapped) and marks the original reversed,
// all in one unit of work. The reversal is dated when it is performed.
func (m *ReversalManager) Reverse(ctx context.Context, id string) (*ReversalResult, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}

	var result ReversalResult
	err = m.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		original, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return notFound(err, apperrors.KindNotFound, "transaction", id)
		}
		if err := AuthorizeTenant(tenantID, original.TenantID, "transaction", id); err != nil {
			return err
		}
		if original.Status == models.TransactionStatusReversed {
			return apperrors.New(apperrors.KindAlreadyReversed, "transaction %s was already reversed", id)
		}
		if original.IsReversal() {
			return apperrors.New(apperrors.KindValidation, "transaction %s is a reversal and cannot be reversed", id)
		}

		now := m.deps.Now()
		reversal := &models.Transaction{
			ID:                m.deps.NewID(),
			TenantID:          original.TenantID,
			Type:              original.Type,
			Amount:            original.Amount,
			Currency:          original.Currency,
			Description:       reversalPrefix + original.Description,
			Date:              now,
			Status:            models.TransactionStatusProcessed,
			IdempotencyKey:    reversalKey(original.ID),
			CategoryID:        original.CategoryID,
			FromAccountID:     original.FromAccountID,
			ToAccountID:       original.ToAccountID,
			InstallmentNumber: original.InstallmentNumber,
			InstallmentCount:  original.InstallmentCount,
			InstallmentGroup:  original.InstallmentGroup,
			ReversalOf:        original.ID,
			Tags:              append([]string{}, original.Tags...),
			Metadata:          original.Metadata.Clone(),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertTransaction(ctx, reversal); err != nil {
			if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
				return apperrors.New(apperrors.KindAlreadyReversed, "transaction %s was already reversed", id)
			}
			return err
		}

		mirrored := make([]models.Entry, 0, len(original.Entries))
		for _, e := range original.Entries {
			mirrored = append(mirrored, models.Entry{
				TenantID:      reversal.TenantID,
				TransactionID: reversal.ID,
				AccountID:     e.AccountID,
				Type:          e.Type.Opposite(),
				Amount:        e.Amount,
				Description:   reversalPrefix + e.Description,
				EffectiveAt:   now,
				CreatedAt:     now,
			})
		}
		if err := tx.InsertEntries(ctx, mirrored); err != nil {
			return err
		}
		reversal.Entries = mirrored

		if err := tx.MarkTransactionReversed(ctx, original.ID, reversal.ID, now); err != nil {
			return err
		}
		original.Status = models.TransactionStatusReversed
		original.ReversedBy = reversal.ID
		original.ReversedAt = &now
		original.UpdatedAt = now

		result = ReversalResult{Original: original, Reversal: reversal}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[TRANSACTION] %s reversed by %s", result.Original.ID, result.Reversal.ID)
	metrics.ReversalsTotal.Inc()
	m.deps.Audit.LogTransaction(audit.EventTransactionReversed, result.Reversal)
	m.deps.afterCommit(ctx, tenantID, transactionEvent(events.TypeTransactionReversed, result.Reversal, result.Reversal.CreatedAt))
	return &result, nil
}
