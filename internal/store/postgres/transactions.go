package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const transactionColumns = `id, tenant_id, type, amount, currency, description, date, status, idempotency_key, fingerprint,
	category_id, from_account_id, to_account_id, installment_number, installment_count, installment_group,
	reversal_of, reversed_by, reversed_at, tags, metadata, created_at, updated_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var (
		fingerprint, categoryID, fromAccountID, toAccountID sql.NullString
		installmentGroup, reversalOf, reversedBy            sql.NullString
		installmentNumber, installmentCount                 sql.NullInt32
		reversedAt                                          sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Type, &t.Amount, &t.Currency, &t.Description, &t.Date, &t.Status,
		&t.IdempotencyKey, &fingerprint,
		&categoryID, &fromAccountID, &toAccountID, &installmentNumber, &installmentCount, &installmentGroup,
		&reversalOf, &reversedBy, &reversedAt, pq.Array(&t.Tags), &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Fingerprint = fingerprint.String
	t.CategoryID = categoryID.String
	t.FromAccountID = fromAccountID.String
	t.ToAccountID = toAccountID.String
	t.InstallmentNumber = int(installmentNumber.Int32)
	t.InstallmentCount = int(installmentCount.Int32)
	t.InstallmentGroup = installmentGroup.String
	t.ReversalOf = reversalOf.String
	t.ReversedBy = reversedBy.String
	if reversedAt.Valid {
		t.ReversedAt = &reversedAt.Time
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

func (r reader) getTransaction(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	entries, err := r.entriesFor(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Entries = entries[t.ID]
	if t.Entries == nil {
		t.Entries = []models.Entry{}
	}
	return t, nil
}

func (r reader) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return r.getTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r reader) GetTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Transaction, error) {
	return r.getTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
}

func (r reader) ListInstallmentGroup(ctx context.Context, tenantID, group string) ([]models.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE tenant_id = $1 AND installment_group = $2 ORDER BY installment_number`, tenantID, group)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	installments := []models.Transaction{}
	ids := []string{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return installments, nil
	}

	entries, err := r.entriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range installments {
		installments[i].Entries = entries[installments[i].ID]
		if installments[i].Entries == nil {
			installments[i].Entries = []models.Entry{}
		}
	}
	return installments, nil
}

func transactionConditions(filter models.TransactionFilter) *conditions {
	c := &conditions{}
	c.add("tenant_id = $%d", filter.TenantID)
	if filter.Type != nil {
		c.add("type = $%d", string(*filter.Type))
	}
	if filter.Status != nil {
		c.add("status = $%d", string(*filter.Status))
	}
	if filter.StartDate != nil {
		c.add("date >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		c.add("date <= $%d", *filter.EndDate)
	}
	if filter.Search != "" {
		c.add("description ILIKE $%d", likePattern(filter.Search))
	}
	if filter.MinAmount != nil {
		c.add("amount >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		c.add("amount <= $%d", *filter.MaxAmount)
	}
	return c
}

// ListTransactions returns one page plus a summary over the whole filtered
// set. Reversed originals and reversal transactions are left out of the
// income and expense totals.
func (r reader) ListTransactions(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	c := transactionConditions(filter)

	page := &models.TransactionPage{
		Transactions: []models.Transaction{},
		Page:         filter.Page,
		Limit:        filter.Limit,
	}
	summary := &page.Summary
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount) FILTER (WHERE type = 'income' AND status = 'processed' AND reversal_of IS NULL), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense' AND status = 'processed' AND reversal_of IS NULL), 0)
		FROM transactions`+c.where(), c.args...).Scan(&page.Total, &summary.TotalIncome, &summary.TotalExpense)
	if err != nil {
		return nil, mapError(err)
	}
	summary.TransactionCount = page.Total
	summary.NetAmount = summary.TotalIncome.Sub(summary.TotalExpense)

	offset := (filter.Page - 1) * filter.Limit
	if offset < 0 {
		offset = 0
	}
	limitArg := c.next()
	args := append(append([]any{}, c.args...), filter.Limit, offset)
	rows, err := r.q.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions`+c.where()+
		` ORDER BY date DESC, created_at DESC, id DESC`+
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", limitArg, limitArg+1), args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		page.Transactions = append(page.Transactions, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return page, nil
	}

	entries, err := r.entriesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range page.Transactions {
		page.Transactions[i].Entries = entries[page.Transactions[i].ID]
		if page.Transactions[i].Entries == nil {
			page.Transactions[i].Entries = []models.Entry{}
		}
	}
	return page, nil
}

func (t *pgTx) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return t.getTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		tx.ID, tx.TenantID, string(tx.Type), tx.Amount, tx.Currency, tx.Description, tx.Date, string(tx.Status),
		tx.IdempotencyKey, nullString(tx.Fingerprint),
		nullString(tx.CategoryID), nullString(tx.FromAccountID), nullString(tx.ToAccountID),
		nullInt(tx.InstallmentNumber), nullInt(tx.InstallmentCount), nullString(tx.InstallmentGroup),
		nullString(tx.ReversalOf), nullString(tx.ReversedBy), nullTime(tx.ReversedAt),
		pq.Array(tagsOrEmpty(tx.Tags)), tx.Metadata, tx.CreatedAt, tx.UpdatedAt,
	)
	return mapError(err)
}

func (t *pgTx) UpdateTransactionDetails(ctx context.Context, tx *models.Transaction) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE transactions
		SET description = $2, tags = $3, metadata = $4, updated_at = $5
		WHERE id = $1`,
		tx.ID, tx.Description, pq.Array(tagsOrEmpty(tx.Tags)), tx.Metadata, tx.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectOneRow(result)
}

func (t *pgTx) MarkTransactionReversed(ctx context.Context, id, reversedBy string, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, reversed_by = $3, reversed_at = $4, updated_at = $4
		WHERE id = $1`,
		id, string(models.TransactionStatusReversed), reversedBy, at)
	if err != nil {
		return mapError(err)
	}
	return expectOneRow(result)
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ store.Reader = reader{}
