package postgres

import (
	"context"

	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/models"
)

const entryColumns = `id, tenant_id, transaction_id, account_id, type, amount, description, effective_at, created_at`

func scanEntry(row rowScanner) (models.Entry, error) {
	var e models.Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.TransactionID, &e.AccountID, &e.Type, &e.Amount,
		&e.Description, &e.EffectiveAt, &e.CreatedAt)
	return e, err
}

// entriesFor loads the entries of the given transactions grouped by transaction ID.
func (r reader) entriesFor(ctx context.Context, transactionIDs []string) (map[string][]models.Entry, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE transaction_id = ANY($1) ORDER BY id`,
		pq.Array(transactionIDs))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	grouped := make(map[string][]models.Entry, len(transactionIDs))
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		grouped[e.TransactionID] = append(grouped[e.TransactionID], e)
	}
	return grouped, rows.Err()
}

func entryConditions(filter models.EntryFilter) *conditions {
	c := &conditions{}
	if filter.TenantID != "" {
		c.add("tenant_id = $%d", filter.TenantID)
	}
	if filter.AccountID != "" {
		c.add("account_id = $%d", filter.AccountID)
	}
	if filter.From != nil {
		c.add("effective_at >= $%d", *filter.From)
	}
	if filter.Until != nil {
		c.add("effective_at <= $%d", *filter.Until)
	}
	if filter.Before != nil {
		c.add("effective_at < $%d", *filter.Before)
	}
	return c
}

func (r reader) SumEntries(ctx context.Context, filter models.EntryFilter) ([]models.AccountTotals, error) {
	c := entryConditions(filter)
	rows, err := r.q.QueryContext(ctx, `
		SELECT account_id,
			COALESCE(SUM(amount) FILTER (WHERE type = 'debit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'credit'), 0)
		FROM entries`+c.where()+`
		GROUP BY account_id
		ORDER BY account_id`, c.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	totals := []models.AccountTotals{}
	for rows.Next() {
		var t models.AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Debits, &t.Credits); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r reader) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.Entry, error) {
	c := entryConditions(filter)
	rows, err := r.q.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries`+c.where()+` ORDER BY effective_at, id`, c.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UnbalancedTransactions flags transactions whose debit sum differs from
// their credit sum or from the transaction amount.
func (r reader) UnbalancedTransactions(ctx context.Context, tenantID string) ([]models.TransactionImbalance, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, amount, debits, credits FROM (
			SELECT t.id, t.amount,
				COALESCE(SUM(e.amount) FILTER (WHERE e.type = 'debit'), 0) AS debits,
				COALESCE(SUM(e.amount) FILTER (WHERE e.type = 'credit'), 0) AS credits
			FROM transactions t
			LEFT JOIN entries e ON e.transaction_id = t.id
			WHERE t.tenant_id = $1
			GROUP BY t.id, t.amount
		) sums
		WHERE debits <> credits OR debits <> amount
		ORDER BY id`, tenantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []models.TransactionImbalance{}
	for rows.Next() {
		var im models.TransactionImbalance
		if err := rows.Scan(&im.TransactionID, &im.Amount, &im.Debits, &im.Credits); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// InsertEntries appends entries; the schema rejects any later UPDATE or DELETE.
func (t *pgTx) InsertEntries(ctx context.Context, entries []models.Entry) error {
	for i := range entries {
		e := &entries[i]
		err := t.q.QueryRowContext(ctx, `
			INSERT INTO entries (tenant_id, transaction_id, account_id, type, amount, description, effective_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			e.TenantID, e.TransactionID, e.AccountID, string(e.Type), e.Amount, e.Description, e.EffectiveAt, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}
