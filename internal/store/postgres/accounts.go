package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const accountColumns = `id, tenant_id, ledger_id, name, code, type, subtype, description, is_active, metadata, created_at, updated_at`

type reader struct {
	q querier
}

func (r reader) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	var deactivatedAt sql.NullTime
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, is_active, created_at, deactivated_at
		FROM tenants
		WHERE id = $1`, id).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &deactivatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if deactivatedAt.Valid {
		t.DeactivatedAt = &deactivatedAt.Time
	}
	return &t, nil
}

func (r reader) GetLedger(ctx context.Context, id string) (*models.Ledger, error) {
	var l models.Ledger
	err := r.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, type, created_at
		FROM ledgers
		WHERE id = $1`, id).Scan(&l.ID, &l.TenantID, &l.Name, &l.Type, &l.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func (r reader) ListLedgers(ctx context.Context, tenantID string) ([]models.Ledger, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, tenant_id, name, type, created_at
		FROM ledgers
		WHERE tenant_id = $1
		ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledgers := []models.Ledger{}
	for rows.Next() {
		var l models.Ledger
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Name, &l.Type, &l.CreatedAt); err != nil {
			return nil, err
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, rows.Err()
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var subtype, description sql.NullString
	err := row.Scan(
		&a.ID, &a.TenantID, &a.LedgerID, &a.Name, &a.Code, &a.Type,
		&subtype, &description, &a.IsActive, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Subtype = subtype.String
	a.Description = description.String
	return &a, nil
}

func (r reader) getAccount(ctx context.Context, id, lockClause string) (*models.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`+lockClause, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r reader) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return r.getAccount(ctx, id, "")
}

func (r reader) ListAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	var c conditions
	c.add("tenant_id = $%d", filter.TenantID)
	if filter.Type != nil {
		c.add("type = $%d", string(*filter.Type))
	}
	if filter.LedgerID != "" {
		c.add("ledger_id = $%d", filter.LedgerID)
	}
	if filter.Active != nil {
		c.add("is_active = $%d", *filter.Active)
	}
	if filter.Search != "" {
		c.add("name ILIKE $%d", likePattern(filter.Search))
	}

	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts`+c.where()+` ORDER BY code`, c.args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r reader) CountAccountEntries(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE account_id = $1`, accountID).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (t *pgTx) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, is_active, created_at)
		VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.IsActive, tenant.CreatedAt)
	return mapError(err)
}

func (t *pgTx) DeactivateTenant(ctx context.Context, id string, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE tenants
		SET is_active = FALSE, deactivated_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return mapError(err)
	}
	return expectOneRow(result)
}

func (t *pgTx) CreateLedger(ctx context.Context, ledger *models.Ledger) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO ledgers (id, tenant_id, name, type, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ledger.ID, ledger.TenantID, ledger.Name, string(ledger.Type), ledger.CreatedAt)
	return mapError(err)
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.getAccount(ctx, id, " FOR UPDATE")
}

func (t *pgTx) ShareAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.getAccount(ctx, id, " FOR SHARE")
}

func (t *pgTx) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.TenantID, a.LedgerID, a.Name, a.Code, string(a.Type),
		nullString(a.Subtype), nullString(a.Description), a.IsActive, a.Metadata, a.CreatedAt, a.UpdatedAt)
	return mapError(err)
}

// UpdateAccount never touches code or type; both are immutable.
func (t *pgTx) UpdateAccount(ctx context.Context, a *models.Account) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE accounts
		SET name = $2, description = $3, is_active = $4, metadata = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, a.Name, nullString(a.Description), a.IsActive, a.Metadata, a.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	if n > 1 {
		return fmt.Errorf("expected one row, updated %d", n)
	}
	return nil
}
