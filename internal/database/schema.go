package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Schema creates the ledger tables. Balances are not stored anywhere; they
// are always derived from entries.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deactivated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ledgers (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL REFERENCES tenants(id),
    name TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('asset', 'liability', 'equity', 'revenue', 'expense')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledgers_tenant ON ledgers(tenant_id);

CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL REFERENCES tenants(id),
    ledger_id UUID NOT NULL REFERENCES ledgers(id),
    name TEXT NOT NULL,
    code TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('asset', 'liability', 'equity', 'revenue', 'expense')),
    subtype TEXT,
    description TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT accounts_tenant_code_key UNIQUE (tenant_id, code)
);

CREATE INDEX IF NOT EXISTS idx_accounts_tenant_type ON accounts(tenant_id, type);
CREATE INDEX IF NOT EXISTS idx_accounts_ledger ON accounts(ledger_id);

CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    tenant_id UUID NOT NULL REFERENCES tenants(id),
    type TEXT NOT NULL CHECK (type IN ('expense', 'income', 'transfer')),
    amount NUMERIC(20, 4) NOT NULL CHECK (amount > 0),
    currency CHAR(3) NOT NULL,
    description TEXT NOT NULL,
    date TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('processed', 'reversed')),
    idempotency_key TEXT NOT NULL,
    fingerprint TEXT,
    category_id UUID REFERENCES accounts(id),
    from_account_id UUID REFERENCES accounts(id),
    to_account_id UUID REFERENCES accounts(id),
    installment_number INTEGER,
    installment_count INTEGER,
    installment_group TEXT,
    reversal_of UUID REFERENCES transactions(id),
    reversed_by UUID REFERENCES transactions(id),
    reversed_at TIMESTAMPTZ,
    tags TEXT[] NOT NULL DEFAULT '{}',
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT transactions_tenant_idempotency_key UNIQUE (tenant_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant_date ON transactions(tenant_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_group ON transactions(tenant_id, installment_group);

CREATE TABLE IF NOT EXISTS entries (
    id BIGSERIAL PRIMARY KEY,
    tenant_id UUID NOT NULL REFERENCES tenants(id),
    transaction_id UUID NOT NULL REFERENCES transactions(id),
    account_id UUID NOT NULL REFERENCES accounts(id),
    type TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
    amount NUMERIC(20, 4) NOT NULL CHECK (amount > 0),
    description TEXT NOT NULL DEFAULT '',
    effective_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_entries_transaction ON entries(transaction_id);
CREATE INDEX IF NOT EXISTS idx_entries_account_effective ON entries(account_id, effective_at, id);
CREATE INDEX IF NOT EXISTS idx_entries_tenant_effective ON entries(tenant_id, effective_at);

-- Entries are append-only.
CREATE OR REPLACE FUNCTION entries_reject_mutation() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'entries are append-only (% rejected)', TG_OP
        USING ERRCODE = 'integrity_constraint_violation';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS entries_append_only ON entries;
CREATE TRIGGER entries_append_only
    BEFORE UPDATE OR DELETE ON entries
    FOR EACH ROW EXECUTE FUNCTION entries_reject_mutation();

-- Debits must equal credits for every transaction at commit time.
CREATE OR REPLACE FUNCTION entries_check_balance() RETURNS trigger AS $$
DECLARE
    debit_sum NUMERIC;
    credit_sum NUMERIC;
BEGIN
    SELECT COALESCE(SUM(amount) FILTER (WHERE type = 'debit'), 0),
           COALESCE(SUM(amount) FILTER (WHERE type = 'credit'), 0)
      INTO debit_sum, credit_sum
      FROM entries
     WHERE transaction_id = NEW.transaction_id;

    IF debit_sum <> credit_sum THEN
        RAISE EXCEPTION 'transaction % is unbalanced: debits % credits %',
            NEW.transaction_id, debit_sum, credit_sum
            USING ERRCODE = 'integrity_constraint_violation';
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS entries_balanced ON entries;
CREATE CONSTRAINT TRIGGER entries_balanced
    AFTER INSERT ON entries
    DEFERRABLE INITIALLY DEFERRED
    FOR EACH ROW EXECUTE FUNCTION entries_check_balance();
`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("Database schema applied")
	return nil
}
