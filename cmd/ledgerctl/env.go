package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store/postgres"
	"github.com/shopspring/decimal"
)

// env is what every command needs: configuration and an open pool.
type env struct {
	cfg *config.Config
	db  *sql.DB
}

func openEnv(args []interface{}) (*env, error) {
	envFile := ""
	if len(args) > 0 {
		envFile, _ = args[0].(string)
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db}, nil
}

// deps wires the services without cache or event publisher: operator runs
// read or write the database directly and report to stdout.
func (e *env) deps() (services.Deps, error) {
	tolerance, err := decimal.NewFromString(e.cfg.Ledger.BalanceTolerance)
	if err != nil {
		return services.Deps{}, fmt.Errorf("ledger.balance_tolerance: %w", err)
	}
	return services.Deps{
		Store:            postgres.NewStore(e.db),
		Audit:            audit.NewAuditLogger(),
		Currency:         e.cfg.Ledger.Currency,
		MaxInstallments:  e.cfg.Ledger.MaxInstallments,
		BalanceTolerance: tolerance,
	}, nil
}

func (e *env) Close() {
	e.db.Close()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
