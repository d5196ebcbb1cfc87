package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/ruralpay/ledger/internal/amount"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/handlers"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/seed"
	"github.com/ruralpay/ledger/internal/services"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or upgrade the ledger schema" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate

  Applies the schema, including the append-only and balanced-transaction
  triggers. Safe to run repeatedly.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(args)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	if err := database.Migrate(ctx, e.db); err != nil {
		fail("migration failed: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Println("schema is up to date")
	return subcommands.ExitSuccess
}

type seedCmd struct {
	file string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "load a chart of accounts from YAML" }
func (*seedCmd) Usage() string {
	return `ledgerctl seed -file <chart.yaml>

  Creates the tenant (or extends the one named by tenant.id), its ledgers and
  accounts. Accounts whose code already exists are skipped.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "chart.yaml", "Seed file to load.")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	chart, err := seed.LoadFile(c.file)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	e, err := openEnv(args)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer e.Close()
	deps, err := e.deps()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	res, err := seed.Apply(ctx, services.NewAccountRegistry(deps), chart)
	if err != nil {
		fail("seed failed: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("tenant %s: %d ledgers and %d accounts created, %d accounts skipped\n",
		res.TenantID, len(res.Ledgers), len(res.Accounts), len(res.Skipped))
	return subcommands.ExitSuccess
}

type trialBalanceCmd struct {
	tenant string
	start  string
	end    string
	json   bool
}

func (*trialBalanceCmd) Name() string     { return "trial-balance" }
func (*trialBalanceCmd) Synopsis() string { return "print the trial balance of a tenant" }
func (*trialBalanceCmd) Usage() string {
	return `ledgerctl trial-balance -tenant <id> [-start <date>] [-end <date>] [-json]

  Dates are YYYY-MM-DD or RFC 3339. The end date is inclusive. Exits non-zero
  when the ledger does not balance.
`
}

func (c *trialBalanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant ID.")
	f.StringVar(&c.start, "start", "", "Period start (defaults to the first day of the current month).")
	f.StringVar(&c.end, "end", "", "Period end (defaults to today).")
	f.BoolVar(&c.json, "json", false, "Print the report as JSON.")
}

func (c *trialBalanceCmd) period() (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Nanosecond)
	var err error
	if c.start != "" {
		if start, err = handlers.ParseDate(c.start, false); err != nil {
			return start, end, fmt.Errorf("-start: %w", err)
		}
	}
	if c.end != "" {
		if end, err = handlers.ParseDate(c.end, true); err != nil {
			return start, end, fmt.Errorf("-end: %w", err)
		}
	}
	return start, end, nil
}

func (c *trialBalanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" {
		fail("-tenant is required")
		return subcommands.ExitUsageError
	}
	start, end, err := c.period()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	e, err := openEnv(args)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer e.Close()
	deps, err := e.deps()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	ctx = services.WithCaller(ctx, services.Caller{TenantID: c.tenant, Subject: "ledgerctl"})
	report, err := services.NewReportGenerator(deps).TrialBalance(ctx, c.tenant, start, end)
	if err != nil {
		fail("trial balance failed: %v", err)
		return subcommands.ExitFailure
	}

	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printTrialBalance(report)
	return subcommands.ExitSuccess
}

func printTrialBalance(report *models.TrialBalance) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Code\tAccount\tType\tDebits\tCredits\tBalance\t\n")
	for _, line := range report.Accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", line.Code, line.Name, line.Type,
			amount.Display(line.DebitMovements, report.Currency),
			amount.Display(line.CreditMovements, report.Currency),
			amount.Display(line.CurrentBalance, report.Currency))
	}
	fmt.Fprintf(w, "\tTotal\t\t%s\t%s\t\t\n",
		amount.Display(report.TotalDebits, report.Currency),
		amount.Display(report.TotalCredits, report.Currency))
	w.Flush()
}

type verifyCmd struct {
	tenant string
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check that every transaction of a tenant balances" }
func (*verifyCmd) Usage() string {
	return `ledgerctl verify -tenant <id>

  Lists transactions whose debits differ from their credits or from their
  amount. Exits non-zero when any is found.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant ID.")
}

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" {
		fail("-tenant is required")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(args)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer e.Close()
	deps, err := e.deps()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	ctx = services.WithCaller(ctx, services.Caller{TenantID: c.tenant, Subject: "ledgerctl"})
	findings, err := services.NewReportGenerator(deps).VerifyIntegrity(ctx, c.tenant)
	for _, f := range findings {
		fmt.Printf("%s\tamount %s\tdebits %s\tcredits %s\n", f.TransactionID, f.Amount, f.Debits, f.Credits)
	}
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	fmt.Println("ledger is balanced")
	return subcommands.ExitSuccess
}
