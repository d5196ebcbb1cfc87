// Command ledgerctl runs operator tasks against the ledger database:
// schema migration, chart seeding and report checks.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&migrateCmd{}, "schema")
	commander.Register(&seedCmd{}, "schema")
	commander.Register(&trialBalanceCmd{}, "reports")
	commander.Register(&verifyCmd{}, "reports")

	envFile := flag.String("env", "", "path to a .env file (optional)")
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background(), *envFile)))
}
