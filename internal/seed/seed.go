// Package seed loads a chart of accounts from YAML and books it through the
// account registry.
package seed

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"gopkg.in/yaml.v3"
)

type TenantSpec struct {
	// ID selects an existing tenant; when empty a new tenant named Name is created.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type AccountSpec struct {
	Code        string          `yaml:"code"`
	Name        string          `yaml:"name"`
	Subtype     string          `yaml:"subtype"`
	Description string          `yaml:"description"`
	Metadata    models.Metadata `yaml:"metadata"`
}

type LedgerSpec struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"`
	Accounts []AccountSpec `yaml:"accounts"`
}

// Chart is the content of a seed file.
type Chart struct {
	Tenant  TenantSpec   `yaml:"tenant"`
	Ledgers []LedgerSpec `yaml:"ledgers"`
}

// Result lists what Apply created. Skipped holds the codes of accounts that
// already existed.
type Result struct {
	TenantID string
	Ledgers  []models.Ledger
	Accounts []models.Account
	Skipped  []string
}

func Parse(r io.Reader) (*Chart, error) {
	var chart Chart
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&chart); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if chart.Tenant.ID == "" && strings.TrimSpace(chart.Tenant.Name) == "" {
		return nil, fmt.Errorf("tenant needs an id or a name")
	}
	for i, l := range chart.Ledgers {
		if !models.AccountType(strings.ToLower(l.Type)).Valid() {
			return nil, fmt.Errorf("ledger %d (%s): unknown type %q", i+1, l.Name, l.Type)
		}
	}
	return &chart, nil
}

func LoadFile(path string) (*Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Apply creates the tenant, its ledgers and accounts. A ledger with the same
// name and type is reused and accounts whose code is taken are skipped, so a
// chart can be applied again after it has grown.
func Apply(ctx context.Context, registry *services.AccountRegistry, chart *Chart) (*Result, error) {
	res := &Result{TenantID: chart.Tenant.ID}
	if res.TenantID == "" {
		tenant, err := registry.CreateTenant(ctx, chart.Tenant.Name)
		if err != nil {
			return nil, err
		}
		res.TenantID = tenant.ID
	}
	ctx = services.WithCaller(ctx, services.Caller{TenantID: res.TenantID, Subject: "seed"})

	existing, err := registry.ListLedgers(ctx, "")
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.Ledger, len(existing))
	for _, l := range existing {
		byKey[ledgerKey(l.Name, string(l.Type))] = l
	}

	for _, spec := range chart.Ledgers {
		ledger, ok := byKey[ledgerKey(spec.Name, spec.Type)]
		if !ok {
			created, err := registry.CreateLedger(ctx, services.CreateLedgerInput{Name: spec.Name, Type: spec.Type})
			if err != nil {
				return nil, fmt.Errorf("ledger %s: %w", spec.Name, err)
			}
			ledger = *created
			byKey[ledgerKey(spec.Name, spec.Type)] = ledger
			res.Ledgers = append(res.Ledgers, ledger)
		}

		for _, a := range spec.Accounts {
			account, err := registry.CreateAccount(ctx, services.CreateAccountInput{
				LedgerID:    ledger.ID,
				Name:        a.Name,
				Code:        a.Code,
				Type:        string(ledger.Type),
				Subtype:     a.Subtype,
				Description: a.Description,
				Metadata:    a.Metadata,
			})
			if apperrors.KindOf(err) == apperrors.KindDuplicateCode {
				log.Printf("[SEED] account %s exists, skipped", a.Code)
				res.Skipped = append(res.Skipped, a.Code)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", a.Code, err)
			}
			res.Accounts = append(res.Accounts, *account)
		}
	}
	return res, nil
}

func ledgerKey(name, accountType string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(accountType)
}
