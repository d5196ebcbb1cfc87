package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/amount"
	"github.com/ruralpay/ledger/internal/apperrors"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/metrics"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Outcome tells a fresh create apart from an idempotent replay.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "already_exists"
)

// LegResult is the outcome of one stored transaction. A request without
// installments has exactly one leg.
type LegResult struct {
	Outcome     Outcome
	Transaction *models.Transaction
}

type CreateResult struct {
	Legs []LegResult
}

// Created reports whether any leg was written by this call.
func (r *CreateResult) Created() bool {
	for _, leg := range r.Legs {
		if leg.Outcome == OutcomeCreated {
			return true
		}
	}
	return false
}

func (r *CreateResult) Transactions() []models.Transaction {
	out := make([]models.Transaction, 0, len(r.Legs))
	for _, leg := range r.Legs {
		out = append(out, *leg.Transaction)
	}
	return out
}

type CreateTransactionInput struct {
	TenantID       string          `json:"tenantId,omitempty"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Description    string          `json:"description" validate:"required,max=500"`
	CategoryID     string          `json:"categoryId,omitempty"`
	FromAccountID  string          `json:"fromAccountId,omitempty"`
	ToAccountID    string          `json:"toAccountId,omitempty"`
	Date           time.Time       `json:"date" validate:"required"`
	Installments   int             `json:"installments,omitempty" validate:"gte=0"`
	Tags           []string        `json:"tags,omitempty" validate:"max=20,dive,required,max=50"`
	Metadata       models.Metadata `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"required,max=200"`
}

// UpdateTransactionInput carries the non-structural fields. Amount and Type
// are accepted only so that an attempt to change them can be refused.
type UpdateTransactionInput struct {
	Description *string          `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Tags        *[]string        `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
	Metadata    models.Metadata  `json:"metadata,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Type        *string          `json:"type,omitempty"`
}

// TransactionProcessor is the only writer of transactions created from
// client requests. Every transaction it stores has debits == credits == amount.
type TransactionProcessor struct {
	deps      Deps
	validator *ValidationHelper
}

func NewTransactionProcessor(deps Deps) *TransactionProcessor {
	return &TransactionProcessor{
		deps:      deps.withDefaults(),
		validator: NewValidationHelper(),
	}
}

// leg is one transaction to be stored: the whole request, or one installment.
type leg struct {
	number         int
	count          int
	amount         decimal.Decimal
	date           time.Time
	description    string
	idempotencyKey string
	group          string
}

// Create validates the request, expands it into entry pairs and stores it.
// Replaying an idempotency key returns the stored transaction unchanged.
func (p *TransactionProcessor) Create(ctx context.Context, in CreateTransactionInput) (*CreateResult, error) {
	tenantID, err := ScopeTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	in.TenantID = tenantID

	if err := p.validateCreate(&in); err != nil {
		return nil, err
	}
	legs, err := p.planLegs(in)
	if err != nil {
		return nil, err
	}
	fingerprint := requestFingerprint(in)

	stored, err := p.storedResult(ctx, in, fingerprint)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	result := &CreateResult{Legs: make([]LegResult, 0, len(legs))}
	for _, l := range legs {
		lr, err := p.createLeg(ctx, in, l, fingerprint)
		if err != nil {
			if len(result.Legs) > 0 {
				log.Printf("[TRANSACTION] installment fan-out %s stopped at %d/%d: %v", l.group, l.number, l.count, err)
			}
			return nil, err
		}
		result.Legs = append(result.Legs, lr)
	}
	return result, nil
}

func (p *TransactionProcessor) validateCreate(in *CreateTransactionInput) error {
	if !in.Amount.IsPositive() {
		return apperrors.New(apperrors.KindInvalidAmount, "amount must be greater than zero")
	}
	txType := models.TransactionType(strings.ToLower(strings.TrimSpace(in.Type)))
	if !txType.Valid() {
		return apperrors.New(apperrors.KindInvalidAccountType,
			"transaction type %q must be one of expense, income, transfer", in.Type)
	}
	in.Type = string(txType)

	if err := p.validator.ValidateStruct(in); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "Validation failed")
	}

	if in.Currency == "" {
		in.Currency = p.deps.Currency
	}
	in.Currency = strings.ToUpper(in.Currency)
	if in.Currency != p.deps.Currency {
		return apperrors.New(apperrors.KindValidation, "currency %s is not supported, the ledger books in %s", in.Currency, p.deps.Currency)
	}
	if _, err := amount.ToMinor(in.Amount, in.Currency); err != nil {
		return apperrors.Wrap(apperrors.KindInvalidAmount, err, err.Error())
	}

	switch txType {
	case models.TransactionTypeExpense:
		if in.CategoryID == "" || in.FromAccountID == "" {
			return apperrors.New(apperrors.KindValidation, "expense requires categoryId and fromAccountId")
		}
	case models.TransactionTypeIncome:
		if in.CategoryID == "" || in.ToAccountID == "" {
			return apperrors.New(apperrors.KindValidation, "income requires categoryId and toAccountId")
		}
	case models.TransactionTypeTransfer:
		if in.FromAccountID == "" || in.ToAccountID == "" {
			return apperrors.New(apperrors.KindValidation, "transfer requires fromAccountId and toAccountId")
		}
		if in.FromAccountID == in.ToAccountID {
			return apperrors.New(apperrors.KindValidation, "transfer source and destination must differ")
		}
	}

	if in.Installments > p.deps.MaxInstallments {
		return apperrors.New(apperrors.KindValidation, "installments must not exceed %d", p.deps.MaxInstallments)
	}
	return nil
}

// planLegs fans a request out into its installments. Installment i carries
// the i-th share, is dated i-1 months after the request date and gets its
// own idempotency key so a retried fan-out never duplicates a leg.
func (p *TransactionProcessor) planLegs(in CreateTransactionInput) ([]leg, error) {
	if in.Installments <= 1 {
		return []leg{{
			amount:         in.Amount,
			date:           in.Date,
			description:    in.Description,
			idempotencyKey: in.IdempotencyKey,
		}}, nil
	}

	shares, err := amount.Split(in.Amount, in.Installments, in.Currency)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidAmount, err, err.Error())
	}
	legs := make([]leg, in.Installments)
	for i := range legs {
		n := i + 1
		legs[i] = leg{
			number:         n,
			count:          in.Installments,
			amount:         shares[i],
			date:           addMonths(in.Date, i),
			description:    fmt.Sprintf("%s (%d/%d)", in.Description, n, in.Installments),
			idempotencyKey: fmt.Sprintf("%s#%d/%d", in.IdempotencyKey, n, in.Installments),
			group:          in.IdempotencyKey,
		}
	}
	return legs, nil
}

// addMonths moves t forward by n calendar months, clamping the day to the
// last day of the target month.
func addMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}

// requestFingerprint hashes the normalized request so a replay with a
// different payload can be told apart from a plain retry.
func requestFingerprint(in CreateTransactionInput) string {
	tags := append([]string(nil), in.Tags...)
	sort.Strings(tags)
	parts := []string{
		in.Type,
		in.Amount.String(),
		in.Currency,
		in.Description,
		in.CategoryID,
		in.FromAccountID,
		in.ToAccountID,
		in.Date.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(in.Installments),
		strings.Join(tags, ","),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func (p *TransactionProcessor) replay(existing *models.Transaction, fingerprint string) LegResult {
	if existing.Fingerprint != "" && existing.Fingerprint != fingerprint {
		log.Printf("[TRANSACTION] idempotency key %s replayed with a different payload, returning stored transaction %s",
			existing.IdempotencyKey, existing.ID)
	}
	metrics.TransactionsTotal.WithLabelValues(string(existing.Type), string(OutcomeAlreadyExists)).Inc()
	p.deps.Audit.LogTransaction(audit.EventTransactionReplayed, existing)
	return LegResult{Outcome: OutcomeAlreadyExists, Transaction: existing}
}

// storedResult replays what an earlier request booked under the same client
// key when the new request splits it differently. A request with the stored
// installment count returns nil and resumes leg by leg, so an interrupted
// fan-out completes without duplicating legs.
func (p *TransactionProcessor) storedResult(ctx context.Context, in CreateTransactionInput, fingerprint string) (*CreateResult, error) {
	if in.Installments > 1 {
		existing, err := p.deps.Store.GetTransactionByIdempotencyKey(ctx, in.TenantID, in.IdempotencyKey)
		if err == nil {
			return &CreateResult{Legs: []LegResult{p.replay(existing, fingerprint)}}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	group, err := p.deps.Store.ListInstallmentGroup(ctx, in.TenantID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if len(group) == 0 || group[0].InstallmentCount == in.Installments {
		return nil, nil
	}
	result := &CreateResult{Legs: make([]LegResult, 0, len(group))}
	for i := range group {
		result.Legs = append(result.Legs, p.replay(&group[i], fingerprint))
	}
	return result, nil
}

func (p *TransactionProcessor) createLeg(ctx context.Context, in CreateTransactionInput, l leg, fingerprint string) (LegResult, error) {
	existing, err := p.deps.Store.GetTransactionByIdempotencyKey(ctx, in.TenantID, l.idempotencyKey)
	if err == nil {
		return p.replay(existing, fingerprint), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return LegResult{}, err
	}

	var created *models.Transaction
	err = p.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		if err := requireActiveTenant(ctx, tx, in.TenantID); err != nil {
			return err
		}
		debit, credit, err := p.resolveEntryPair(ctx, tx, in)
		if err != nil {
			return err
		}

		now := p.deps.Now()
		t := &models.Transaction{
			ID:                p.deps.NewID(),
			TenantID:          in.TenantID,
			Type:              models.TransactionType(in.Type),
			Amount:            l.amount,
			Currency:          in.Currency,
			Description:       l.description,
			Date:              l.date,
			Status:            models.TransactionStatusProcessed,
			IdempotencyKey:    l.idempotencyKey,
			Fingerprint:       fingerprint,
			CategoryID:        in.CategoryID,
			FromAccountID:     in.FromAccountID,
			ToAccountID:       in.ToAccountID,
			InstallmentNumber: l.number,
			InstallmentCount:  l.count,
			InstallmentGroup:  l.group,
			Tags:              append([]string{}, in.Tags...),
			Metadata:          in.Metadata,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}

		entries := []models.Entry{
			newEntry(t, debit.ID, models.EntryTypeDebit, now),
			newEntry(t, credit.ID, models.EntryTypeCredit, now),
		}
		if err := tx.InsertEntries(ctx, entries); err != nil {
			return err
		}
		t.Entries = entries
		created = t
		return nil
	})

	if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key committed first.
		winner, lookupErr := p.deps.Store.GetTransactionByIdempotencyKey(ctx, in.TenantID, l.idempotencyKey)
		if lookupErr != nil {
			return LegResult{}, fmt.Errorf("resolve idempotency race for %s: %w", l.idempotencyKey, lookupErr)
		}
		return p.replay(winner, fingerprint), nil
	}
	if err != nil {
		return LegResult{}, err
	}

	log.Printf("[TRANSACTION] %s %s recorded: %s", created.Type, created.ID, amount.Display(created.Amount, created.Currency))
	metrics.TransactionsTotal.WithLabelValues(string(created.Type), string(OutcomeCreated)).Inc()
	p.deps.Audit.LogTransaction(audit.EventTransactionCreated, created)
	p.deps.afterCommit(ctx, created.TenantID, transactionEvent(events.TypeTransactionCreated, created, created.CreatedAt))
	return LegResult{Outcome: OutcomeCreated, Transaction: created}, nil
}

func newEntry(t *models.Transaction, accountID string, entryType models.EntryType, now time.Time) models.Entry {
	return models.Entry{
		TenantID:      t.TenantID,
		TransactionID: t.ID,
		AccountID:     accountID,
		Type:          entryType,
		Amount:        t.Amount,
		Description:   t.Description,
		EffectiveAt:   t.Date,
		CreatedAt:     now,
	}
}

// resolveEntryPair loads the referenced accounts and picks the debit and
// credit side for the transaction type:
//
//	expense:  debit category,  credit fromAccount
//	income:   debit toAccount, credit category
//	transfer: debit toAccount, credit fromAccount
func (p *TransactionProcessor) resolveEntryPair(ctx context.Context, tx store.Tx, in CreateTransactionInput) (debit, credit *models.Account, err error) {
	ids := []string{}
	for _, id := range []string{in.CategoryID, in.FromAccountID, in.ToAccountID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	// shared locks in a stable order keep concurrent deactivation out
	sort.Strings(ids)

	accounts := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		if _, seen := accounts[id]; seen {
			continue
		}
		account, err := p.loadUsableAccount(ctx, tx, in.TenantID, id)
		if err != nil {
			return nil, nil, err
		}
		accounts[id] = account
	}

	switch models.TransactionType(in.Type) {
	case models.TransactionTypeExpense:
		category := accounts[in.CategoryID]
		if category.Type != models.AccountTypeExpense {
			return nil, nil, apperrors.New(apperrors.KindInvalidAccountType,
				"expense category %s must be an expense account, got %s", category.Code, category.Type)
		}
		return category, accounts[in.FromAccountID], nil
	case models.TransactionTypeIncome:
		category := accounts[in.CategoryID]
		if category.Type != models.AccountTypeRevenue {
			return nil, nil, apperrors.New(apperrors.KindInvalidAccountType,
				"income category %s must be a revenue account, got %s", category.Code, category.Type)
		}
		return accounts[in.ToAccountID], category, nil
	default:
		return accounts[in.ToAccountID], accounts[in.FromAccountID], nil
	}
}

func (p *TransactionProcessor) loadUsableAccount(ctx context.Context, tx store.Tx, tenantID, id string) (*models.Account, error) {
	account, err := tx.ShareAccount(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.KindAccountNotFound, "account", id)
	}
	if err := AuthorizeTenant(tenantID, account.TenantID, "account", id); err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperrors.New(apperrors.KindValidation, "account %s is inactive", account.Code)
	}
	ledger, err := tx.GetLedger(ctx, account.LedgerID)
	if err != nil || ledger.TenantID != tenantID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, apperrors.New(apperrors.KindLedgerNotFound, "ledger %s of account %s not found", account.LedgerID, account.Code)
	}
	return account, nil
}

// Get returns a transaction with its entries.
func (p *TransactionProcessor) Get(ctx context.Context, id string) (*models.Transaction, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	t, err := p.deps.Store.GetTransaction(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.KindNotFound, "transaction", id)
	}
	if err := AuthorizeTenant(tenantID, t.TenantID, "transaction", id); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns one page of the caller's transactions, newest first.
func (p *TransactionProcessor) List(ctx context.Context, filter models.TransactionFilter) (*models.TransactionPage, error) {
	tenantID, err := ScopeTenant(ctx, filter.TenantID)
	if err != nil {
		return nil, err
	}
	filter.TenantID = tenantID
	filter.Search = strings.TrimSpace(filter.Search)

	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Page < 1 {
		return nil, apperrors.New(apperrors.KindValidation, "page must be at least 1")
	}
	if filter.Limit < 1 || filter.Limit > maxPageSize {
		return nil, apperrors.New(apperrors.KindValidation, "limit must be between 1 and %d", maxPageSize)
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperrors.New(apperrors.KindValidation, "unknown transaction type %q", *filter.Type)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, apperrors.New(apperrors.KindValidation, "startDate must not be after endDate")
	}
	if filter.MinAmount != nil && filter.MaxAmount != nil && filter.MinAmount.GreaterThan(*filter.MaxAmount) {
		return nil, apperrors.New(apperrors.KindValidation, "minAmount must not exceed maxAmount")
	}
	return p.deps.Store.ListTransactions(ctx, filter)
}

// Update changes description, tags or metadata. Amount, type and entries
// never change after commit.
func (p *TransactionProcessor) Update(ctx context.Context, id string, patch UpdateTransactionInput) (*models.Transaction, error) {
	tenantID, err := ScopeTenant(ctx, "")
	if err != nil {
		return nil, err
	}
	if err := p.validator.ValidateStruct(&patch); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, err, "Validation failed")
	}

	var updated *models.Transaction
	err = p.deps.Store.WithinTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return notFound(err, apperrors.KindNotFound, "transaction", id)
		}
		if err := AuthorizeTenant(tenantID, t.TenantID, "transaction", id); err != nil {
			return err
		}
		if patch.Amount != nil && !patch.Amount.Equal(t.Amount) {
			return apperrors.New(apperrors.KindValidation, "amount of transaction %s is immutable", id)
		}
		if patch.Type != nil && models.TransactionType(strings.ToLower(*patch.Type)) != t.Type {
			return apperrors.New(apperrors.KindValidation, "type of transaction %s is immutable", id)
		}

		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Tags != nil {
			t.Tags = append([]string{}, (*patch.Tags)...)
		}
		if patch.Metadata != nil {
			t.Metadata = patch.Metadata
		}
		t.UpdatedAt = p.deps.Now()

		if err := tx.UpdateTransactionDetails(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.deps.Audit.LogTransaction(audit.EventTransactionUpdated, updated)
	return updated, nil
}
