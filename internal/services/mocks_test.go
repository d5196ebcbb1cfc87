package services

import (
	"context"
	"sync"

	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.TransactionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// racingStore hides committed idempotency keys from the first lookups, the
// way a concurrent writer that commits between pre-check and insert would.
type racingStore struct {
	store.Store

	mu     sync.Mutex
	misses int
}

func (s *racingStore) GetTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Transaction, error) {
	s.mu.Lock()
	if s.misses > 0 {
		s.misses--
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	s.mu.Unlock()
	return s.Store.GetTransactionByIdempotencyKey(ctx, tenantID, key)
}

// writingStore calls onSum once, right after the first SumEntries, the way
// a write committing while a report is being computed would.
type writingStore struct {
	store.Store

	once  sync.Once
	onSum func()
}

func (s *writingStore) SumEntries(ctx context.Context, filter models.EntryFilter) ([]models.AccountTotals, error) {
	totals, err := s.Store.SumEntries(ctx, filter)
	s.once.Do(s.onSum)
	return totals, err
}
