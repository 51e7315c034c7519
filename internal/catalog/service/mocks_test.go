package service

import (
	"context"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/domain"
	r "github.com/btsutskiridze/OnlineStore/internal/catalog/repository"
)

// MockStore implements r.StoreInterface for testing
type MockStore struct {
	Products map[int64]domain.Product
	GetErr   error

	DecrementErrs  []error // one per call, last repeats
	DecrementCalls int
	DecrementKey   string
	DecrementItems []domain.QuantityItem

	ReplenishErr   error
	ReplenishKey   string
	ReplenishItems []domain.QuantityItem
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) RunMigrations(*r.Credentials) error {
	return nil
}

func (m *MockStore) GetProductsByIDs(_ context.Context, _ []int64) (map[int64]domain.Product, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.Products, nil
}

func (m *MockStore) DecrementStockBatch(_ context.Context, idempotencyKey string, items []domain.QuantityItem) error {
	m.DecrementKey = idempotencyKey
	m.DecrementItems = items
	idx := m.DecrementCalls
	m.DecrementCalls++
	if len(m.DecrementErrs) == 0 {
		return nil
	}
	if idx >= len(m.DecrementErrs) {
		idx = len(m.DecrementErrs) - 1
	}
	return m.DecrementErrs[idx]
}

func (m *MockStore) ReplenishStockBatch(_ context.Context, idempotencyKey string, items []domain.QuantityItem) error {
	m.ReplenishKey = idempotencyKey
	m.ReplenishItems = items
	return m.ReplenishErr
}
