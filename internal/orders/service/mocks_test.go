package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/btsutskiridze/OnlineStore/internal/orders/catalog"
	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
	r "github.com/btsutskiridze/OnlineStore/internal/orders/repository"
)

// MockStore implements r.StoreInterface for testing
type MockStore struct {
	Record    *domain.IdempotencyRecord
	GetRecErr error

	InsertErr      error
	InsertedRecord *domain.IdempotencyRecord // captures the inserted record

	TakeoverGen int64
	TakeoverErr error

	FailErr        error
	FailedGen      *int64 // captures the generation passed to FailIdempotencyRecord
	FailedKey      string

	CreateOrderErr error
	CreatedOrder   *domain.Order // captures the order passed to CreateOrder
	NextOrderID    int64

	Order       *domain.Order
	GetOrderErr error
	Orders      []*domain.Order
	ListErr     error

	RejectErr       error
	RejectedOrderID *int64

	FinalizeErr    error
	FinalizeParams *r.FinalizeOrderParams

	CancelErr        error
	CancelledID      *int64
	CancelledVersion *int64
	CancelEvent      *r.OutboxEvent
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) RunMigrations(*r.Credentials) error {
	return nil
}

func (m *MockStore) GetIdempotencyRecord(_ context.Context, _ string) (*domain.IdempotencyRecord, error) {
	if m.GetRecErr != nil {
		return nil, m.GetRecErr
	}
	return m.Record, nil
}

func (m *MockStore) InsertIdempotencyRecord(_ context.Context, key, requestHash string) (*domain.IdempotencyRecord, error) {
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	rec := &domain.IdempotencyRecord{
		ID:             1,
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Status:         domain.IdempotencyStatusStarted,
		Generation:     1,
	}
	m.InsertedRecord = rec
	return rec, nil
}

func (m *MockStore) TakeOverIdempotencyRecord(_ context.Context, _ string, _ int64) (int64, error) {
	if m.TakeoverErr != nil {
		return 0, m.TakeoverErr
	}
	return m.TakeoverGen, nil
}

func (m *MockStore) FailIdempotencyRecord(_ context.Context, key string, generation int64) error {
	m.FailedKey = key
	m.FailedGen = &generation
	return m.FailErr
}

func (m *MockStore) CreateOrder(_ context.Context, order *domain.Order) error {
	if m.CreateOrderErr != nil {
		return m.CreateOrderErr
	}
	order.ID = m.NextOrderID
	order.RowVersion = 1
	m.CreatedOrder = order
	return nil
}

func (m *MockStore) GetOrderByExternalID(_ context.Context, _ uuid.UUID, _ string) (*domain.Order, error) {
	if m.GetOrderErr != nil {
		return nil, m.GetOrderErr
	}
	return m.Order, nil
}

func (m *MockStore) ListOrdersByUserID(_ context.Context, _ string) ([]*domain.Order, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Orders, nil
}

func (m *MockStore) RejectOrder(_ context.Context, orderID int64) error {
	m.RejectedOrderID = &orderID
	return m.RejectErr
}

func (m *MockStore) FinalizeOrder(_ context.Context, p r.FinalizeOrderParams) error {
	if m.FinalizeErr != nil {
		return m.FinalizeErr
	}
	m.FinalizeParams = &p
	return nil
}

func (m *MockStore) CancelOrder(_ context.Context, orderID, expectedVersion int64, event *r.OutboxEvent) error {
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.CancelledID = &orderID
	m.CancelledVersion = &expectedVersion
	m.CancelEvent = event
	return nil
}

func (m *MockStore) GetUnprocessedEvents(_ context.Context, _ int) ([]*r.OutboxEvent, error) {
	return nil, nil
}

func (m *MockStore) MarkEventAsProcessed(_ context.Context, _ uuid.UUID) error {
	return nil
}

// MockCatalog implements CatalogGateway for testing
type MockCatalog struct {
	Results     []catalog.ValidationResult
	ValidateErr error

	DecrementErr   error
	DecrementKey   string
	DecrementItems []catalog.QuantityItem

	ReplenishErr   error
	ReplenishKey   string
	ReplenishItems []catalog.QuantityItem

	ValidatedItems []catalog.QuantityItem
}

func (m *MockCatalog) Validate(_ context.Context, items []catalog.QuantityItem) ([]catalog.ValidationResult, error) {
	m.ValidatedItems = items
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	return m.Results, nil
}

func (m *MockCatalog) DecrementStock(_ context.Context, idempotencyKey string, items []catalog.QuantityItem) error {
	m.DecrementKey = idempotencyKey
	m.DecrementItems = items
	return m.DecrementErr
}

func (m *MockCatalog) ReplenishStock(_ context.Context, idempotencyKey string, items []catalog.QuantityItem) error {
	m.ReplenishKey = idempotencyKey
	m.ReplenishItems = items
	return m.ReplenishErr
}
