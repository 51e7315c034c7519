package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btsutskiridze/OnlineStore/internal/orders/catalog"
	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
	r "github.com/btsutskiridze/OnlineStore/internal/orders/repository"
)

func newTestCreationService(store *MockStore, gateway *MockCatalog) *CreationServiceImpl {
	svc := NewCreationService(store, gateway)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func twoProductResults() []catalog.ValidationResult {
	return []catalog.ValidationResult{
		{ProductID: 1, RequestedQuantity: 2, Exists: true, CanFulfill: true, Name: "Mechanical Keyboard", SKU: "KB-001", Price: 10.00},
		{ProductID: 2, RequestedQuantity: 1, Exists: true, CanFulfill: true, Name: "USB Hub", SKU: "HUB-007", Price: 35.00},
	}
}

func requireKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, kind, svcErr.Kind)
	return svcErr
}

func TestCreateOrder_Success(t *testing.T) {
	store := &MockStore{GetRecErr: r.ErrIdempotencyKeyNotFound, NextOrderID: 42}
	gateway := &MockCatalog{Results: twoProductResults()}
	svc := newTestCreationService(store, gateway)

	items := []ItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "CONFIRMED", details.Status)
	assert.Equal(t, 55.00, details.TotalAmount)
	require.Len(t, details.Items, 2)
	assert.Equal(t, 20.00, details.Items[0].LineTotal)
	assert.Equal(t, "USB Hub", details.Items[1].ProductName)

	// stock was reserved under the order's own key namespace
	require.NotNil(t, store.CreatedOrder)
	assert.Equal(t, "order:"+store.CreatedOrder.ExternalID.String(), gateway.DecrementKey)

	// finalize carried the cached response and the confirmation event
	require.NotNil(t, store.FinalizeParams)
	assert.Equal(t, "key-1", store.FinalizeParams.IdempotencyKey)
	assert.Equal(t, int64(1), store.FinalizeParams.Generation)
	assert.Equal(t, int64(42), store.FinalizeParams.OrderID)
	assert.Equal(t, http.StatusCreated, store.FinalizeParams.ResponseCode)
	require.NotNil(t, store.FinalizeParams.Event)
	assert.Equal(t, EventOrderConfirmed, store.FinalizeParams.Event.EventType)

	var cached OrderDetails
	require.NoError(t, json.Unmarshal(store.FinalizeParams.ResponseBody, &cached))
	assert.Equal(t, details.ID, cached.ID)
	assert.Equal(t, details.RowVersion, cached.RowVersion)
}

func TestCreateOrder_InvalidRequests(t *testing.T) {
	svc := newTestCreationService(&MockStore{}, &MockCatalog{})

	cases := []struct {
		name  string
		key   string
		items []ItemRequest
	}{
		{"missing idempotency key", "  ", []ItemRequest{{ProductID: 1, Quantity: 1}}},
		{"no items", "key", nil},
		{"zero quantity", "key", []ItemRequest{{ProductID: 1, Quantity: 0}}},
		{"negative quantity", "key", []ItemRequest{{ProductID: 1, Quantity: -3}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details, err := svc.CreateOrder(context.Background(), "user-1", tc.key, tc.items)
			assert.Nil(t, details)
			requireKind(t, err, KindInvalidInput)
		})
	}
}

func TestCreateOrder_ReplaysCompletedRequest(t *testing.T) {
	items := []ItemRequest{{ProductID: 1, Quantity: 2}}
	fingerprint := requestFingerprint(normalizeItems(items))

	cachedBody, err := json.Marshal(&OrderDetails{ID: "order-ext-id", Status: "CONFIRMED", TotalAmount: 20.00})
	require.NoError(t, err)
	code := http.StatusCreated

	store := &MockStore{Record: &domain.IdempotencyRecord{
		IdempotencyKey: "key-1",
		RequestHash:    fingerprint,
		Status:         domain.IdempotencyStatusCompleted,
		ResponseCode:   &code,
		ResponseBody:   cachedBody,
		Generation:     1,
	}}
	gateway := &MockCatalog{}
	svc := newTestCreationService(store, gateway)

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	require.NoError(t, err)
	assert.Equal(t, "order-ext-id", details.ID)
	assert.Equal(t, 20.00, details.TotalAmount)

	// replay is a pure read: nothing else runs
	assert.Nil(t, gateway.ValidatedItems)
	assert.Empty(t, gateway.DecrementKey)
	assert.Nil(t, store.CreatedOrder)
}

func TestCreateOrder_KeyReusedWithDifferentPayload(t *testing.T) {
	store := &MockStore{Record: &domain.IdempotencyRecord{
		IdempotencyKey: "key-1",
		RequestHash:    "a-different-fingerprint",
		Status:         domain.IdempotencyStatusCompleted,
		Generation:     1,
	}}
	svc := newTestCreationService(store, &MockCatalog{})

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", []ItemRequest{{ProductID: 1, Quantity: 2}})

	assert.Nil(t, details)
	requireKind(t, err, KindIdempotencyConflict)
}

func TestCreateOrder_PriorFailureIsTerminal(t *testing.T) {
	items := []ItemRequest{{ProductID: 1, Quantity: 2}}
	store := &MockStore{Record: &domain.IdempotencyRecord{
		IdempotencyKey: "key-1",
		RequestHash:    requestFingerprint(normalizeItems(items)),
		Status:         domain.IdempotencyStatusFailed,
		Generation:     1,
	}}
	svc := newTestCreationService(store, &MockCatalog{})

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	assert.Nil(t, details)
	requireKind(t, err, KindIdempotencyConflict)
}

func TestCreateOrder_DuplicateWhileInFlight(t *testing.T) {
	items := []ItemRequest{{ProductID: 1, Quantity: 2}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	touched := now.Add(-10 * time.Second)

	store := &MockStore{
		Record: &domain.IdempotencyRecord{
			IdempotencyKey: "key-1",
			RequestHash:    requestFingerprint(normalizeItems(items)),
			Status:         domain.IdempotencyStatusStarted,
			Generation:     1,
			CreatedAt:      touched,
		},
		TakeoverErr: errors.New("takeover must not be attempted"),
	}
	svc := newTestCreationService(store, &MockCatalog{})

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	assert.Nil(t, details)
	requireKind(t, err, KindRequestInFlight)
}

func TestCreateOrder_LosesInsertRace(t *testing.T) {
	store := &MockStore{
		GetRecErr: r.ErrIdempotencyKeyNotFound,
		InsertErr: r.ErrDuplicateIdempotencyKey,
	}
	svc := newTestCreationService(store, &MockCatalog{})

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", []ItemRequest{{ProductID: 1, Quantity: 2}})

	assert.Nil(t, details)
	requireKind(t, err, KindRequestInFlight)
}

func TestCreateOrder_TakesOverAbandonedRequest(t *testing.T) {
	items := []ItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	abandoned := now.Add(-2 * time.Minute)

	store := &MockStore{
		Record: &domain.IdempotencyRecord{
			IdempotencyKey: "key-1",
			RequestHash:    requestFingerprint(normalizeItems(items)),
			Status:         domain.IdempotencyStatusStarted,
			Generation:     1,
			CreatedAt:      abandoned,
		},
		TakeoverGen: 2,
		NextOrderID: 7,
	}
	gateway := &MockCatalog{Results: twoProductResults()}
	svc := newTestCreationService(store, gateway)

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", details.Status)

	// the new execution finalizes under the generation it claimed
	require.NotNil(t, store.FinalizeParams)
	assert.Equal(t, int64(2), store.FinalizeParams.Generation)
}

func TestCreateOrder_TakeoverRaceLost(t *testing.T) {
	items := []ItemRequest{{ProductID: 1, Quantity: 2}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := &MockStore{
		Record: &domain.IdempotencyRecord{
			IdempotencyKey: "key-1",
			RequestHash:    requestFingerprint(normalizeItems(items)),
			Status:         domain.IdempotencyStatusStarted,
			Generation:     1,
			CreatedAt:      now.Add(-2 * time.Minute),
		},
		TakeoverErr: r.ErrStaleGeneration,
	}
	svc := newTestCreationService(store, &MockCatalog{})

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	assert.Nil(t, details)
	requireKind(t, err, KindRequestInFlight)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	store := &MockStore{GetRecErr: r.ErrIdempotencyKeyNotFound}
	gateway := &MockCatalog{Results: []catalog.ValidationResult{
		{ProductID: 1, RequestedQuantity: 5, Exists: true, CanFulfill: false, Name: "Mechanical Keyboard", SKU: "KB-001", Price: 10.00},
	}}
	svc := newTestCreationService(store, gateway)

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", []ItemRequest{{ProductID: 1, Quantity: 5}})

	assert.Nil(t, details)
	svcErr := requireKind(t, err, KindBusinessRejected)
	assert.Contains(t, svcErr.Message, "not available")

	// rejected before any order or reservation existed
	assert.Nil(t, store.CreatedOrder)
	assert.Empty(t, gateway.DecrementKey)

	// the key is burned
	require.NotNil(t, store.FailedGen)
	assert.Equal(t, int64(1), *store.FailedGen)
}

func TestCreateOrder_ValidationSetMismatch(t *testing.T) {
	store := &MockStore{GetRecErr: r.ErrIdempotencyKeyNotFound}
	gateway := &MockCatalog{Results: []catalog.ValidationResult{
		{ProductID: 99, RequestedQuantity: 2, Exists: true, CanFulfill: true, Price: 10.00},
	}}
	svc := newTestCreationService(store, gateway)

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", []ItemRequest{{ProductID: 1, Quantity: 2}})

	assert.Nil(t, details)
	requireKind(t, err, KindBusinessRejected)
}

func TestCreateOrder_ReservationRejected(t *testing.T) {
	store := &MockStore{GetRecErr: r.ErrIdempotencyKeyNotFound, NextOrderID: 42}
	gateway := &MockCatalog{
		Results:      twoProductResults(),
		DecrementErr: fmt.Errorf("%w: insufficient stock for product 1", catalog.ErrRejected),
	}
	svc := newTestCreationService(store, gateway)

	items := []ItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	assert.Nil(t, details)
	requireKind(t, err, KindBusinessRejected)

	// the pending order is rejected and the key burned, no confirmation
	require.NotNil(t, store.RejectedOrderID)
	assert.Equal(t, int64(42), *store.RejectedOrderID)
	require.NotNil(t, store.FailedGen)
	assert.Nil(t, store.FinalizeParams)

	// no replenish: the reservation never happened
	assert.Empty(t, gateway.ReplenishKey)
}

func TestCreateOrder_CatalogUnavailable(t *testing.T) {
	store := &MockStore{GetRecErr: r.ErrIdempotencyKeyNotFound}
	gateway := &MockCatalog{ValidateErr: fmt.Errorf("%w: connection refused", catalog.ErrUnavailable)}
	svc := newTestCreationService(store, gateway)

	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", []ItemRequest{{ProductID: 1, Quantity: 2}})

	assert.Nil(t, details)
	requireKind(t, err, KindUnavailable)
	require.NotNil(t, store.FailedGen)
}

func TestCreateOrder_FinalizeFenceLost(t *testing.T) {
	store := &MockStore{
		GetRecErr:   r.ErrIdempotencyKeyNotFound,
		NextOrderID: 42,
		FinalizeErr: r.ErrStaleGeneration,
	}
	gateway := &MockCatalog{Results: twoProductResults()}
	svc := newTestCreationService(store, gateway)

	items := []ItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	details, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	assert.Nil(t, details)
	requireKind(t, err, KindRequestInFlight)

	// the loser releases its own reservation under a distinct key namespace
	require.NotNil(t, store.CreatedOrder)
	assert.Equal(t, "release:"+store.CreatedOrder.ExternalID.String(), gateway.ReplenishKey)
	assert.Equal(t, gateway.DecrementItems, gateway.ReplenishItems)

	// and rejects its own order, but does not touch the record it lost
	require.NotNil(t, store.RejectedOrderID)
	assert.Nil(t, store.FailedGen)
}

func TestCreateOrder_NormalizesDuplicateItems(t *testing.T) {
	store := &MockStore{GetRecErr: r.ErrIdempotencyKeyNotFound, NextOrderID: 1}
	gateway := &MockCatalog{Results: twoProductResults()}
	svc := newTestCreationService(store, gateway)

	items := []ItemRequest{
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 1},
		{ProductID: 1, Quantity: 1},
	}
	_, err := svc.CreateOrder(context.Background(), "user-1", "key-1", items)

	require.NoError(t, err)
	assert.Equal(t, []catalog.QuantityItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, gateway.ValidatedItems)
}

func TestRequestFingerprint_OrderInsensitive(t *testing.T) {
	a := requestFingerprint(normalizeItems([]ItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}))
	b := requestFingerprint(normalizeItems([]ItemRequest{{ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 1}}))
	c := requestFingerprint(normalizeItems([]ItemRequest{{ProductID: 1, Quantity: 3}}))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.False(t, strings.ContainsAny(a, "ABCDEF"))
}
