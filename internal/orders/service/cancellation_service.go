package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/btsutskiridze/OnlineStore/internal/orders/catalog"
	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
	r "github.com/btsutskiridze/OnlineStore/internal/orders/repository"
)

type CancellationService interface {
	CancelOrder(ctx context.Context, userID string, orderID uuid.UUID, rowVersion string) error
}

type CancellationServiceImpl struct {
	repo    r.StoreInterface
	catalog CatalogGateway
}

func NewCancellationService(repo r.StoreInterface, gateway CatalogGateway) *CancellationServiceImpl {
	return &CancellationServiceImpl{
		repo:    repo,
		catalog: gateway,
	}
}

// CancelOrder compensates a pending order: replenish the reserved stock,
// then transition to Cancelled guarded by the caller's concurrency token.
// Cancelling an already-cancelled order is a no-op; any other non-pending
// status is refused. If replenishment fails the order stays Pending and the
// caller may retry — the replenish key makes the retry safe.
func (s *CancellationServiceImpl) CancelOrder(ctx context.Context, userID string, orderID uuid.UUID, rowVersion string) error {
	expectedVersion, err := decodeRowVersion(rowVersion)
	if err != nil {
		return invalidInput("invalid row version format")
	}

	order, err := s.repo.GetOrderByExternalID(ctx, orderID, userID)
	if errors.Is(err, r.ErrOrderNotFound) {
		return &Error{Kind: KindNotFound, Message: "order not found"}
	}
	if err != nil {
		return unavailable("failed to load order", err)
	}

	if order.Status == domain.OrderStatusCancelled {
		return nil
	}
	if order.Status != domain.OrderStatusPending {
		return businessRejected("order is not pending", nil)
	}

	cancelKey := "cancel:" + order.ExternalID.String()
	items := make([]catalog.QuantityItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, catalog.QuantityItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	if err := s.catalog.ReplenishStock(ctx, cancelKey, items); err != nil {
		return unavailable("failed to replenish stock for order cancellation", err)
	}

	cancelled := *order
	cancelled.Status = domain.OrderStatusCancelled

	err = s.repo.CancelOrder(ctx, order.ID, expectedVersion, newOutboxEvent(EventOrderCancelled, &cancelled))
	if errors.Is(err, r.ErrConcurrencyConflict) {
		return &Error{Kind: KindConcurrencyConflict, Message: "concurrency conflict occurred while cancelling order"}
	}
	if err != nil {
		return unavailable("failed to cancel order", err)
	}

	return nil
}
