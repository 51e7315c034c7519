package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	r "github.com/btsutskiridze/OnlineStore/internal/orders/repository"
)

type ReadService interface {
	GetOrderByID(ctx context.Context, userID string, orderID uuid.UUID) (*OrderDetails, error)
	ListOrders(ctx context.Context, userID string) ([]*OrderDetails, error)
}

type ReadServiceImpl struct {
	repo r.StoreInterface
}

func NewReadService(repo r.StoreInterface) *ReadServiceImpl {
	return &ReadServiceImpl{repo: repo}
}

func (s *ReadServiceImpl) GetOrderByID(ctx context.Context, userID string, orderID uuid.UUID) (*OrderDetails, error) {
	order, err := s.repo.GetOrderByExternalID(ctx, orderID, userID)
	if errors.Is(err, r.ErrOrderNotFound) {
		return nil, &Error{Kind: KindNotFound, Message: "order not found"}
	}
	if err != nil {
		return nil, unavailable("failed to load order", err)
	}

	return toOrderDetails(order), nil
}

func (s *ReadServiceImpl) ListOrders(ctx context.Context, userID string) ([]*OrderDetails, error) {
	orders, err := s.repo.ListOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, unavailable("failed to list orders", err)
	}

	details := make([]*OrderDetails, 0, len(orders))
	for _, order := range orders {
		details = append(details, toOrderDetails(order))
	}
	return details, nil
}
