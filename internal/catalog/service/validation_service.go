package service

import (
	"context"
	"fmt"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/domain"
	"github.com/btsutskiridze/OnlineStore/internal/catalog/repository"
)

type ValidationService interface {
	ValidateProducts(ctx context.Context, items []domain.QuantityItem) ([]domain.ValidationResult, error)
}

type ValidationServiceImpl struct {
	store repository.StoreInterface
}

func NewValidationService(store repository.StoreInterface) *ValidationServiceImpl {
	return &ValidationServiceImpl{store: store}
}

// ValidateProducts answers, per requested product, whether it exists and the
// requested quantity can currently be fulfilled, together with a price, name
// and SKU snapshot. Duplicate items are consolidated before the lookup.
func (s *ValidationServiceImpl) ValidateProducts(ctx context.Context, items []domain.QuantityItem) ([]domain.ValidationResult, error) {
	if err := validateQuantities(items); err != nil {
		return nil, err
	}

	normalized := domain.Normalize(items)

	ids := make([]int64, 0, len(normalized))
	for _, item := range normalized {
		ids = append(ids, item.ProductID)
	}

	snapshot, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load product snapshot: %w", err)
	}

	results := make([]domain.ValidationResult, 0, len(normalized))
	for _, item := range normalized {
		product, exists := snapshot[item.ProductID]
		if !exists {
			results = append(results, domain.ValidationResult{
				ProductID:         item.ProductID,
				RequestedQuantity: item.Quantity,
			})
			continue
		}

		results = append(results, domain.ValidationResult{
			ProductID:         product.ID,
			RequestedQuantity: item.Quantity,
			Exists:            true,
			CanFulfill:        product.IsActive && product.StockQuantity >= item.Quantity,
			Name:              product.Name,
			SKU:               product.SKU,
			Price:             product.Price,
		})
	}

	return results, nil
}

func validateQuantities(items []domain.QuantityItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}
