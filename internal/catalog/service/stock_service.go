package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/domain"
	"github.com/btsutskiridze/OnlineStore/internal/catalog/repository"
)

const (
	stockRetryAttempts = 3
	stockRetryBaseWait = 100 * time.Millisecond
)

type StockService interface {
	DecrementStockBatch(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error
	ReplenishStockBatch(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error
}

type StockServiceImpl struct {
	store repository.StoreInterface
}

func NewStockService(store repository.StoreInterface) *StockServiceImpl {
	return &StockServiceImpl{store: store}
}

// DecrementStockBatch validates and normalizes the batch, then applies it
// through the conditional-update ledger. Deadlocks and serialization failures
// are retried a bounded number of times: the whole batch is idempotent under
// its key, so a repeat can never double-apply.
func (s *StockServiceImpl) DecrementStockBatch(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error {
	if err := validateBatchRequest(idempotencyKey, items); err != nil {
		return err
	}

	normalized := domain.Normalize(items)
	return s.withRetry(ctx, "decrement", func() error {
		return s.store.DecrementStockBatch(ctx, idempotencyKey, normalized)
	})
}

func (s *StockServiceImpl) ReplenishStockBatch(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error {
	if err := validateBatchRequest(idempotencyKey, items); err != nil {
		return err
	}

	normalized := domain.Normalize(items)
	return s.withRetry(ctx, "replenish", func() error {
		return s.store.ReplenishStockBatch(ctx, idempotencyKey, normalized)
	})
}

func (s *StockServiceImpl) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= stockRetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !repository.IsRetryable(lastErr) {
			return lastErr
		}

		log.Warn().
			Err(lastErr).
			Str("operation", op).
			Int("attempt", attempt).
			Msg("transient database error on stock batch, retrying")

		select {
		case <-time.After(stockRetryBaseWait * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func validateBatchRequest(idempotencyKey string, items []domain.QuantityItem) error {
	if strings.TrimSpace(idempotencyKey) == "" {
		return ErrMissingIdempotencyKey
	}
	return validateQuantities(items)
}
