package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/domain"
)

// DecrementStockBatch applies one reservation batch atomically. The operation
// log insert is the dedup fence: if the idempotency key was seen before, the
// batch is already applied and the call returns success without mutating
// anything. Each item decrement is conditional on sufficient stock and the
// product being active; one failed item aborts the whole batch.
func (r *Repository) DecrementStockBatch(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decrement batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	applied, err := r.insertOperation(ctx, tx, idempotencyKey, domain.OperationDecrement)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2,
			    row_version = row_version + 1,
			    updated_at = NOW()
			WHERE id = $1
			  AND stock_quantity >= $2
			  AND is_active = TRUE`,
			item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
		if affected == 0 {
			return r.classifyDecrementFailure(ctx, tx, item.ProductID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decrement batch: %w", err)
	}
	return nil
}

// ReplenishStockBatch returns previously reserved quantities to stock,
// deduplicated by idempotency key the same way decrements are.
func (r *Repository) ReplenishStockBatch(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replenish batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	applied, err := r.insertOperation(ctx, tx, idempotencyKey, domain.OperationIncrement)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $2,
			    row_version = row_version + 1,
			    updated_at = NOW()
			WHERE id = $1`,
			item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("replenish stock for product %d: %w", item.ProductID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("replenish stock for product %d: %w", item.ProductID, err)
		}
		if affected == 0 {
			return fmt.Errorf("product %d: %w", item.ProductID, ErrProductMissing)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replenish batch: %w", err)
	}
	return nil
}

// insertOperation writes the dedup fence row. Returns applied=true when the
// key already exists, meaning the batch must not be applied again.
func (r *Repository) insertOperation(ctx context.Context, tx *sql.Tx, idempotencyKey string, opType domain.OperationType) (bool, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_operations (idempotency_key, op_type, created_at)
		VALUES ($1, $2, NOW())`,
		idempotencyKey, opType)
	if err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, fmt.Errorf("insert inventory operation: %w", err)
	}
	return false, nil
}

// classifyDecrementFailure turns an unaffected decrement row into the precise
// business error: the caller needs to tell out-of-stock apart from a product
// that does not exist or was deactivated.
func (r *Repository) classifyDecrementFailure(ctx context.Context, tx *sql.Tx, productID int64) error {
	var isActive bool
	err := tx.QueryRowContext(ctx,
		`SELECT is_active FROM products WHERE id = $1`, productID).Scan(&isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", productID, ErrProductMissing)
	}
	if err != nil {
		return fmt.Errorf("classify decrement failure for product %d: %w", productID, err)
	}
	if !isActive {
		return fmt.Errorf("product %d: %w", productID, ErrProductMissing)
	}
	return fmt.Errorf("product %d: %w", productID, ErrOutOfStock)
}
