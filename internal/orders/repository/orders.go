package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
)

// CreateOrder persists the order header and its items as a single unit and
// fills in the generated ids, timestamps and initial row version.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (external_id, user_id, status, total_amount, row_version, created_at)
		VALUES ($1, $2, $3, $4, 1, NOW())
		RETURNING id, created_at`,
		order.ExternalID, order.UserID, order.Status, order.TotalAmount).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	order.RowVersion = 1

	for i := range order.Items {
		item := &order.Items[i]
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, sku, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			order.ID, item.ProductID, item.ProductName, item.SKU,
			item.UnitPrice, item.Quantity, item.LineTotal).
			Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByExternalID(ctx context.Context, externalID uuid.UUID, userID string) (*domain.Order, error) {
	query := `SELECT id, external_id, user_id, status, total_amount, row_version, created_at, updated_at, cancelled_at
	          FROM orders WHERE external_id = $1 AND user_id = $2`

	var order domain.Order
	err := r.db.QueryRowContext(ctx, query, externalID, userID).Scan(
		&order.ID,
		&order.ExternalID,
		&order.UserID,
		&order.Status,
		&order.TotalAmount,
		&order.RowVersion,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.CancelledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by external id: %w", err)
	}

	items, err := r.loadOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT id, external_id, user_id, status, total_amount, row_version, created_at, updated_at, cancelled_at
	          FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.ExternalID,
			&order.UserID,
			&order.Status,
			&order.TotalAmount,
			&order.RowVersion,
			&order.CreatedAt,
			&order.UpdatedAt,
			&order.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, order := range orders {
		items, err := r.loadOrderItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
	}

	return orders, nil
}

func (r *Repository) loadOrderItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, sku, unit_price, quantity, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.ProductID,
			&item.ProductName,
			&item.SKU,
			&item.UnitPrice,
			&item.Quantity,
			&item.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// RejectOrder transitions a pending order to Rejected after a failed
// reservation. The saga instance owns the order at this point, so no
// version precondition is needed beyond the Pending status.
func (r *Repository) RejectOrder(ctx context.Context, orderID int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		orderID, domain.OrderStatusRejected, domain.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("reject order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject order: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// FinalizeOrder commits the saga's success atomically: Completed idempotency
// record with the cached response, Confirmed order, and the confirmation
// event in the outbox. The generation fence makes a superseded execution
// fail here with ErrStaleGeneration and roll the whole commit back.
func (r *Repository) FinalizeOrder(ctx context.Context, p FinalizeOrderParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE order_idempotency
		SET status = $3, order_id = $4, response_code = $5, response_body = $6, updated_at = NOW()
		WHERE idempotency_key = $1 AND generation = $2 AND status = $7`,
		p.IdempotencyKey, p.Generation,
		domain.IdempotencyStatusCompleted, p.OrderID, p.ResponseCode, p.ResponseBody,
		domain.IdempotencyStatusStarted)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	if affected == 0 {
		return ErrStaleGeneration
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, row_version = row_version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		p.OrderID, domain.OrderStatusConfirmed, domain.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("confirm order: %w", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm order: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotPending
	}

	if err := r.insertOutboxEvent(ctx, tx, p.Event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize order: %w", err)
	}
	return nil
}

// CancelOrder transitions a pending order to Cancelled, conditional on the
// caller's last-seen row version, and records the cancellation event in the
// same transaction.
func (r *Repository) CancelOrder(ctx context.Context, orderID, expectedVersion int64, event *OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, row_version = row_version + 1, updated_at = NOW(), cancelled_at = NOW()
		WHERE id = $1 AND row_version = $2 AND status = $4`,
		orderID, expectedVersion, domain.OrderStatusCancelled, domain.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if affected == 0 {
		return ErrConcurrencyConflict
	}

	if err := r.insertOutboxEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel order: %w", err)
	}
	return nil
}
