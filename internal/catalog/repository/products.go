package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/domain"
)

// GetProductsByIDs returns the current snapshot of the requested products,
// keyed by id. Missing ids are simply absent from the map.
func (r *Repository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, sku, price, stock_quantity, is_active, created_at, updated_at, row_version
		FROM products
		WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products by ids: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.SKU,
			&p.Price,
			&p.StockQuantity,
			&p.IsActive,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.RowVersion,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}
