package domain

import (
	"sort"
	"time"
)

type Product struct {
	ID            int64
	Name          string
	SKU           string
	Price         float64
	StockQuantity int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	RowVersion    int64
}

// QuantityItem is a (product, quantity) pair as it travels on the wire.
type QuantityItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// ValidationResult is the per-product answer to a validate call. Name, SKU
// and Price are a point-in-time snapshot and only set when the product exists.
type ValidationResult struct {
	ProductID         int64   `json:"product_id"`
	RequestedQuantity int     `json:"requested_quantity"`
	Exists            bool    `json:"exists"`
	CanFulfill        bool    `json:"can_fulfill"`
	Name              string  `json:"name,omitempty"`
	SKU               string  `json:"sku,omitempty"`
	Price             float64 `json:"price,omitempty"`
}

// Normalize collapses duplicate product ids by summing their quantities and
// returns the result sorted by product id. Stock batches and validation both
// run on the normalized form so item ordering never changes the outcome.
func Normalize(items []QuantityItem) []QuantityItem {
	byProduct := make(map[int64]int, len(items))
	for _, item := range items {
		byProduct[item.ProductID] += item.Quantity
	}

	normalized := make([]QuantityItem, 0, len(byProduct))
	for productID, quantity := range byProduct {
		normalized = append(normalized, QuantityItem{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].ProductID < normalized[j].ProductID
	})
	return normalized
}
