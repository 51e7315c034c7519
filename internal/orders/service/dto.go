package service

import (
	"encoding/base64"
	"strconv"
	"time"

	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
)

// ItemRequest is one requested (product, quantity) pair from the client.
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderItemDetails struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	SKU         string  `json:"sku"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

// OrderDetails is the client-facing order representation. RowVersion is the
// opaque concurrency token callers echo back on cancellation.
type OrderDetails struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	TotalAmount float64            `json:"total_amount"`
	CreatedAt   time.Time          `json:"created_at"`
	RowVersion  string             `json:"row_version"`
	Items       []OrderItemDetails `json:"items"`
}

func toOrderDetails(order *domain.Order) *OrderDetails {
	items := make([]OrderItemDetails, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDetails{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}

	return &OrderDetails{
		ID:          order.ExternalID.String(),
		Status:      order.Status.String(),
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
		RowVersion:  encodeRowVersion(order.RowVersion),
		Items:       items,
	}
}

func encodeRowVersion(version int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(version, 10)))
}

func decodeRowVersion(token string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}
