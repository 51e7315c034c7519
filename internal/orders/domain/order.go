package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusRejected || s == OrderStatusCancelled
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo encodes the order state machine. Pending is the only state
// an order leaves; Confirmed orders stay confirmed in this design.
func CanTransitionTo(from, to OrderStatus) bool {
	if from != OrderStatusPending {
		return false
	}
	return to == OrderStatusConfirmed || to == OrderStatusRejected || to == OrderStatusCancelled
}

// OrderItem carries a point-in-time snapshot of the product, not a live
// catalog reference. Immutable once the order is persisted.
type OrderItem struct {
	ID          int64
	ProductID   int64
	ProductName string
	SKU         string
	UnitPrice   float64
	Quantity    int
	LineTotal   float64
}

// Order is the order aggregate. ExternalID is the client-facing identity;
// ID is the internal sequence. RowVersion changes on every mutation and backs
// optimistic concurrency on cancellation.
type Order struct {
	ID          int64
	ExternalID  uuid.UUID
	UserID      string
	Status      OrderStatus
	TotalAmount float64
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	CancelledAt *time.Time
	RowVersion  int64
	Items       []OrderItem
}
