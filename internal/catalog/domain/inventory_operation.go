package domain

import "time"

// OperationType tags an inventory operation log row.
type OperationType string

const (
	OperationDecrement OperationType = "DECREMENT"
	OperationIncrement OperationType = "INCREMENT"
)

// InventoryOperation records one applied stock batch, keyed by the caller's
// idempotency key. The unique key is the dedup fence: a second insert with
// the same key means the batch was already applied.
type InventoryOperation struct {
	ID             int64
	IdempotencyKey string
	Type           OperationType
	CreatedAt      time.Time
}
