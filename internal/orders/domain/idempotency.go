package domain

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusCompleted IdempotencyStatus = "COMPLETED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyRecord tracks one client intent keyed by its idempotency key.
// RequestHash pins the key to one normalized payload; Generation counts
// takeovers of an abandoned in-flight record and fences terminal transitions,
// so a slow original caller cannot complete over a newer execution.
type IdempotencyRecord struct {
	ID             int64
	IdempotencyKey string
	RequestHash    string
	Status         IdempotencyStatus
	OrderID        *int64
	ResponseCode   *int
	ResponseBody   []byte
	Generation     int64
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// LastTouched is the reference point for the in-flight window.
func (r *IdempotencyRecord) LastTouched() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}
