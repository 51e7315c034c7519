package service

import "errors"

var (
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrNoItems               = errors.New("no items provided")
	ErrInvalidQuantity       = errors.New("all quantities must be positive")
)
