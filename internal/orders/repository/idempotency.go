package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
)

func (r *Repository) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT id, idempotency_key, request_hash, status, order_id, response_code, response_body, generation, created_at, updated_at
	          FROM order_idempotency WHERE idempotency_key = $1`

	var rec domain.IdempotencyRecord
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&rec.ID,
		&rec.IdempotencyKey,
		&rec.RequestHash,
		&rec.Status,
		&rec.OrderID,
		&rec.ResponseCode,
		&rec.ResponseBody,
		&rec.Generation,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query idempotency record: %w", err)
	}

	return &rec, nil
}

// InsertIdempotencyRecord records the intent for a fresh key. The unique
// constraint on idempotency_key is the arbitration for concurrent first-time
// submissions: exactly one insert wins, every loser gets
// ErrDuplicateIdempotencyKey.
func (r *Repository) InsertIdempotencyRecord(ctx context.Context, key, requestHash string) (*domain.IdempotencyRecord, error) {
	query := `INSERT INTO order_idempotency (idempotency_key, request_hash, status, generation, created_at, updated_at)
	          VALUES ($1, $2, $3, 1, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	rec := &domain.IdempotencyRecord{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Status:         domain.IdempotencyStatusStarted,
		Generation:     1,
	}
	err := r.db.QueryRowContext(ctx, query, key, requestHash, domain.IdempotencyStatusStarted).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("insert idempotency record: %w", err)
	}

	return rec, nil
}

// TakeOverIdempotencyRecord claims an abandoned Started record: it bumps the
// generation and refreshes the timestamp, conditional on the generation the
// caller observed. A zero-row update means someone else claimed it first.
func (r *Repository) TakeOverIdempotencyRecord(ctx context.Context, key string, expectedGeneration int64) (int64, error) {
	query := `UPDATE order_idempotency
	          SET generation = generation + 1, updated_at = NOW()
	          WHERE idempotency_key = $1 AND generation = $2 AND status = $3
	          RETURNING generation`

	var newGeneration int64
	err := r.db.QueryRowContext(ctx, query, key, expectedGeneration, domain.IdempotencyStatusStarted).
		Scan(&newGeneration)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStaleGeneration
	}
	if err != nil {
		return 0, fmt.Errorf("take over idempotency record: %w", err)
	}

	return newGeneration, nil
}

// FailIdempotencyRecord marks the record terminally Failed, fenced by
// generation so a superseded execution cannot fail a record it no longer owns.
func (r *Repository) FailIdempotencyRecord(ctx context.Context, key string, generation int64) error {
	query := `UPDATE order_idempotency
	          SET status = $3, updated_at = NOW()
	          WHERE idempotency_key = $1 AND generation = $2 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, key, generation,
		domain.IdempotencyStatusFailed, domain.IdempotencyStatusStarted)
	if err != nil {
		return fmt.Errorf("fail idempotency record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail idempotency record: %w", err)
	}
	if affected == 0 {
		return ErrStaleGeneration
	}
	return nil
}
