package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/orders/catalog"
	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
	r "github.com/btsutskiridze/OnlineStore/internal/orders/repository"
)

// concurrentRequestWindow is how long a Started idempotency record is
// considered owned by its original request. Older records are treated as
// abandoned and may be taken over.
const concurrentRequestWindow = 45 * time.Second

const (
	EventOrderConfirmed = "order_confirmed"
	EventOrderCancelled = "order_cancelled"
)

// CatalogGateway is the order side's view of the product catalog.
type CatalogGateway interface {
	Validate(ctx context.Context, items []catalog.QuantityItem) ([]catalog.ValidationResult, error)
	DecrementStock(ctx context.Context, idempotencyKey string, items []catalog.QuantityItem) error
	ReplenishStock(ctx context.Context, idempotencyKey string, items []catalog.QuantityItem) error
}

type CreationService interface {
	CreateOrder(ctx context.Context, userID, idempotencyKey string, items []ItemRequest) (*OrderDetails, error)
}

type CreationServiceImpl struct {
	repo           r.StoreInterface
	catalog        CatalogGateway
	inFlightWindow time.Duration
	now            func() time.Time
}

func NewCreationService(repo r.StoreInterface, gateway CatalogGateway) *CreationServiceImpl {
	return &CreationServiceImpl{
		repo:           repo,
		catalog:        gateway,
		inFlightWindow: concurrentRequestWindow,
		now:            time.Now,
	}
}

// CreateOrder runs the order-creation saga: idempotency gate, catalog
// validation, pending order persistence, stock reservation, then an atomic
// finalize that confirms the order and caches the response for replay.
func (s *CreationServiceImpl) CreateOrder(ctx context.Context, userID, idempotencyKey string, items []ItemRequest) (*OrderDetails, error) {
	if err := validateCreateRequest(idempotencyKey, items); err != nil {
		return nil, err
	}

	normalized := normalizeItems(items)
	fingerprint := requestFingerprint(normalized)

	generation, replay, err := s.idempotencyGate(ctx, idempotencyKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	return s.runSaga(ctx, userID, idempotencyKey, generation, normalized)
}

// idempotencyGate arbitrates the key. It returns the generation this
// execution owns, or the cached response when the key already completed.
func (s *CreationServiceImpl) idempotencyGate(ctx context.Context, key, fingerprint string) (int64, *OrderDetails, error) {
	record, err := s.repo.GetIdempotencyRecord(ctx, key)
	if errors.Is(err, r.ErrIdempotencyKeyNotFound) {
		inserted, insErr := s.repo.InsertIdempotencyRecord(ctx, key, fingerprint)
		if errors.Is(insErr, r.ErrDuplicateIdempotencyKey) {
			return 0, nil, requestInFlight("same request is already running, try again later")
		}
		if insErr != nil {
			return 0, nil, unavailable("failed to record request intent", insErr)
		}
		return inserted.Generation, nil, nil
	}
	if err != nil {
		return 0, nil, unavailable("failed to check request intent", err)
	}

	if record.RequestHash != fingerprint {
		return 0, nil, idempotencyConflict("this idempotency key was used before with different data")
	}

	switch record.Status {
	case domain.IdempotencyStatusCompleted:
		details, err := cachedResponse(record)
		if err != nil {
			return 0, nil, err
		}
		return 0, details, nil

	case domain.IdempotencyStatusFailed:
		return 0, nil, idempotencyConflict("previous request with same idempotency key failed")

	default: // Started
		if s.now().Sub(record.LastTouched()) < s.inFlightWindow {
			return 0, nil, requestInFlight("another request with same idempotency key is still processing")
		}

		generation, err := s.repo.TakeOverIdempotencyRecord(ctx, key, record.Generation)
		if errors.Is(err, r.ErrStaleGeneration) {
			return 0, nil, requestInFlight("another request with same idempotency key is still processing")
		}
		if err != nil {
			return 0, nil, unavailable("failed to take over abandoned request", err)
		}
		return generation, nil, nil
	}
}

// cachedResponse replays a completed record byte-for-byte. This is a pure
// read; no state changes.
func cachedResponse(record *domain.IdempotencyRecord) (*OrderDetails, error) {
	if len(record.ResponseBody) == 0 || record.ResponseCode == nil || *record.ResponseCode != http.StatusCreated {
		return nil, idempotencyConflict("cannot replay this request, response data missing")
	}

	var details OrderDetails
	if err := json.Unmarshal(record.ResponseBody, &details); err != nil {
		return nil, idempotencyConflict("cannot replay this request, cached response is unreadable")
	}
	return &details, nil
}

func (s *CreationServiceImpl) runSaga(ctx context.Context, userID, key string, generation int64, normalized []catalog.QuantityItem) (*OrderDetails, error) {
	validated, err := s.validateAvailability(ctx, normalized)
	if err != nil {
		s.markFailed(ctx, key, generation)
		return nil, err
	}

	order := buildOrder(userID, validated)
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		s.markFailed(ctx, key, generation)
		return nil, unavailable("failed to create order", err)
	}

	reserveKey := "order:" + order.ExternalID.String()
	if err := s.catalog.DecrementStock(ctx, reserveKey, normalized); err != nil {
		s.rejectOrder(ctx, order)
		s.markFailed(ctx, key, generation)
		if errors.Is(err, catalog.ErrRejected) {
			return nil, businessRejected("cannot reserve products, stock may have changed while you were ordering", err)
		}
		return nil, unavailable("stock reservation failed", err)
	}

	return s.finalize(ctx, key, generation, order, normalized)
}

// validateAvailability checks every product can fulfill and that the catalog
// answered for exactly the requested product set. A set mismatch signals a
// data inconsistency, not a stock shortage, and is not retried.
func (s *CreationServiceImpl) validateAvailability(ctx context.Context, normalized []catalog.QuantityItem) ([]catalog.ValidationResult, error) {
	results, err := s.catalog.Validate(ctx, normalized)
	if err != nil {
		if errors.Is(err, catalog.ErrRejected) {
			return nil, businessRejected("order products validation failed", err)
		}
		return nil, unavailable("product validation failed", err)
	}

	if len(results) != len(normalized) {
		return nil, businessRejected("product catalog validation mismatch", nil)
	}
	for i, result := range results {
		if result.ProductID != normalized[i].ProductID {
			return nil, businessRejected("product catalog validation mismatch", nil)
		}
		if !result.CanFulfill {
			return nil, businessRejected(fmt.Sprintf("product %d is not available", result.ProductID), nil)
		}
	}

	return results, nil
}

// buildOrder assembles the pending aggregate from the validated snapshot.
// Line items carry the snapshot values, never live catalog references, and
// the total is computed once here.
func buildOrder(userID string, validated []catalog.ValidationResult) *domain.Order {
	items := make([]domain.OrderItem, 0, len(validated))
	var total float64
	for _, product := range validated {
		lineTotal := product.Price * float64(product.RequestedQuantity)
		items = append(items, domain.OrderItem{
			ProductID:   product.ProductID,
			ProductName: product.Name,
			SKU:         product.SKU,
			UnitPrice:   product.Price,
			Quantity:    product.RequestedQuantity,
			LineTotal:   lineTotal,
		})
		total += lineTotal
	}

	return &domain.Order{
		ExternalID:  uuid.New(),
		UserID:      userID,
		Status:      domain.OrderStatusPending,
		TotalAmount: total,
		Items:       items,
	}
}

// finalize commits success atomically. Losing the generation fence here means
// a takeover superseded this execution after it reserved stock: the
// reservation is compensated under its own key and the order rejected.
func (s *CreationServiceImpl) finalize(ctx context.Context, key string, generation int64, order *domain.Order, normalized []catalog.QuantityItem) (*OrderDetails, error) {
	confirmed := *order
	confirmed.Status = domain.OrderStatusConfirmed
	confirmed.RowVersion = order.RowVersion + 1
	details := toOrderDetails(&confirmed)

	body, err := json.Marshal(details)
	if err != nil {
		s.markFailed(ctx, key, generation)
		return nil, unavailable("failed to serialize order response", err)
	}

	err = s.repo.FinalizeOrder(ctx, r.FinalizeOrderParams{
		IdempotencyKey: key,
		Generation:     generation,
		OrderID:        order.ID,
		ResponseCode:   http.StatusCreated,
		ResponseBody:   body,
		Event:          newOutboxEvent(EventOrderConfirmed, &confirmed),
	})
	if errors.Is(err, r.ErrStaleGeneration) || errors.Is(err, r.ErrOrderNotPending) {
		s.compensateReservation(ctx, order, normalized)
		return nil, requestInFlight("request was superseded by a newer submission with the same idempotency key")
	}
	if err != nil {
		s.compensateReservation(ctx, order, normalized)
		s.markFailed(ctx, key, generation)
		return nil, unavailable("failed to finalize order", err)
	}

	return details, nil
}

// compensateReservation releases stock this execution reserved but could not
// turn into a confirmed order. Uses its own key namespace so it never shares
// an idempotency slot with the reservation or a client cancellation.
func (s *CreationServiceImpl) compensateReservation(ctx context.Context, order *domain.Order, normalized []catalog.QuantityItem) {
	releaseKey := "release:" + order.ExternalID.String()
	if err := s.catalog.ReplenishStock(ctx, releaseKey, normalized); err != nil {
		// Needs attention: stock stays reserved until resolved manually.
		log.Error().
			Err(err).
			Str("order_id", order.ExternalID.String()).
			Msg("failed to release reserved stock during compensation")
	}
	s.rejectOrder(ctx, order)
}

func (s *CreationServiceImpl) rejectOrder(ctx context.Context, order *domain.Order) {
	if err := s.repo.RejectOrder(ctx, order.ID); err != nil {
		log.Error().
			Err(err).
			Str("order_id", order.ExternalID.String()).
			Msg("failed to mark order rejected")
	}
}

// markFailed moves the idempotency record to its terminal Failed state. A
// stale generation means a takeover now owns the record; that execution
// decides the outcome, so losing the race here is not an error.
func (s *CreationServiceImpl) markFailed(ctx context.Context, key string, generation int64) {
	err := s.repo.FailIdempotencyRecord(ctx, key, generation)
	if err != nil && !errors.Is(err, r.ErrStaleGeneration) {
		log.Error().Err(err).Str("idempotency_key", key).Msg("failed to mark idempotency record failed")
	}
}

func validateCreateRequest(idempotencyKey string, items []ItemRequest) error {
	if strings.TrimSpace(idempotencyKey) == "" {
		return invalidInput("idempotency key is required")
	}
	if len(items) == 0 {
		return invalidInput("no items provided")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return invalidInput("all quantities must be positive")
		}
	}
	return nil
}

func newOutboxEvent(eventType string, order *domain.Order) *r.OutboxEvent {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ExternalID.String(),
		"user_id":      order.UserID,
		"status":       order.Status.String(),
		"total_amount": order.TotalAmount,
		"occurred_at":  time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal outbox payload")
		return nil
	}

	return &r.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: order.ExternalID.String(),
		EventType:   eventType,
		Payload:     payload,
	}
}
