package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/orders/service"
)

type OrdersHandler struct {
	creation     service.CreationService
	cancellation service.CancellationService
	reads        service.ReadService
}

func NewOrdersHandler(creation service.CreationService, cancellation service.CancellationService, reads service.ReadService) *OrdersHandler {
	return &OrdersHandler{
		creation:     creation,
		cancellation: cancellation,
		reads:        reads,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type CancelOrderRequestDTO struct {
	RowVersion string `json:"row_version"`
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var items []service.ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	details, err := h.creation.CreateOrder(r.Context(), userID, idempotencyKey, items)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, details)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a valid UUID")
		return
	}

	details, err := h.reads.GetOrderByID(r.Context(), userID, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	details, err := h.reads.ListOrders(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a valid UUID")
		return
	}

	var req CancelOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.cancellation.CancelOrder(r.Context(), userID, orderID, req.RowVersion); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError translates the saga's closed error-kind set to HTTP.
// Anything that is not a tagged service error is an internal failure.
func handleServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		log.Error().Err(err).Msg("unexpected error from order service")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	switch svcErr.Kind {
	case service.KindInvalidInput:
		respondError(w, http.StatusBadRequest, "invalid_request", svcErr.Message)
	case service.KindIdempotencyConflict:
		respondError(w, http.StatusConflict, "idempotency_conflict", svcErr.Message)
	case service.KindRequestInFlight:
		respondError(w, http.StatusConflict, "request_in_progress", svcErr.Message)
	case service.KindBusinessRejected:
		respondError(w, http.StatusConflict, "order_rejected", svcErr.Message)
	case service.KindNotFound:
		respondError(w, http.StatusNotFound, "not_found", svcErr.Message)
	case service.KindConcurrencyConflict:
		respondError(w, http.StatusConflict, "concurrency_conflict", svcErr.Message)
	case service.KindUnavailable:
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", svcErr.Message)
	default:
		log.Error().Err(err).Msg("unhandled service error kind")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
