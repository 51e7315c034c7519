package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/domain"
	"github.com/btsutskiridze/OnlineStore/internal/catalog/repository"
	"github.com/btsutskiridze/OnlineStore/internal/catalog/service"
)

type ProductsHandler struct {
	validation service.ValidationService
	stock      service.StockService
}

func NewProductsHandler(validation service.ValidationService, stock service.StockService) *ProductsHandler {
	return &ProductsHandler{
		validation: validation,
		stock:      stock,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// POST /internal/v1/products/validate
func (h *ProductsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var items []domain.QuantityItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	results, err := h.validation.ValidateProducts(r.Context(), items)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, results)
}

// POST /internal/v1/products/stock/decrement-batch
func (h *ProductsHandler) DecrementBatch(w http.ResponseWriter, r *http.Request) {
	handleStockBatch(w, r, h.stock.DecrementStockBatch)
}

// POST /internal/v1/products/stock/replenish-batch
func (h *ProductsHandler) ReplenishBatch(w http.ResponseWriter, r *http.Request) {
	handleStockBatch(w, r, h.stock.ReplenishStockBatch)
}

type stockBatchFunc func(ctx context.Context, idempotencyKey string, items []domain.QuantityItem) error

func handleStockBatch(w http.ResponseWriter, r *http.Request, apply stockBatchFunc) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is required")
		return
	}

	var items []domain.QuantityItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := apply(r.Context(), idempotencyKey, items); err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMissingIdempotencyKey),
		errors.Is(err, service.ErrNoItems),
		errors.Is(err, service.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, repository.ErrOutOfStock),
		errors.Is(err, repository.ErrProductMissing):
		respondError(w, http.StatusConflict, "stock_rejected", err.Error())
	default:
		log.Error().Err(err).Msg("stock operation failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
