package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrRejected means the catalog explicitly refused the operation
	// (insufficient stock, unknown product). Not retried.
	ErrRejected = errors.New("catalog rejected the operation")

	// ErrUnavailable means the catalog could not be reached or answered
	// with a server error after all retry attempts.
	ErrUnavailable = errors.New("catalog unavailable")
)

// QuantityItem is the orders-side view of a (product, quantity) wire pair.
type QuantityItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// ValidationResult mirrors the catalog's validate response.
type ValidationResult struct {
	ProductID         int64   `json:"product_id"`
	RequestedQuantity int     `json:"requested_quantity"`
	Exists            bool    `json:"exists"`
	CanFulfill        bool    `json:"can_fulfill"`
	Name              string  `json:"name"`
	SKU               string  `json:"sku"`
	Price             float64 `json:"price"`
}

// TokenSource supplies service-to-service bearer tokens.
type TokenSource interface {
	ServiceToken(ctx context.Context, audience string) (string, error)
}

type Config struct {
	BaseURL        string
	Audience       string
	AttemptTimeout time.Duration
	MaxAttempts    int
	RetryWait      time.Duration
}

// Client is the order service's gateway to the product catalog. Every call
// attaches a service token, runs through a circuit breaker, and is retried a
// bounded number of times — all three operations are safe to repeat: validate
// is read-only and the stock batches are deduplicated by idempotency key.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 200 * time.Millisecond
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "product-catalog",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:  tokens,
		breaker: breaker,
	}
}

// Validate asks the catalog whether each requested product exists and can be
// fulfilled, returning a price/name/SKU snapshot per product.
func (c *Client) Validate(ctx context.Context, items []QuantityItem) ([]ValidationResult, error) {
	body, err := c.call(ctx, "/internal/v1/products/validate", "", items)
	if err != nil {
		return nil, err
	}

	var results []ValidationResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode validation response: %w", err)
	}
	return results, nil
}

// DecrementStock reserves the batch under the given idempotency key.
func (c *Client) DecrementStock(ctx context.Context, idempotencyKey string, items []QuantityItem) error {
	_, err := c.call(ctx, "/internal/v1/products/stock/decrement-batch", idempotencyKey, items)
	return err
}

// ReplenishStock returns the batch to the catalog under the given key.
func (c *Client) ReplenishStock(ctx context.Context, idempotencyKey string, items []QuantityItem) error {
	_, err := c.call(ctx, "/internal/v1/products/stock/replenish-batch", idempotencyKey, items)
	return err
}

func (c *Client) call(ctx context.Context, path, idempotencyKey string, items []QuantityItem) ([]byte, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.attempt(ctx, path, idempotencyKey, payload)
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrRejected) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Msg("catalog call failed")

		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(c.cfg.RetryWait * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, path, idempotencyKey string, payload []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	token, err := c.tokens.ServiceToken(attemptCtx, c.cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("acquire service token: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %s", ErrRejected, rejectionReason(body))
	default:
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
}

func rejectionReason(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return "request rejected"
}
