package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenTTL is assumed when the auth service does not report an expiry.
const DefaultTokenTTL = 5 * time.Minute

// refreshSkew renews a cached token slightly before it actually expires, so
// a token attached to an outgoing call does not die in flight.
const refreshSkew = 30 * time.Second

type Credentials struct {
	AuthServiceURL string
	ClientID       string
	ClientSecret   string
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenClient fetches service-to-service bearer tokens from the auth service
// and caches them per audience until expiry. Concurrent cache misses for the
// same audience are collapsed into a single outbound request.
type TokenClient struct {
	httpClient *http.Client
	creds      Credentials

	mu     sync.Mutex
	tokens map[string]cachedToken
	group  singleflight.Group
}

func NewTokenClient(creds Credentials, timeout time.Duration) *TokenClient {
	return &TokenClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		creds:  creds,
		tokens: make(map[string]cachedToken),
	}
}

// ServiceToken returns a bearer token valid for calls to the given audience.
func (c *TokenClient) ServiceToken(ctx context.Context, audience string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[audience]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt.Add(-refreshSkew)) {
		return cached.value, nil
	}

	value, err, _ := c.group.Do(audience, func() (interface{}, error) {
		// Re-check under singleflight: another caller may have refreshed
		// while this one waited on the group.
		c.mu.Lock()
		cached, ok := c.tokens[audience]
		c.mu.Unlock()
		if ok && time.Now().Before(cached.expiresAt.Add(-refreshSkew)) {
			return cached.value, nil
		}

		token, err := c.fetchToken(ctx, audience)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.tokens[audience] = token
		c.mu.Unlock()
		return token.value, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (c *TokenClient) fetchToken(ctx context.Context, audience string) (cachedToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.AuthServiceURL, nil)
	if err != nil {
		return cachedToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("X-Client-Id", c.creds.ClientID)
	req.Header.Set("X-Client-Secret", c.creds.ClientSecret)
	req.Header.Set("X-Audience", audience)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cachedToken{}, fmt.Errorf("request service token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cachedToken{}, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return cachedToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if body.Token == "" {
		return cachedToken{}, fmt.Errorf("auth service returned empty token")
	}

	ttl := DefaultTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn) * time.Second
	}

	return cachedToken{value: body.Token, expiresAt: time.Now().Add(ttl)}, nil
}
