package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/metrics"
	"github.com/terangashop/server/internal/shared/retry"
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider   Method
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// apiClient is the shared outbound HTTP layer for provider implementations.
// Every call goes through the circuit breaker and the retry policy: 5xx and
// transport errors are retried with doubling backoff, 4xx fails immediately.
type apiClient struct {
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	policy   retry.Policy
	metrics  *metrics.Metrics
	provider Method
	logger   *zap.Logger
}

func newAPIClient(httpClient *http.Client, breaker *gobreaker.CircuitBreaker[[]byte], policy retry.Policy, m *metrics.Metrics, provider Method, logger *zap.Logger) *apiClient {
	return &apiClient{
		http:     httpClient,
		breaker:  breaker,
		policy:   policy,
		metrics:  m,
		provider: provider,
		logger:   logger,
	}
}

// postJSON sends a JSON body and returns the raw response body.
func (c *apiClient) postJSON(ctx context.Context, operation, endpoint string, headers map[string]string, body []byte) ([]byte, error) {
	return c.do(ctx, operation, http.MethodPost, endpoint, headers, body, "application/json")
}

// postForm sends a form-encoded body and returns the raw response body.
func (c *apiClient) postForm(ctx context.Context, operation, endpoint string, headers map[string]string, form url.Values) ([]byte, error) {
	return c.do(ctx, operation, http.MethodPost, endpoint, headers, []byte(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *apiClient) do(ctx context.Context, operation, method, endpoint string, headers map[string]string, body []byte, contentType string) ([]byte, error) {
	var response []byte

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		start := time.Now()
		result, err := c.breaker.Execute(func() ([]byte, error) {
			return c.roundTrip(ctx, method, endpoint, headers, body, contentType)
		})
		if c.metrics != nil {
			c.metrics.ProviderRequestDuration.
				WithLabelValues(string(c.provider), operation).
				Observe(time.Since(start).Seconds())
		}
		if err != nil {
			c.logger.Warn("provider api call failed",
				zap.String("provider", string(c.provider)),
				zap.String("operation", operation),
				zap.Error(err),
			)
			return err
		}
		response = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (c *apiClient) roundTrip(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	apiErr := &APIError{
		Provider:   c.provider,
		StatusCode: resp.StatusCode,
		Body:       truncate(string(respBody), 512),
	}
	if resp.StatusCode >= 500 {
		// Retryable
		return nil, apiErr
	}
	return nil, retry.Permanent(apiErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
