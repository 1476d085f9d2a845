// Package wb is the anti-corruption layer between wbpulse domain logic and
// the Wildberries seller APIs (statistics and feedbacks). All outbound calls
// are routed through the Client, which enforces consistent resilience
// patterns: circuit breaking, retries with exponential backoff honoring
// Retry-After, and error mapping to typed AppErrors.
//
// The WB statistics API is eventually consistent and aggressively rate
// limited (one request per minute per endpoint on some plans); callers are
// expected to pull incrementally via dateFrom and tolerate stale reads.
package wb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"wbpulse/internal/config"
	"wbpulse/internal/types"
)

// maxErrorBodyRead limits how much of an error response body is read for
// diagnostics.
const maxErrorBodyRead = 2048

// Client is the resilient HTTP client for the WB seller APIs.
type Client struct {
	cfg        config.WBConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	sleepFn    func(context.Context, time.Duration) error
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleepFunc overrides the sleep between retries (tests).
func WithSleepFunc(fn func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) { c.sleepFn = fn }
}

// NewClient creates a Client with a circuit breaker that opens after five
// consecutive upstream failures.
func NewClient(cfg config.WBConfig, opts ...ClientOption) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "wildberries",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		breaker:    cb,
		sleepFn:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs an authenticated GET with retries on 429/5xx. The request
// body is decoded into out.
func (c *Client) get(ctx context.Context, baseURL, path string, apiKey string, query url.Values, out any) error {
	u := baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastStatus int
	var lastErr error

	maxAttempts := 1 + c.cfg.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamWB, "request cancelled", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build WB request", err)
		}
		req.Header.Set("Authorization", apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if traceID := types.GetRequestID(ctx); traceID != "" {
			req.Header.Set("X-Request-Id", traceID)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 429 and 5xx count as failures for the breaker.
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return types.NewAppError(types.ErrCodeUpstreamAuth,
					fmt.Sprintf("WB rejected API key (%d)", resp.StatusCode), nil)
			}
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyRead))
				return types.NewAppError(types.ErrCodeUpstreamWB,
					fmt.Sprintf("WB returned %d: %s", resp.StatusCode, body), nil)
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return types.NewAppError(types.ErrCodeUpstreamWB, "failed to decode WB response", err)
			}
			return nil
		}

		// Breaker open: fail fast, no point burning retries.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.NewAppError(types.ErrCodeUpstreamWB, "WB circuit breaker open", err)
		}

		lastErr = err
		retryAfter := time.Duration(0)
		if resp != nil {
			lastStatus = resp.StatusCode
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
		}

		if attempt < maxAttempts-1 {
			if err := c.sleepFn(ctx, c.backoff(attempt, retryAfter)); err != nil {
				return types.NewAppError(types.ErrCodeUpstreamWB, "retry interrupted", err)
			}
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return types.NewAppError(types.ErrCodeUpstreamRateLimit, "WB rate limit persisted through retries", lastErr)
	}
	return types.NewAppError(types.ErrCodeUpstreamWB, "WB unavailable after retries", lastErr)
}

// backoff computes the retry wait: Retry-After when given, otherwise
// exponential with jitter clamped to [MinRetryWait, MaxRetryWait].
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.cfg.MaxRetryWait {
			return c.cfg.MaxRetryWait
		}
		return retryAfter
	}

	wait := c.cfg.MinRetryWait << uint(attempt)
	if wait > c.cfg.MaxRetryWait {
		wait = c.cfg.MaxRetryWait
	}
	// Full jitter on the upper half keeps retries spread without collapsing
	// below MinRetryWait.
	half := wait / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
