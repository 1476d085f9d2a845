package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wbpulse/internal/config"
	"wbpulse/internal/types"
)

// maxResponseBodyRead limits how much of a response body we read for error
// messages.
const maxResponseBodyRead = 4096

// fixedRetryDelays is the in-round retry schedule. Queue-level requeues with
// growing backoff sit on top of this.
var fixedRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

// Payload is the JSON body POSTed to the seller's webhook endpoint.
type Payload struct {
	ID         string          `json:"id"`
	CabinetID  string          `json:"cabinet_id"`
	EventType  types.EventType `json:"event_type"`
	Priority   types.Priority  `json:"priority"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	GroupKey   string          `json:"group_key,omitempty"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Transition string          `json:"transition"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Result describes the outcome of one delivery round.
type Result struct {
	Status        types.DeliveryStatus
	StatusCode    int
	Attempts      int
	Retryable     bool
	FailureReason string
}

// Sender delivers notifications over HTTP POST with HMAC signing, a request
// timeout and a fixed retry schedule per round.
type Sender struct {
	httpClient *http.Client
	signer     *SignatureManager
	cfg        config.WebhookConfig
	logger     types.Logger
	sleepFn    func(context.Context, time.Duration) error
}

// NewSender creates a Sender with its own timeout-bounded HTTP client.
func NewSender(cfg config.WebhookConfig, logger types.Logger) *Sender {
	return &Sender{
		httpClient: &http.Client{Timeout: cfg.DefaultTimeout},
		signer:     NewSignatureManager(),
		cfg:        cfg,
		logger:     logger,
		sleepFn:    sleepCtx,
	}
}

// NewSenderWithClient creates a Sender with a caller-supplied HTTP client.
// This constructor exists for testing against httptest servers.
func NewSenderWithClient(cfg config.WebhookConfig, client *http.Client, logger types.Logger) *Sender {
	s := NewSender(cfg, logger)
	s.httpClient = client
	return s
}

// SetSleepFunc overrides the inter-attempt sleep for tests.
func (s *Sender) SetSleepFunc(fn func(context.Context, time.Duration) error) {
	s.sleepFn = fn
}

// ValidateURL checks that a webhook destination is acceptable: HTTPS only.
func ValidateURL(url string) error {
	if url == "" {
		return fmt.Errorf("webhook: url is required")
	}
	if !strings.HasPrefix(strings.ToLower(url), "https://") {
		return fmt.Errorf("webhook: url must use HTTPS")
	}
	return nil
}

// Send delivers one notification to the cabinet's webhook URL. It attempts
// up to cfg.MaxAttempts POSTs per round, sleeping per the fixed schedule
// between attempts. Non-retryable failures (4xx other than 429) abort the
// round immediately.
//
// The payload and its signature are identical on every attempt; delivery is
// at-least-once and consumers dedupe on the notification ID.
func (s *Sender) Send(ctx context.Context, n types.Notification, url string, secret SecretConfig) (*Result, error) {
	body, err := json.Marshal(Payload{
		ID:         n.ID,
		CabinetID:  n.CabinetID,
		EventType:  n.EventType,
		Priority:   n.Priority,
		Title:      n.Title,
		Body:       n.Body,
		GroupKey:   n.GroupKey,
		EntityType: string(n.EntityType),
		EntityID:   n.EntityID,
		Transition: n.Transition,
		Data:       n.Payload,
		CreatedAt:  n.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal payload for %s: %w", n.ID, err)
	}

	var signature string
	if secret.Secret != "" {
		// Timestamp pinned to creation time keeps the signature stable
		// across retries and requeues.
		signature, err = s.signer.Sign(body, secret, n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("webhook: sign payload for %s: %w", n.ID, err)
		}
	}

	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var last *Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				last.Attempts = attempt
				return last, nil
			}
			return nil, err
		}

		last = s.post(ctx, n, url, body, signature)
		last.Attempts = attempt + 1

		if last.Status == types.DeliverySent || !last.Retryable {
			return last, nil
		}

		if attempt < maxAttempts-1 {
			if err := s.sleepFn(ctx, retryDelay(attempt)); err != nil {
				return last, nil
			}
		}
	}

	return last, nil
}

// post performs a single POST and classifies the response:
//   - 2xx: sent
//   - 429 and 5xx: failed, retryable
//   - other 4xx: failed, permanent
//   - network errors and timeouts: failed, retryable
func (s *Sender) post(ctx context.Context, n types.Notification, url string, body []byte, signature string) *Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Result{
			Status:        types.DeliveryFailed,
			Retryable:     false,
			FailureReason: fmt.Sprintf("bad_request: %v", err),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("X-WBPulse-Event", string(n.EventType))
	req.Header.Set("X-WBPulse-Notification-Id", n.ID)
	req.Header.Set("Idempotency-Key", n.ID)
	if signature != "" {
		req.Header.Set("X-WBPulse-Signature", signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("webhook network error",
			"notification_id", n.ID,
			"destination", url,
			"error", err.Error(),
		)
		return &Result{
			Status:        types.DeliveryFailed,
			Retryable:     true,
			FailureReason: fmt.Sprintf("network_error: %v", err),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.logger.Info("webhook delivered",
			"notification_id", n.ID,
			"destination", url,
			"status", resp.StatusCode,
		)
		return &Result{Status: types.DeliverySent, StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &Result{
			Status:        types.DeliveryFailed,
			StatusCode:    resp.StatusCode,
			Retryable:     true,
			FailureReason: "rate_limited_429",
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		s.logger.Warn("webhook client error",
			"notification_id", n.ID,
			"destination", url,
			"status", resp.StatusCode,
			"body", truncateBody(respBody),
		)
		return &Result{
			Status:        types.DeliveryFailed,
			StatusCode:    resp.StatusCode,
			Retryable:     false,
			FailureReason: fmt.Sprintf("client_error_%d: %s", resp.StatusCode, truncateBody(respBody)),
		}

	default: // 5xx and anything unexpected
		return &Result{
			Status:        types.DeliveryFailed,
			StatusCode:    resp.StatusCode,
			Retryable:     true,
			FailureReason: fmt.Sprintf("server_error_%d: %s", resp.StatusCode, truncateBody(respBody)),
		}
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < len(fixedRetryDelays) {
		return fixedRetryDelays[attempt]
	}
	return fixedRetryDelays[len(fixedRetryDelays)-1]
}

func truncateBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
