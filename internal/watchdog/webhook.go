package watchdog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"signalcore/internal/resilience"
)

// WebhookSink posts each non-OK CheckResult as a JSON body to a chat/pager
// webhook URL, breaker-protected the same way internal/delivery guards its
// mission-endpoint POSTs.
type WebhookSink struct {
	URL        string
	HTTPClient *http.Client
	Breaker    *resilience.CircuitBreaker
}

// NewWebhookSink returns a WebhookSink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Breaker:    resilience.NewCircuitBreaker(resilience.DefaultConfig("watchdog_pager")),
	}
}

// Send posts r to the webhook URL, breaker-protected. A non-2xx response
// or network error is returned so the caller falls back to the pager log.
func (s *WebhookSink) Send(ctx context.Context, r CheckResult) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("watchdog: marshal pager payload: %w", err)
	}

	_, err = s.Breaker.ExecuteWithContext(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("post: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
