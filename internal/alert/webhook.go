package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
)

// retryBackoff is multiplied by the attempt number between retries.
var retryBackoff = time.Second

var httpClient = &http.Client{Timeout: requestTimeout}

// Send posts an alert event to a webhook endpoint, retrying on 5xx and
// transport errors. Cancelling ctx aborts the request in flight and any
// pending backoff.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, time.Duration(attempt)*retryBackoff); err != nil {
				return fmt.Errorf("webhook abandoned after %d attempts: %w (last: %v)", attempt, err, lastErr)
			}
		}

		status, err := post(ctx, cfg, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fmt.Errorf("webhook abandoned: %w", ctx.Err())
			}
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", status)
		default:
			lastErr = fmt.Errorf("webhook server error: HTTP %d", status)
		}
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// post makes one attempt. The body reader is consumed, so every attempt
// builds its own request.
func post(ctx context.Context, cfg Config, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func backoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
