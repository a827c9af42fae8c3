package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers alert messages to a configured webhook endpoint.
// Delivery is best-effort: failures are logged, never retried.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNotifier creates a notifier posting to url with the given timeout.
func NewNotifier(url string, timeout time.Duration, logger *zap.Logger) *Notifier {
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type payload struct {
	Text      string `json:"text"`
	DedupeKey string `json:"dedupe_key,omitempty"`
}

// Send posts the message and reports delivery success. Any 2xx status
// counts as delivered.
func (n *Notifier) Send(ctx context.Context, message, dedupeKey string) bool {
	if n.url == "" {
		n.logger.Warn("webhook url not configured, dropping alert", zap.String("key", dedupeKey))
		return false
	}

	body, err := json.Marshal(payload{Text: message, DedupeKey: dedupeKey})
	if err != nil {
		n.logger.Error("failed to marshal webhook payload", zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to create webhook request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("webhook request failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected alert",
			zap.Int("status", resp.StatusCode), zap.String("key", dedupeKey))
		return false
	}
	return true
}
