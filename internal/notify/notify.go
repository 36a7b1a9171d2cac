// Package notify delivers operator-facing alerts and status messages.
//
// Every long-running service emits a startup status, periodic heartbeats,
// and an alert before any abort; no failure terminates a component silently.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier is the outbound notification capability consumed by every
// service. Implementations must be safe for concurrent use.
type Notifier interface {
	// SendAlert delivers a failure or warning message.
	SendAlert(ctx context.Context, text string) error

	// SendStatus delivers an informational status message.
	SendStatus(ctx context.Context, text string) error
}

// Webhook posts JSON messages to a configured HTTP endpoint.
type Webhook struct {
	source string
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier. The source name is included in
// every message so one channel can serve several services.
func NewWebhook(source, url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		source: source,
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type webhookPayload struct {
	Source string `json:"source"`
	Level  string `json:"level"`
	Text   string `json:"text"`
}

// SendAlert posts an alert-level message.
func (w *Webhook) SendAlert(ctx context.Context, text string) error {
	return w.post(ctx, "alert", text)
}

// SendStatus posts a status-level message.
func (w *Webhook) SendStatus(ctx context.Context, text string) error {
	return w.post(ctx, "status", text)
}

func (w *Webhook) post(ctx context.Context, level, text string) error {
	body, err := json.Marshal(webhookPayload{
		Source: w.source,
		Level:  level,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		// A broken notification channel must never take down the data path.
		w.logger.Error("webhook delivery failed", "level", level, "error", err)
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		w.logger.Error("webhook rejected", "level", level, "status", resp.StatusCode)
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	return nil
}

// Nop discards all messages. Used in tests and when no webhook is configured.
type Nop struct{}

func (Nop) SendAlert(context.Context, string) error  { return nil }
func (Nop) SendStatus(context.Context, string) error { return nil }
