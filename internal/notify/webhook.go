package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/pkg/retry"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
)

// WebhookConfig describes the endpoint that receives scheduling events.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// WebhookNotifier POSTs the event as JSON.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier. Timeout defaults to 15s.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WebhookNotifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify returns a retry.Permanent error for 4xx responses other than 429,
// which no amount of retrying will fix.
func (n *WebhookNotifier) Notify(ctx context.Context, ev kafka.TasksScheduledEvent) error {
	ctx, span := telemetry.Tracer("notifier").Start(ctx, "notify.webhook")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.url", n.cfg.URL))

	body, err := json.Marshal(ev)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal webhook body: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return fmt.Errorf("webhook call to %s: %w", n.cfg.URL, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	err = fmt.Errorf("webhook %s returned status %d", n.cfg.URL, resp.StatusCode)
	span.RecordError(err)
	span.SetStatus(codes.Error, "bad status code")
	if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
