package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wolfeidau/wishroom/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WebhookConfig configures delivery to the chat front-end callback.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *WebhookConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks the webhook configuration.
func (c *WebhookConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url must be http or https, got %q", c.URL)
	}
	return nil
}

// WebhookDispatcher POSTs each message as JSON to a callback URL.
type WebhookDispatcher struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookDispatcher creates a dispatcher with an instrumented HTTP client.
func NewWebhookDispatcher(cfg WebhookConfig) (*WebhookDispatcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &WebhookDispatcher{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
	}, nil
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, msg *models.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	return d.post(ctx, body)
}

func (d *WebhookDispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
