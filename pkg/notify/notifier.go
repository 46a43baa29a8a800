// Package notify delivers alerts to their channels: console, webhook,
// email. Notifiers are deliberately dumb transports; routing, retry and
// dedup live in the Dispatcher.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sreerevanth/behaviorlens/pkg/config"
	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
)

type Notifier interface {
	Name() string
	Send(ctx context.Context, title, text string) error
}

// Build assembles the notifier set from configuration. The console
// notifier is always present so alerts are never silently droppable.
func Build(cfg *config.Config) []Notifier {
	notifiers := []Notifier{&ConsoleNotifier{}}

	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, &WebhookNotifier{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Timeout: cfg.Webhook.TimeoutD,
		})
	}
	if cfg.Email.Host != "" && cfg.Email.From != "" && len(cfg.Email.To) > 0 {
		notifiers = append(notifiers, &EmailNotifier{
			Host:          cfg.Email.Host,
			Port:          cfg.Email.Port,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			To:            cfg.Email.To,
			UseTLS:        cfg.Email.UseTLS,
			TLSSkipVerify: cfg.Email.TLSSkipVerify,
			SubjectPrefix: cfg.Email.SubjectPrefix,
			Timeout:       10 * time.Second,
		})
	}

	return notifiers
}

// ConsoleNotifier writes alerts to the structured log.
type ConsoleNotifier struct{}

func (c *ConsoleNotifier) Name() string { return "console" }

func (c *ConsoleNotifier) Send(ctx context.Context, title, text string) error {
	logger.Warn(ctx, "ALERT: "+title, "detail", text)
	return nil
}

// WebhookNotifier POSTs alerts as JSON to a configured endpoint.
type WebhookNotifier struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, title, text string) error {
	body := map[string]any{
		"title":   title,
		"message": text,
		"ts":      time.Now().Format(time.RFC3339),
	}
	data, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: w.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status=%d", resp.StatusCode)
	}
	return nil
}
