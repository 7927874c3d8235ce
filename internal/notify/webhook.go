package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/transition"
)

const defaultWebhookTemplate = `{"device":"{{ .Device }}","transition":{{ toJson .Transition }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Device      string
	Transition  transition.ModeTransition
	GeneratedAt time.Time
}

// WebhookNotifier sends mode transitions to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	device   string
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// Returns nil when the URL is empty.
func NewWebhookNotifier(logger zerolog.Logger, device, webhookURL, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		device:   device,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, change transition.ModeTransition) error {
	if n == nil {
		return nil
	}

	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload := WebhookPayload{
		Device:      n.device,
		Transition:  change,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("previous_mode", string(change.PreviousMode)).
		Str("current_mode", string(change.CurrentMode)).
		Msg("webhook notification sent")

	return nil
}
