package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/nholik/wifi-sentinel/internal/state"
	"github.com/nholik/wifi-sentinel/internal/transition"
)

// SlackNotifier posts mode transitions to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	device     string
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the
// webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, device, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		device:     device,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, change transition.ModeTransition) error {
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(buildSlackMessage(n.device, change))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("previous_mode", string(change.PreviousMode)).
		Str("current_mode", string(change.CurrentMode)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessage(device string, change transition.ModeTransition) slack.WebhookMessage {
	summary := fmt.Sprintf("%s: %s", device, describeTransition(change))
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))

	detail := fmt.Sprintf("Mode: *%s* → *%s*", change.PreviousMode, change.CurrentMode)
	if change.CurrentSSID != "" {
		detail = fmt.Sprintf("%s\nNetwork: *%s*", detail, change.CurrentSSID)
	}
	if change.PreviousSSID != "" && change.PreviousSSID != change.CurrentSSID {
		detail = fmt.Sprintf("%s\nPrevious network: %s", detail, change.PreviousSSID)
	}
	section := slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", detail, false, false), nil, nil)

	return slack.WebhookMessage{
		Blocks: &slack.Blocks{BlockSet: []slack.Block{header, section}},
	}
}

func describeTransition(change transition.ModeTransition) string {
	switch {
	case change.CurrentMode == state.ModeAccessPoint && change.Degraded():
		return "lost internet, broadcasting fallback access point"
	case change.CurrentMode == state.ModeStation && change.PreviousMode == state.ModeAccessPoint:
		return fmt.Sprintf("back online via %s", change.CurrentSSID)
	case change.CurrentMode == state.ModeStation:
		return fmt.Sprintf("switched to %s", change.CurrentSSID)
	case change.CurrentMode == state.ModeDisconnected:
		return "offline, no network could be established"
	default:
		return fmt.Sprintf("entered %s mode", change.CurrentMode)
	}
}
