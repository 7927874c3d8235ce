package notify

import (
	"context"

	"github.com/nholik/wifi-sentinel/internal/transition"
)

// Notifier delivers mode transition alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, change transition.ModeTransition) error
}
