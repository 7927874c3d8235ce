package state

import "context"

// Mode is the watchdog's last observed connection mode.
type Mode string

const (
	ModeUnknown      Mode = "unknown"
	ModeStation      Mode = "station"
	ModeAccessPoint  Mode = "access_point"
	ModeDisconnected Mode = "disconnected"
)

// State is the daemon's persisted memory. Invariant: ActiveSSID is non-empty
// exactly when Mode is ModeStation or ModeAccessPoint.
type State struct {
	Mode       Mode
	ActiveSSID string
	LastProbe  int64
}

// Valid reports whether the mode/ssid invariant holds.
func (s State) Valid() bool {
	hasSSID := s.ActiveSSID != ""
	switch s.Mode {
	case ModeStation, ModeAccessPoint:
		return hasSSID
	case ModeUnknown, ModeDisconnected:
		return !hasSSID
	default:
		return false
	}
}

// Store defines the interface for persisting watchdog state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// parseMode maps a stored mode string back to a Mode, defaulting to unknown.
func parseMode(raw string) Mode {
	switch Mode(raw) {
	case ModeStation, ModeAccessPoint, ModeDisconnected:
		return Mode(raw)
	default:
		return ModeUnknown
	}
}
