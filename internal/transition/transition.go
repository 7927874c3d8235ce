package transition

import (
	"github.com/nholik/wifi-sentinel/internal/state"
)

// ModeTransition captures a change of watchdog mode or active network between
// two consecutive cycles.
type ModeTransition struct {
	PreviousMode state.Mode
	CurrentMode  state.Mode
	PreviousSSID string
	CurrentSSID  string
}

// Degraded reports whether the transition moved away from a working station
// connection.
func (t ModeTransition) Degraded() bool {
	return t.PreviousMode == state.ModeStation && t.CurrentMode != state.ModeStation
}

// Detect compares the previous and current watchdog state and reports a
// transition when mode or active SSID changed. Leaving the initial unknown
// mode is not reported; the first observed mode is a baseline, not a change.
func Detect(previous, current state.State) (ModeTransition, bool) {
	if previous.Mode == state.ModeUnknown {
		return ModeTransition{}, false
	}
	if previous.Mode == current.Mode && previous.ActiveSSID == current.ActiveSSID {
		return ModeTransition{}, false
	}
	return ModeTransition{
		PreviousMode: previous.Mode,
		CurrentMode:  current.Mode,
		PreviousSSID: previous.ActiveSSID,
		CurrentSSID:  current.ActiveSSID,
	}, true
}
