package accesspoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/nmcli"
)

// The fallback network has a fixed, deterministic shape. It is deliberately
// open: its sole purpose is reachable first-time setup.
const (
	ProfileName = "sentinel-ap"
	SSID        = "SentinelSetup"
	Band        = "bg"
	Channel     = 6
	Address     = "192.168.4.1/24"
)

const activationWait = 15 * time.Second

type managerClient interface {
	ProfileExists(ctx context.Context, name string) (bool, error)
	ProfileField(ctx context.Context, name, field string) (string, error)
	AddAPProfile(ctx context.Context, profile nmcli.APProfile) nmcli.Outcome
	DeleteProfile(ctx context.Context, name string) nmcli.Outcome
	ActivateProfile(ctx context.Context, name string, wait time.Duration) nmcli.Outcome
	DeactivateProfile(ctx context.Context, name string) nmcli.Outcome
	ActiveConnections(ctx context.Context) ([]nmcli.ActiveConnection, error)
}

// Manager owns the device's own fallback access point profile.
type Manager struct {
	nm     managerClient
	logger zerolog.Logger
}

// New constructs a Manager.
func New(nm managerClient, logger zerolog.Logger) *Manager {
	return &Manager{nm: nm, logger: logger}
}

func profile() nmcli.APProfile {
	return nmcli.APProfile{
		Name:    ProfileName,
		SSID:    SSID,
		Band:    Band,
		Channel: Channel,
		Address: Address,
	}
}

// EnsureProfile creates the access point profile if absent. An existing
// healthy profile is left untouched; a profile that fails the field check is
// considered corrupt and recreated.
func (m *Manager) EnsureProfile(ctx context.Context) error {
	exists, err := m.nm.ProfileExists(ctx, ProfileName)
	if err != nil {
		return fmt.Errorf("check ap profile: %w", err)
	}

	if exists {
		healthy, err := m.profileHealthy(ctx)
		if err != nil {
			return err
		}
		if healthy {
			return nil
		}
		m.logger.Warn().Str("profile", ProfileName).Msg("ap profile corrupt, recreating")
		if outcome := m.nm.DeleteProfile(ctx, ProfileName); outcome != nmcli.Success {
			return fmt.Errorf("delete corrupt ap profile: %s", outcome)
		}
	}

	if outcome := m.nm.AddAPProfile(ctx, profile()); outcome != nmcli.Success {
		return fmt.Errorf("create ap profile: %s", outcome)
	}
	m.logger.Info().Str("profile", ProfileName).Str("ssid", SSID).Msg("ap profile created")
	return nil
}

func (m *Manager) profileHealthy(ctx context.Context) (bool, error) {
	mode, err := m.nm.ProfileField(ctx, ProfileName, "802-11-wireless.mode")
	if err != nil {
		return false, fmt.Errorf("inspect ap profile: %w", err)
	}
	if mode != "ap" {
		return false, nil
	}
	ssid, err := m.nm.ProfileField(ctx, ProfileName, "802-11-wireless.ssid")
	if err != nil {
		return false, fmt.Errorf("inspect ap profile: %w", err)
	}
	return ssid == SSID, nil
}

// Enable activates the access point, deactivating any active station
// connection first. Returns true on success; all failure classes are treated
// identically by callers.
func (m *Manager) Enable(ctx context.Context) bool {
	if err := m.EnsureProfile(ctx); err != nil {
		m.logger.Error().Err(err).Msg("ap profile unavailable")
		return false
	}

	active, err := m.nm.ActiveConnections(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("listing active connections before ap enable failed")
	}
	for _, conn := range active {
		if conn.Name == ProfileName || !strings.Contains(conn.Type, "wireless") {
			continue
		}
		m.logger.Info().Str("connection", conn.Name).Msg("deactivating station connection for ap")
		if outcome := m.nm.DeactivateProfile(ctx, conn.Name); outcome != nmcli.Success {
			m.logger.Warn().Str("connection", conn.Name).Str("outcome", outcome.String()).
				Msg("station deactivation before ap enable failed")
		}
	}

	outcome := m.nm.ActivateProfile(ctx, ProfileName, activationWait)
	if outcome != nmcli.Success {
		m.logger.Error().Str("outcome", outcome.String()).
			Str("diagnosis", diagnoseActivation(outcome)).
			Msg("ap activation failed")
		return false
	}

	m.logger.Info().Str("ssid", SSID).Msg("access point enabled")
	return true
}

// Disable deactivates the access point. No-op when it is not active.
func (m *Manager) Disable(ctx context.Context) bool {
	if !m.IsActive(ctx) {
		return true
	}
	if outcome := m.nm.DeactivateProfile(ctx, ProfileName); outcome != nmcli.Success {
		m.logger.Warn().Str("outcome", outcome.String()).Msg("ap deactivation failed")
		return false
	}
	m.logger.Info().Msg("access point disabled")
	return true
}

// IsActive reports whether the access point profile itself is the interface's
// current active connection, as opposed to a station connection on the same
// device.
func (m *Manager) IsActive(ctx context.Context) bool {
	active, err := m.nm.ActiveConnections(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("listing active connections failed")
		return false
	}
	for _, conn := range active {
		if conn.Name == ProfileName {
			return true
		}
	}
	return false
}

// diagnoseActivation labels an activation failure for the logs. Every class is
// handled the same way by callers.
func diagnoseActivation(outcome nmcli.Outcome) string {
	switch outcome {
	case nmcli.TimedOut:
		return "device busy"
	case nmcli.NotFound:
		return "profile or device missing"
	case nmcli.NotRunning:
		return "manager unreachable"
	default:
		return "activation rejected, possibly unsupported hardware"
	}
}
