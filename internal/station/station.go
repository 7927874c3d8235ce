package station

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/nmcli"
)

// Outcome classifies a connect attempt for the orchestrator.
type Outcome int

const (
	// Connected means the activation succeeded. Association does not imply a
	// working internet path; the caller must re-probe.
	Connected Outcome = iota
	// TimedOut means activation did not complete within the bounded wait.
	TimedOut
	// ActivationFailed is a generic retryable activation failure.
	ActivationFailed
	// NotFound means the network or profile does not exist; retrying cannot
	// help.
	NotFound
	// ManagerUnavailable means NetworkManager is unreachable; fatal for the
	// whole cycle.
	ManagerUnavailable
)

func (o Outcome) String() string {
	switch o {
	case Connected:
		return "connected"
	case TimedOut:
		return "timed_out"
	case ActivationFailed:
		return "activation_failed"
	case NotFound:
		return "not_found"
	case ManagerUnavailable:
		return "manager_unavailable"
	default:
		return "unknown"
	}
}

const (
	maxAttempts    = 3
	retryDelay     = 2 * time.Second
	activationWait = 30 * time.Second
)

type managerClient interface {
	ActiveConnections(ctx context.Context) ([]nmcli.ActiveConnection, error)
	ActivateProfile(ctx context.Context, name string, wait time.Duration) nmcli.Outcome
	ConnectWifi(ctx context.Context, ssid, password string, wait time.Duration) nmcli.Outcome
	DeactivateProfile(ctx context.Context, name string) nmcli.Outcome
	ProfileField(ctx context.Context, name, field string) (string, error)
}

type profileResolver interface {
	ResolveProfile(ctx context.Context, ssid string) (string, bool)
}

// Manager establishes and tears down station connections on the managed
// interface.
type Manager struct {
	nm         managerClient
	profiles   profileResolver
	apProfile  string
	retryDelay time.Duration
	logger     zerolog.Logger
}

// Option customizes manager behavior.
type Option func(*Manager)

// WithRetryDelay overrides the fixed delay between attempts (primarily for
// testing).
func WithRetryDelay(delay time.Duration) Option {
	return func(m *Manager) {
		m.retryDelay = delay
	}
}

// New constructs a Manager. apProfile names the fallback access point profile
// so it can be deactivated before a station attempt and excluded from station
// queries.
func New(nm managerClient, profiles profileResolver, apProfile string, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		nm:         nm,
		profiles:   profiles,
		apProfile:  apProfile,
		retryDelay: retryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect joins the given SSID, retrying up to three times with a short fixed
// delay. An active access point connection is deactivated first. A saved
// profile is preferred over creating an ephemeral connection from the
// supplied credentials.
func (m *Manager) Connect(ctx context.Context, ssid, password string) Outcome {
	m.deactivateAP(ctx)

	profileName, haveProfile := m.profiles.ResolveProfile(ctx, ssid)

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(m.retryDelay), maxAttempts-1)
	attempt := 0
	for {
		attempt++
		outcome := m.attemptOnce(ctx, ssid, password, profileName, haveProfile)

		switch outcome {
		case Connected:
			m.logger.Info().Str("ssid", ssid).Int("attempt", attempt).Msg("station connected")
			return Connected
		case NotFound:
			// Retrying a nonexistent network or profile cannot help.
			m.logger.Warn().Str("ssid", ssid).Msg("network or profile not found")
			return NotFound
		case ManagerUnavailable:
			m.logger.Error().Str("ssid", ssid).Msg("network manager unavailable")
			return ManagerUnavailable
		default:
			m.logger.Debug().Str("ssid", ssid).Int("attempt", attempt).
				Str("outcome", outcome.String()).Msg("station attempt failed")
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			m.logger.Warn().Str("ssid", ssid).Int("attempts", attempt).
				Str("outcome", outcome.String()).Msg("station connect exhausted retries")
			return outcome
		}
		if !sleepWithContext(ctx, wait) {
			return outcome
		}
	}
}

func (m *Manager) attemptOnce(ctx context.Context, ssid, password, profileName string, haveProfile bool) Outcome {
	var raw nmcli.Outcome
	if haveProfile {
		raw = m.nm.ActivateProfile(ctx, profileName, activationWait)
	} else {
		raw = m.nm.ConnectWifi(ctx, ssid, password, activationWait)
	}
	return mapOutcome(raw)
}

// Disconnect tears down whichever station connection is currently active.
// No-op when none is.
func (m *Manager) Disconnect(ctx context.Context) {
	for _, conn := range m.activeStations(ctx) {
		m.logger.Info().Str("connection", conn.Name).Msg("disconnecting station")
		if outcome := m.nm.DeactivateProfile(ctx, conn.Name); outcome != nmcli.Success {
			m.logger.Warn().Str("connection", conn.Name).Str("outcome", outcome.String()).
				Msg("station disconnect failed")
		}
	}
}

// ActiveSSID returns the SSID of the currently active station connection, if
// any.
func (m *Manager) ActiveSSID(ctx context.Context) (string, bool) {
	stations := m.activeStations(ctx)
	if len(stations) == 0 {
		return "", false
	}

	name := stations[0].Name
	ssid, err := m.nm.ProfileField(ctx, name, "802-11-wireless.ssid")
	if err != nil || ssid == "" {
		// Ephemeral connections are named after their SSID.
		return name, true
	}
	return ssid, true
}

func (m *Manager) activeStations(ctx context.Context) []nmcli.ActiveConnection {
	active, err := m.nm.ActiveConnections(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("listing active connections failed")
		return nil
	}

	var stations []nmcli.ActiveConnection
	for _, conn := range active {
		if conn.Name == m.apProfile || !strings.Contains(conn.Type, "wireless") {
			continue
		}
		stations = append(stations, conn)
	}
	return stations
}

func (m *Manager) deactivateAP(ctx context.Context) {
	active, err := m.nm.ActiveConnections(ctx)
	if err != nil {
		return
	}
	for _, conn := range active {
		if conn.Name != m.apProfile {
			continue
		}
		m.logger.Info().Msg("deactivating access point before station connect")
		if outcome := m.nm.DeactivateProfile(ctx, m.apProfile); outcome != nmcli.Success {
			m.logger.Warn().Str("outcome", outcome.String()).
				Msg("ap deactivation before station connect failed")
		}
		return
	}
}

func mapOutcome(raw nmcli.Outcome) Outcome {
	switch raw {
	case nmcli.Success:
		return Connected
	case nmcli.TimedOut:
		return TimedOut
	case nmcli.NotFound:
		return NotFound
	case nmcli.NotRunning:
		return ManagerUnavailable
	default:
		return ActivationFailed
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
