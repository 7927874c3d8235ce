package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/accesspoint"
	"github.com/nholik/wifi-sentinel/internal/config"
	"github.com/nholik/wifi-sentinel/internal/metrics"
	"github.com/nholik/wifi-sentinel/internal/nmcli"
	"github.com/nholik/wifi-sentinel/internal/probe"
	"github.com/nholik/wifi-sentinel/internal/state"
	"github.com/nholik/wifi-sentinel/internal/station"
)

// settleDelay is how long a fresh association gets before the confirming
// probe runs.
const settleDelay = 3 * time.Second

type prober interface {
	Probe(ctx context.Context) probe.Verdict
	ManagerVerdict(ctx context.Context) nmcli.ConnectivityState
}

type scanner interface {
	Scan(ctx context.Context) map[string]struct{}
}

type stationManager interface {
	Connect(ctx context.Context, ssid, password string) station.Outcome
	Disconnect(ctx context.Context)
	ActiveSSID(ctx context.Context) (string, bool)
}

type apManager interface {
	Enable(ctx context.Context) bool
	IsActive(ctx context.Context) bool
}

// Orchestrator is the per-tick state machine. It owns no state of its own:
// the runner hands it the current configuration snapshot and watchdog state
// and receives the next state back.
type Orchestrator struct {
	prober  prober
	catalog scanner
	station stationManager
	ap      apManager
	metrics *metrics.Metrics
	settle  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// Option customizes orchestrator behavior.
type Option func(*Orchestrator)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithSettleDelay overrides the post-association settle delay (primarily for
// testing).
func WithSettleDelay(delay time.Duration) Option {
	return func(o *Orchestrator) {
		o.settle = delay
	}
}

// WithClock overrides the time source (primarily for testing).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New constructs an Orchestrator.
func New(prober prober, catalog scanner, stationMgr stationManager, ap apManager, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		prober:  prober,
		catalog: catalog,
		station: stationMgr,
		ap:      ap,
		settle:  settleDelay,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Tick evaluates the state machine once and returns the next watchdog state.
// The persisted mode is a hint only: every branch validates against what is
// actually active and reachable right now.
func (o *Orchestrator) Tick(ctx context.Context, snapshot config.Snapshot, current state.State) state.State {
	next := current

	if !snapshot.Onboarded {
		// Before onboarding the device only ever broadcasts its own
		// network; station connections are never attempted.
		if o.ap.IsActive(ctx) {
			next.Mode = state.ModeAccessPoint
			next.ActiveSSID = accesspoint.SSID
			return next
		}
		o.logger.Info().Msg("not onboarded, enabling setup access point")
		return o.enterAccessPoint(ctx, next)
	}

	if o.ap.IsActive(ctx) {
		o.logger.Debug().Msg("access point active, trying candidates")
		if ssid, ok := o.failover(ctx, snapshot, &next); ok {
			return o.enterStation(next, ssid)
		}
		// A failed station attempt tears the access point down before
		// associating, so it must be brought back up, not assumed alive.
		return o.enterAccessPoint(ctx, next)
	}

	if ssid, ok := o.station.ActiveSSID(ctx); ok {
		verdict := o.runProbe(ctx, &next)
		if verdict.Reachable {
			return o.enterStation(next, ssid)
		}

		o.logger.Warn().Str("ssid", ssid).Str("failure_class", string(verdict.FailureClass)).
			Str("manager_verdict", string(o.prober.ManagerVerdict(ctx))).
			Msg("station lost internet, disconnecting")
		o.station.Disconnect(ctx)

		if newSSID, ok := o.failover(ctx, snapshot, &next); ok {
			return o.enterStation(next, newSSID)
		}
		return o.enterAccessPoint(ctx, next)
	}

	o.logger.Debug().Msg("no active connection, trying candidates")
	if ssid, ok := o.failover(ctx, snapshot, &next); ok {
		return o.enterStation(next, ssid)
	}
	return o.enterAccessPoint(ctx, next)
}

// failover runs the candidate trial order: primary first when configured,
// then the remaining candidates in list order, each exactly once. Candidates
// not visible in the scan are skipped; a candidate that associates but fails
// the confirming probe is disconnected and passed over.
func (o *Orchestrator) failover(ctx context.Context, snapshot config.Snapshot, next *state.State) (string, bool) {
	order := snapshot.TrialOrder()
	if len(order) == 0 {
		o.logger.Info().Msg("no candidate networks configured")
		return "", false
	}

	visible := o.catalog.Scan(ctx)
	for _, candidate := range order {
		if _, ok := visible[candidate.SSID]; !ok {
			o.logger.Debug().Str("ssid", candidate.SSID).Msg("candidate not visible, skipping")
			continue
		}

		outcome := o.station.Connect(ctx, candidate.SSID, candidate.Password)
		o.metrics.RecordConnectAttempt(outcome.String())
		switch outcome {
		case station.Connected:
			sleepWithContext(ctx, o.settle)
			verdict := o.runProbe(ctx, next)
			if verdict.Reachable {
				return candidate.SSID, true
			}
			o.logger.Warn().Str("ssid", candidate.SSID).
				Str("failure_class", string(verdict.FailureClass)).
				Msg("candidate associated but unreachable, moving on")
			o.station.Disconnect(ctx)
		case station.ManagerUnavailable:
			// Nothing else can succeed this cycle either.
			return "", false
		default:
			o.logger.Warn().Str("ssid", candidate.SSID).Str("outcome", outcome.String()).
				Msg("candidate connect failed")
		}

		if ctx.Err() != nil {
			return "", false
		}
	}

	o.logger.Warn().Int("candidates", len(order)).Msg("all candidates exhausted")
	return "", false
}

func (o *Orchestrator) runProbe(ctx context.Context, next *state.State) probe.Verdict {
	verdict := o.prober.Probe(ctx)
	next.LastProbe = o.now().Unix()
	o.metrics.RecordProbe(string(verdict.FailureClass))
	return verdict
}

func (o *Orchestrator) enterStation(next state.State, ssid string) state.State {
	next.Mode = state.ModeStation
	next.ActiveSSID = ssid
	return next
}

func (o *Orchestrator) enterAccessPoint(ctx context.Context, next state.State) state.State {
	enabled := o.ap.Enable(ctx)
	o.metrics.RecordAPActivation(enabled)
	if enabled {
		next.Mode = state.ModeAccessPoint
		next.ActiveSSID = accesspoint.SSID
		return next
	}
	o.logger.Error().Msg("access point fallback failed, no connectivity at all")
	next.Mode = state.ModeDisconnected
	next.ActiveSSID = ""
	return next
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
