package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/config"
	"github.com/nholik/wifi-sentinel/internal/metrics"
	"github.com/nholik/wifi-sentinel/internal/notify"
	"github.com/nholik/wifi-sentinel/internal/state"
	"github.com/nholik/wifi-sentinel/internal/transition"
)

// Ticker is the minimal interface needed for driving the watchdog loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Orchestrator evaluates the state machine once per tick.
type Orchestrator interface {
	Tick(ctx context.Context, snapshot config.Snapshot, current state.State) state.State
}

// Runner drives the watchdog: it owns the configuration snapshot and the
// current state, ticks the orchestrator on a fixed interval, persists every
// transition, and honors reload and shutdown requests at loop checkpoints.
type Runner struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	networksPath  string
	tickerFactory func(time.Duration) Ticker
	orchestrator  Orchestrator
	stateStore    state.Store
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	loadNetworks  func(string) (config.Snapshot, error)
	reload        <-chan struct{}

	snapshot config.Snapshot
	current  state.State
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithNotifier enables mode transition notifications.
func WithNotifier(notifier notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = notifier
	}
}

// WithMetrics enables cycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithReloadChannel attaches the reload request channel. A request reloads
// the networks configuration and forces an immediate extra cycle.
func WithReloadChannel(reload <-chan struct{}) Option {
	return func(r *Runner) {
		r.reload = reload
	}
}

// WithNetworksLoader overrides how the networks configuration is read
// (primarily for testing).
func WithNetworksLoader(load func(string) (config.Snapshot, error)) Option {
	return func(r *Runner) {
		r.loadNetworks = load
	}
}

// New constructs a Runner.
func New(logger zerolog.Logger, pollInterval time.Duration, networksPath string, orchestrator Orchestrator, store state.Store, opts ...Option) *Runner {
	r := &Runner{
		logger:       logger,
		pollInterval: pollInterval,
		networksPath: networksPath,
		orchestrator: orchestrator,
		stateStore:   store,
		loadNetworks: config.LoadNetworks,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the watchdog loop and blocks until the context is canceled.
// The initial networks load failing on a present file is fatal with the
// config exit code; later reload failures keep the previous snapshot.
func (r *Runner) Run(ctx context.Context) error {
	if r.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	snapshot, err := r.loadNetworks(r.networksPath)
	if err != nil {
		return &StartupError{Code: ExitConfigUnreadable, Op: "loading networks configuration", Err: err}
	}
	r.snapshot = snapshot
	r.logSnapshot("networks configuration loaded")

	// The persisted state is a hint; the first cycle re-validates it.
	restored, err := r.stateStore.Load(ctx)
	if err != nil {
		return &StartupError{Code: ExitConfigUnreadable, Op: "loading persisted state", Err: err}
	}
	r.current = restored
	r.logger.Info().Str("mode", string(restored.Mode)).Str("ssid", restored.ActiveSSID).
		Msg("previous state restored")

	if err := r.RunOnce(ctx); err != nil {
		return err
	}

	ticker := r.tickerFactory(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("watchdog stopped")
			return nil
		case <-r.reload:
			r.reloadSnapshot()
			if err := r.RunOnce(ctx); err != nil {
				return err
			}
		case <-ticker.C():
			if err := r.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce executes a single watchdog cycle: tick the orchestrator, persist
// the resulting state, and report any transition. Only a failure to persist
// state is allowed to terminate the process.
func (r *Runner) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	start := time.Now()
	next := r.orchestrator.Tick(ctx, r.snapshot, r.current)

	if change, ok := transition.Detect(r.current, next); ok {
		event := r.logger.Info()
		if change.Degraded() {
			event = r.logger.Warn()
		}
		event.Str("previous_mode", string(change.PreviousMode)).
			Str("current_mode", string(change.CurrentMode)).
			Str("previous_ssid", change.PreviousSSID).
			Str("current_ssid", change.CurrentSSID).
			Msg("mode transition")

		if r.notifier != nil {
			if err := r.notifier.Notify(ctx, change); err != nil {
				r.logger.Warn().Err(err).Msg("transition notification failed")
			}
		}
	}

	if err := r.stateStore.Save(ctx, next); err != nil && ctx.Err() == nil {
		return &RuntimeError{Op: "persisting state", Err: err}
	}
	r.current = next

	duration := time.Since(start)
	r.metrics.ObserveCycle(duration)
	r.metrics.SetMode(next.Mode)
	if err := r.metrics.Write(); err != nil {
		r.logger.Warn().Err(err).Msg("writing metrics textfile failed")
	}

	r.logger.Debug().Dur("duration", duration).Str("mode", string(next.Mode)).
		Str("ssid", next.ActiveSSID).Msg("cycle complete")
	return nil
}

// State returns the current watchdog state (primarily for testing).
func (r *Runner) State() state.State {
	return r.current
}

func (r *Runner) reloadSnapshot() {
	snapshot, err := r.loadNetworks(r.networksPath)
	if err != nil {
		r.logger.Warn().Err(err).Msg("reload failed, keeping previous networks configuration")
		return
	}
	r.snapshot = snapshot
	r.logSnapshot("networks configuration reloaded")
}

func (r *Runner) logSnapshot(msg string) {
	r.logger.Info().Bool("onboarded", r.snapshot.Onboarded).
		Int("candidates", len(r.snapshot.Candidates)).
		Str("primary_ssid", r.snapshot.PrimarySSID).Msg(msg)
}
