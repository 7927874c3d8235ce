package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/accesspoint"
	"github.com/nholik/wifi-sentinel/internal/catalog"
	"github.com/nholik/wifi-sentinel/internal/config"
	"github.com/nholik/wifi-sentinel/internal/logging"
	"github.com/nholik/wifi-sentinel/internal/metrics"
	"github.com/nholik/wifi-sentinel/internal/nmcli"
	"github.com/nholik/wifi-sentinel/internal/notify"
	"github.com/nholik/wifi-sentinel/internal/orchestrator"
	"github.com/nholik/wifi-sentinel/internal/probe"
	"github.com/nholik/wifi-sentinel/internal/runner"
	"github.com/nholik/wifi-sentinel/internal/state"
	"github.com/nholik/wifi-sentinel/internal/station"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wifi-sentinel: %v\n", err)
		return runner.ExitConfigUnreadable
	}

	logger, closeLog := logging.New(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	logger.Info().Str("interface", cfg.Interface).Dur("poll_interval", cfg.PollInterval).
		Msg("wifi-sentinel starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	commander := nmcli.NewExecCommander(0)
	nm := nmcli.New(commander, cfg.Interface, logger)

	prereq := runner.NewPrereqChecker(nm, commander, cfg.Interface, logger)
	if err := prereq.Check(ctx); err != nil {
		logger.Error().Err(err).Msg("startup prerequisite failed")
		var startup *runner.StartupError
		if errors.As(err, &startup) {
			return startup.Code
		}
		return 1
	}

	if err := runner.WritePidFile(cfg.PidPath); err != nil {
		logger.Error().Err(err).Str("path", cfg.PidPath).Msg("pid file check failed")
		return 1
	}
	defer runner.RemovePidFile(cfg.PidPath)

	reload := make(chan struct{}, 1)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			select {
			case reload <- struct{}{}:
			default:
			}
		}
	}()

	prober := probe.New(logger, cfg.ProbeURL, cfg.ProbeTimeout, cfg.ProbeConnectTimeout,
		probe.WithManagerChecker(nm))
	networks := catalog.New(nm, logger)
	stationMgr := station.New(nm, networks, accesspoint.ProfileName, logger)
	ap := accesspoint.New(nm, logger)
	m := metrics.New(cfg.MetricsTextfile)
	store := state.NewFileStore(cfg.StatePath, logger)

	orch := orchestrator.New(prober, networks, stationMgr, ap, logger,
		orchestrator.WithMetrics(m))

	r := runner.New(logger, cfg.PollInterval, cfg.NetworksPath, orch, store,
		runner.WithNotifier(buildNotifier(logger, cfg)),
		runner.WithMetrics(m),
		runner.WithReloadChannel(reload),
	)

	if err := r.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("watchdog terminated")
		var startup *runner.StartupError
		if errors.As(err, &startup) {
			return startup.Code
		}
		return 1
	}

	logger.Info().Msg("wifi-sentinel stopped")
	return runner.ExitClean
}

func buildNotifier(logger zerolog.Logger, cfg config.Config) notify.Notifier {
	device, err := os.Hostname()
	if err != nil || device == "" {
		device = "wifi-sentinel"
	}

	var notifiers []notify.Notifier
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(logger, device, cfg.WebhookURL, "")
		if err != nil {
			logger.Warn().Err(err).Msg("webhook notifier disabled")
		} else if webhook != nil {
			notifiers = append(notifiers, webhook)
		}
	}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(logger, device, cfg.SlackWebhookURL))
	}
	if len(notifiers) == 0 {
		return notify.NewNoop(logger, "no notification endpoints configured")
	}
	return notify.NewMultiNotifier(notifiers...)
}
