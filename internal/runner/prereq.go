package runner

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/nmcli"
)

const managerStartGrace = 3 * time.Second

type prereqManager interface {
	Available(ctx context.Context) bool
	Devices(ctx context.Context) ([]nmcli.Device, error)
	RadioEnabled(ctx context.Context) (bool, error)
	EnableRadio(ctx context.Context) error
}

// PrereqChecker validates startup prerequisites, attempting one remediation
// per check before giving up with a distinct exit code.
type PrereqChecker struct {
	nm     prereqManager
	run    nmcli.Commander
	iface  string
	euid   func() int
	sleep  func(time.Duration)
	logger zerolog.Logger
}

// PrereqOption customizes checker behavior.
type PrereqOption func(*PrereqChecker)

// WithEUID overrides the effective-uid source (primarily for testing).
func WithEUID(euid func() int) PrereqOption {
	return func(c *PrereqChecker) {
		c.euid = euid
	}
}

// WithSleep overrides the remediation grace sleep (primarily for testing).
func WithSleep(sleep func(time.Duration)) PrereqOption {
	return func(c *PrereqChecker) {
		c.sleep = sleep
	}
}

// NewPrereqChecker constructs a checker. run is used to start the network
// manager service when it is not answering.
func NewPrereqChecker(nm prereqManager, run nmcli.Commander, iface string, logger zerolog.Logger, opts ...PrereqOption) *PrereqChecker {
	c := &PrereqChecker{
		nm:     nm,
		run:    run,
		iface:  iface,
		euid:   os.Geteuid,
		sleep:  time.Sleep,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check validates all prerequisites in order. The returned error, if any, is
// a *StartupError carrying the process exit code.
func (c *PrereqChecker) Check(ctx context.Context) error {
	if err := c.checkPrivilege(); err != nil {
		return err
	}
	if err := c.checkManager(ctx); err != nil {
		return err
	}
	return c.checkHardware(ctx)
}

func (c *PrereqChecker) checkPrivilege() error {
	if c.euid() == 0 {
		return nil
	}
	return &StartupError{Code: ExitPrivilege, Op: "must run as root to manage network connections"}
}

func (c *PrereqChecker) checkManager(ctx context.Context) error {
	if c.nm.Available(ctx) {
		return nil
	}

	c.logger.Warn().Msg("network manager not answering, attempting to start it")
	if _, _, err := c.run.Run(ctx, "systemctl", "start", "NetworkManager"); err != nil {
		c.logger.Warn().Err(err).Msg("starting network manager failed")
	}
	c.sleep(managerStartGrace)

	if c.nm.Available(ctx) {
		return nil
	}
	return &StartupError{Code: ExitManagerUnavailable, Op: "network manager unreachable after start attempt"}
}

func (c *PrereqChecker) checkHardware(ctx context.Context) error {
	devices, err := c.nm.Devices(ctx)
	if err != nil {
		return &StartupError{Code: ExitHardwareMissing, Op: "listing devices", Err: err}
	}

	found := false
	for _, device := range devices {
		if device.Type != "wifi" {
			continue
		}
		if c.iface != "" && device.Name != c.iface {
			continue
		}
		found = true
		break
	}
	if !found {
		return &StartupError{Code: ExitHardwareMissing, Op: "no wireless interface of the expected type present"}
	}

	enabled, err := c.nm.RadioEnabled(ctx)
	if err != nil {
		return &StartupError{Code: ExitHardwareMissing, Op: "querying radio state", Err: err}
	}
	if enabled {
		return nil
	}

	c.logger.Warn().Msg("wifi radio disabled, enabling it")
	if err := c.nm.EnableRadio(ctx); err != nil {
		return &StartupError{Code: ExitHardwareMissing, Op: "enabling radio", Err: err}
	}
	enabled, err = c.nm.RadioEnabled(ctx)
	if err != nil || !enabled {
		return &StartupError{Code: ExitHardwareMissing, Op: "radio still disabled after enable attempt", Err: err}
	}
	return nil
}
