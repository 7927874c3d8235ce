package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// rescanInterval throttles forced radio rescans; listing still runs on every
// Scan call and serves possibly-stale results in between.
const rescanInterval = 10 * time.Second

type wifiLister interface {
	RescanWifi(ctx context.Context) error
	VisibleSSIDs(ctx context.Context) ([]string, error)
	SavedWifiProfiles(ctx context.Context) (map[string]string, error)
}

// Catalog answers which networks are currently visible and which saved
// connection profiles already exist.
type Catalog struct {
	nm      wifiLister
	rescans *rate.Limiter
	logger  zerolog.Logger
}

// New constructs a Catalog over the given NetworkManager client.
func New(nm wifiLister, logger zerolog.Logger) *Catalog {
	return &Catalog{
		nm:      nm,
		rescans: rate.NewLimiter(rate.Every(rescanInterval), 1),
		logger:  logger,
	}
}

// Scan returns the set of SSIDs visible on the managed interface. A fresh
// radio scan is forced best-effort; scan failures are non-fatal and simply
// yield whatever the manager last saw.
func (c *Catalog) Scan(ctx context.Context) map[string]struct{} {
	if c.rescans.Allow() {
		if err := c.nm.RescanWifi(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("wifi rescan failed, listing cached results")
		}
	}

	ssids, err := c.nm.VisibleSSIDs(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("listing visible networks failed")
		return map[string]struct{}{}
	}

	visible := make(map[string]struct{}, len(ssids))
	for _, ssid := range ssids {
		visible[ssid] = struct{}{}
	}
	return visible
}

// ResolveProfile returns the name of a saved connection profile for the given
// SSID, if one exists, so credentials are not recreated on every attempt.
func (c *Catalog) ResolveProfile(ctx context.Context, ssid string) (string, bool) {
	profiles, err := c.nm.SavedWifiProfiles(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("listing saved profiles failed")
		return "", false
	}
	for name, profileSSID := range profiles {
		if profileSSID == ssid {
			return name, true
		}
	}
	return "", false
}
