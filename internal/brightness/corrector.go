package brightness

import (
	"log/slog"
	"time"

	"github.com/smazurov/camnode/internal/frame"
)

// Profile is a set of denoise parameters for one brightness zone. Temporal
// strength is on the sensor pipeline's 0-128 scale, spatial blend on 0-1
// (the normal profile restores the tuning-file value, which is out of that
// range on purpose).
type Profile struct {
	Denoise3D int
	Denoise2D float32
}

// ProfileForZone returns the correction profile for a zone. Darker zones get
// stronger noise reduction; normal and bright restore the defaults.
func ProfileForZone(zone frame.Zone) Profile {
	switch zone {
	case frame.ZoneDark:
		return Profile{Denoise3D: 120, Denoise2D: 0.7}
	case frame.ZoneDim:
		return Profile{Denoise3D: 115, Denoise2D: 0.5}
	default:
		return Profile{Denoise3D: 113, Denoise2D: 5.0}
	}
}

// Hysteresis configures the corrector's on/off transitions.
type Hysteresis struct {
	OnThreshold  float32
	OffThreshold float32
	HoldOn       time.Duration
	HoldOff      time.Duration
}

// DefaultHysteresis enables correction after one second below 50 and disables
// it after two seconds above 70. The dead band between the thresholds absorbs
// flicker around either edge.
func DefaultHysteresis() Hysteresis {
	return Hysteresis{
		OnThreshold:  50,
		OffThreshold: 70,
		HoldOn:       time.Second,
		HoldOff:      2 * time.Second,
	}
}

// ProfileApplier pushes a correction profile into the sensor pipeline.
type ProfileApplier interface {
	ApplyProfile(zone frame.Zone, p Profile) error
}

// Corrector decides when low-light correction turns on and off. Not safe for
// concurrent use; the capture loop owns it.
type Corrector struct {
	applier ProfileApplier
	hyst    Hysteresis
	logger  *slog.Logger
	now     func() time.Time

	active     bool
	zone       frame.Zone
	belowSince time.Time
	aboveSince time.Time
}

// NewCorrector returns a corrector in the off state.
func NewCorrector(applier ProfileApplier, hyst Hysteresis, logger *slog.Logger) *Corrector {
	return &Corrector{
		applier: applier,
		hyst:    hyst,
		logger:  logger,
		now:     time.Now,
		zone:    frame.ZoneNormal,
	}
}

// Active reports whether correction is currently applied.
func (c *Corrector) Active() bool { return c.active }

// Update feeds one brightness sample through the state machine and returns
// whether correction is active afterwards. A zero time in belowSince or
// aboveSince means the corresponding hold timer is not running.
func (c *Corrector) Update(s Sample) bool {
	now := c.now()

	if !c.active {
		if s.Avg < c.hyst.OnThreshold {
			if c.belowSince.IsZero() {
				c.belowSince = now
			}
			if held := now.Sub(c.belowSince); held >= c.hyst.HoldOn {
				c.logger.Info("enabling low-light correction",
					"brightness", s.Avg, "zone", s.Zone.String(), "held", held)
				if err := c.applier.ApplyProfile(s.Zone, ProfileForZone(s.Zone)); err != nil {
					c.logger.Error("failed to apply low-light profile", "error", err)
				} else {
					c.active = true
					c.zone = s.Zone
				}
				c.belowSince = time.Time{}
			}
		} else {
			c.belowSince = time.Time{}
		}
		c.aboveSince = time.Time{}
		return c.active
	}

	if s.Avg > c.hyst.OffThreshold {
		if c.aboveSince.IsZero() {
			c.aboveSince = now
		}
		if held := now.Sub(c.aboveSince); held >= c.hyst.HoldOff {
			c.logger.Info("disabling low-light correction",
				"brightness", s.Avg, "held", held)
			if err := c.applier.ApplyProfile(frame.ZoneNormal, ProfileForZone(frame.ZoneNormal)); err != nil {
				c.logger.Error("failed to restore normal profile", "error", err)
			} else {
				c.active = false
				c.zone = frame.ZoneNormal
			}
			c.aboveSince = time.Time{}
		}
	} else {
		c.aboveSince = time.Time{}
		// Track zone changes while active so dark/dim transitions refresh
		// the profile. Normal and bright are handled by the off path.
		if s.Zone != c.zone && s.Zone != frame.ZoneNormal && s.Zone != frame.ZoneBright {
			if err := c.applier.ApplyProfile(s.Zone, ProfileForZone(s.Zone)); err != nil {
				c.logger.Error("failed to refresh low-light profile", "error", err)
			} else {
				c.zone = s.Zone
			}
		}
	}
	c.belowSince = time.Time{}
	return c.active
}
