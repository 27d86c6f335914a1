// Package switcher decides which of the two cameras is the active frame
// source. The controller is a two-threshold hysteresis machine over mean
// scene brightness; the runtime wraps it with an active capture loop and a
// probe loop for the inactive camera.
//
// The day camera is the brightness reference for both directions: darkening
// is measured on the active day feed, brightening is measured on day-camera
// probe frames taken while the night camera is active. Night-camera samples
// are recorded for diagnostics but never drive a decision.
package switcher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/frame"
)

// Decision is the outcome of recording one brightness sample.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionToDay
	DecisionToNight
)

func (d Decision) String() string {
	switch d {
	case DecisionToDay:
		return "to-day"
	case DecisionToNight:
		return "to-night"
	default:
		return "none"
	}
}

// Mode selects between automatic and pinned camera selection.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Config holds the switch policy knobs. Thresholds are on the 0-255
// mean-luma scale; DayToNightThreshold must be below NightToDayThreshold so
// the band between them is a dead zone in both directions.
type Config struct {
	DayToNightThreshold float64
	NightToDayThreshold float64
	DayToNightHold      time.Duration
	NightToDayHold      time.Duration
	WarmupFrames        uint
}

// DefaultConfig matches the deployed tuning: switch to night below 40 held
// for 10s, back to day above 70 held for 10s, discarding 3 frames after each
// switch while auto-exposure settles.
func DefaultConfig() Config {
	return Config{
		DayToNightThreshold: 40,
		NightToDayThreshold: 70,
		DayToNightHold:      10 * time.Second,
		NightToDayHold:      10 * time.Second,
		WarmupFrames:        3,
	}
}

// Stat is the running brightness state for one camera.
type Stat struct {
	LatestValue float64
	Avg         float64
	Samples     int
	UpdatedAt   time.Time
}

func (s *Stat) record(value float64, now time.Time) {
	s.LatestValue = value
	s.Samples++
	if s.Samples == 1 {
		s.Avg = value
	} else {
		s.Avg = (s.Avg*float64(s.Samples-1) + value) / float64(s.Samples)
	}
	s.UpdatedAt = now
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Mode             Mode
	ActiveCamera     frame.Camera
	Brightness       [2]Stat
	LastSwitchReason string
	WarmupRemaining  uint
}

// PublishFunc forwards a frame to the downstream channel.
type PublishFunc func(*frame.Frame) error

// Controller holds the hysteresis state. All mutable operations take the
// mutex; the active loop, the probe loop, and the HTTP API share one
// instance.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mode         Mode
	activeCamera frame.Camera
	manualTarget frame.Camera
	brightness   [2]Stat
	belowSince   time.Time
	aboveSince   time.Time
	lastReason   string

	warmupRemaining uint
	buffers         [2]*frame.Frame
	activeSlot      int
}

// NewController returns a controller in auto mode with the day camera active.
func NewController(cfg Config, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		mode:         ModeAuto,
		activeCamera: frame.CameraDay,
		lastReason:   "init",
		buffers:      [2]*frame.Frame{new(frame.Frame), new(frame.Frame)},
	}
}

// SetConfig swaps the switch tuning. Hold timers restart so a threshold
// change never fires off stale accumulation.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.logger.Info("switch tuning updated",
		"day_to_night", cfg.DayToNightThreshold,
		"night_to_day", cfg.NightToDayThreshold,
		"day_to_night_hold", cfg.DayToNightHold,
		"night_to_day_hold", cfg.NightToDayHold)
}

// ForceManual pins the target camera and suspends automatic decisions.
func (c *Controller) ForceManual(cam frame.Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeManual
	c.manualTarget = cam
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.lastReason = "manual-" + cam.String()
	c.logger.Info("manual override", "target", cam.String())
}

// ResumeAuto returns to automatic switching.
func (c *Controller) ResumeAuto() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeAuto
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.lastReason = "resume-auto"
	c.logger.Info("resumed automatic switching")
}

// RecordBrightness feeds one sample into the hysteresis machine and returns
// the switch decision. Manual mode always returns DecisionNone. Only day
// camera samples are evaluated: while day is active its own feed detects
// darkening; while night is active, day probe frames detect brightening.
func (c *Controller) RecordBrightness(cam frame.Camera, value float64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.brightness[cam].record(value, now)

	if c.mode == ModeManual {
		return DecisionNone
	}
	if cam != frame.CameraDay {
		return DecisionNone
	}

	if c.activeCamera == frame.CameraDay {
		if value < c.cfg.DayToNightThreshold {
			if c.belowSince.IsZero() {
				c.belowSince = now
				c.logger.Debug("darkening detected, starting hold timer",
					"brightness", value, "threshold", c.cfg.DayToNightThreshold)
			}
			if now.Sub(c.belowSince) >= c.cfg.DayToNightHold {
				c.belowSince = time.Time{}
				return DecisionToNight
			}
		} else {
			c.belowSince = time.Time{}
		}
		return DecisionNone
	}

	if value > c.cfg.NightToDayThreshold {
		if c.aboveSince.IsZero() {
			c.aboveSince = now
			c.logger.Debug("brightening detected, starting hold timer",
				"brightness", value, "threshold", c.cfg.NightToDayThreshold)
		}
		if now.Sub(c.aboveSince) >= c.cfg.NightToDayHold {
			c.aboveSince = time.Time{}
			return DecisionToDay
		}
	} else {
		c.aboveSince = time.Time{}
	}
	return DecisionNone
}

// HandleFrame computes mean luma from the frame payload, records it, and
// publishes the frame downstream when it came from the active camera. A luma
// decode failure skips the sample but still publishes.
func (c *Controller) HandleFrame(f *frame.Frame, cam frame.Camera, isActive bool, publish PublishFunc) Decision {
	decision := DecisionNone
	luma, err := frame.MeanLuma(f)
	if err != nil {
		c.logger.Warn("brightness extraction failed", "camera", cam.String(), "error", err)
	} else {
		decision = c.RecordBrightness(cam, luma)
	}

	if isActive && publish != nil {
		if err := c.PublishFrame(f, publish); err != nil {
			c.logger.Warn("frame publish failed", "error", err)
		}
	}
	return decision
}

// NotifyActiveCamera records that the hardware now produces from cam. Resets
// both hold timers and arms the warmup discard counter.
func (c *Controller) NotifyActiveCamera(cam frame.Camera, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeCamera = cam
	c.belowSince = time.Time{}
	c.aboveSince = time.Time{}
	c.warmupRemaining = c.cfg.WarmupFrames
	c.lastReason = reason
	c.logger.Info("active camera changed", "camera", cam.String(), "reason", reason)
}

// PublishFrame writes a frame through to the downstream channel. The first
// WarmupFrames publishes after a switch are discarded so auto-exposure can
// settle. The frame is copied into an owned buffer before the callback runs,
// so a concurrent switch never exposes a half-written frame.
func (c *Controller) PublishFrame(f *frame.Frame, publish PublishFunc) error {
	c.mu.Lock()
	if c.warmupRemaining > 0 {
		c.warmupRemaining--
		remaining := c.warmupRemaining
		c.mu.Unlock()
		c.logger.Debug("warmup frame discarded", "remaining", remaining)
		return nil
	}
	slot := 1 - c.activeSlot
	*c.buffers[slot] = *f
	c.activeSlot = slot
	out := c.buffers[slot]
	c.mu.Unlock()

	return publish(out)
}

// ActiveCamera returns the camera the controller believes is producing.
func (c *Controller) ActiveCamera() frame.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCamera
}

// ManualTarget returns the pinned camera; valid only in manual mode.
func (c *Controller) ManualTarget() (frame.Camera, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manualTarget, c.mode == ModeManual
}

// Status snapshots the controller for diagnostics.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Mode:             c.mode,
		ActiveCamera:     c.activeCamera,
		Brightness:       c.brightness,
		LastSwitchReason: c.lastReason,
		WarmupRemaining:  c.warmupRemaining,
	}
}
