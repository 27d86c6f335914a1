package switcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/metrics"
)

// CaptureOps is the capability set the runtime needs from the capture side.
// Implementations talk to the sensor pipeline; the runtime never touches
// hardware directly.
type CaptureOps interface {
	// SwitchCamera reconfigures the hardware to produce from target.
	SwitchCamera(target frame.Camera) error
	// CaptureActiveFrame blocks for the next frame from the active camera.
	CaptureActiveFrame(cam frame.Camera, f *frame.Frame) error
	// CaptureProbeFrame takes a single on-demand frame from cam.
	CaptureProbeFrame(cam frame.Camera, f *frame.Frame) error
	// PublishFrame forwards a frame to the downstream channel.
	PublishFrame(f *frame.Frame) error
}

// RuntimeConfig tunes the two loops. Check intervals are in frames: the day
// camera is sampled more often because darkening (lights off) is abrupt,
// while brightening at dawn is gradual.
type RuntimeConfig struct {
	ProbeInterval      time.Duration
	DayCheckInterval   uint
	NightCheckInterval uint
}

// DefaultRuntimeConfig probes every 2 seconds and checks brightness every 32
// active frames on the day camera, every 64 on the night camera.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ProbeInterval:      2 * time.Second,
		DayCheckInterval:   32,
		NightCheckInterval: 64,
	}
}

// Runtime drives the controller with two workers: the active loop captures
// and publishes frames from the current camera, the probe loop samples the
// day camera while night is active to detect brightening.
type Runtime struct {
	controller *Controller
	ops        CaptureOps
	cfg        RuntimeConfig
	bus        *events.Bus
	logger     *slog.Logger

	switchMu sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRuntime wires a runtime around an existing controller. The bus may be
// nil when no one listens for switch events.
func NewRuntime(controller *Controller, ops CaptureOps, cfg RuntimeConfig, bus *events.Bus, logger *slog.Logger) *Runtime {
	return &Runtime{
		controller: controller,
		ops:        ops,
		cfg:        cfg,
		bus:        bus,
		logger:     logger,
	}
}

// Start launches both loops. Initial sets the camera assumed to be producing;
// the hysteresis timers and warmup counter start armed for it.
func (r *Runtime) Start(ctx context.Context, initial frame.Camera) {
	r.controller.NotifyActiveCamera(initial, "init")

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(2)
	go r.activeLoop(ctx)
	go r.probeLoop(ctx)
}

// Stop cancels both loops and waits for them to drain. Safe to call once
// after Start; shared segments must stay mapped until Stop returns.
func (r *Runtime) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

// ForceManual pins cam: the controller enters manual mode and the hardware
// switches immediately if cam is not already active.
func (r *Runtime) ForceManual(cam frame.Camera) error {
	r.controller.ForceManual(cam)
	return r.doSwitch(cam, "manual-"+cam.String())
}

// ResumeAuto re-enables automatic decisions from the next sample on.
func (r *Runtime) ResumeAuto() {
	r.controller.ResumeAuto()
}

// doSwitch serializes hardware switches. A no-op when target already active.
func (r *Runtime) doSwitch(target frame.Camera, reason string) error {
	r.switchMu.Lock()
	defer r.switchMu.Unlock()

	previous := r.controller.ActiveCamera()
	if previous == target {
		return nil
	}
	if err := r.ops.SwitchCamera(target); err != nil {
		r.logger.Error("hardware switch failed",
			"target", target.String(), "reason", reason, "error", err)
		return err
	}
	r.controller.NotifyActiveCamera(target, reason)
	metrics.IncSwitchTransition(target.String(), reason)
	if r.bus != nil {
		r.bus.Publish(events.SwitchEvent{
			From:      previous.String(),
			To:        target.String(),
			Reason:    reason,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return nil
}

func (r *Runtime) react(decision Decision) {
	switch decision {
	case DecisionToDay:
		_ = r.doSwitch(frame.CameraDay, "auto-day")
	case DecisionToNight:
		_ = r.doSwitch(frame.CameraNight, "auto-night")
	}
}

func (r *Runtime) checkInterval(cam frame.Camera) uint {
	if cam == frame.CameraDay {
		return r.cfg.DayCheckInterval
	}
	return r.cfg.NightCheckInterval
}

func (r *Runtime) activeLoop(ctx context.Context) {
	defer r.wg.Done()

	var f frame.Frame
	var sinceCheck uint

	for ctx.Err() == nil {
		active := r.controller.ActiveCamera()
		f = frame.Frame{CameraID: active}
		if err := r.ops.CaptureActiveFrame(active, &f); err != nil {
			r.logger.Warn("active capture failed", "camera", active.String(), "error", err)
			continue
		}

		sinceCheck++
		if sinceCheck >= r.checkInterval(active) {
			sinceCheck = 0
			r.react(r.controller.HandleFrame(&f, active, true, r.ops.PublishFrame))
			continue
		}
		if err := r.controller.PublishFrame(&f, r.ops.PublishFrame); err != nil {
			r.logger.Warn("frame publish failed", "error", err)
		}
	}
}

func (r *Runtime) probeLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ProbeInterval)
	defer ticker.Stop()

	var probe frame.Frame
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The active loop already samples the day feed. Probe only when the
		// night camera is producing, to evaluate the switch-back condition.
		if r.controller.ActiveCamera() == frame.CameraDay {
			continue
		}

		probe = frame.Frame{CameraID: frame.CameraDay}
		if err := r.ops.CaptureProbeFrame(frame.CameraDay, &probe); err != nil {
			r.logger.Warn("probe capture failed", "error", err)
			continue
		}
		r.react(r.controller.HandleFrame(&probe, frame.CameraDay, false, nil))
	}
}
