// Package daemon wires the capture pipeline, the switch runtime, and the
// shared-memory channels into one process lifecycle. The daemon is the sole
// writer of every channel it creates; consumer processes attach with the
// Open* constructors and never create.
//
// Shutdown order matters: the runtime and encoder workers stop first, then
// the zero-copy producer releases its pending buffer, and only then are the
// segments unmapped and (for the owner) unlinked.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/camnode/internal/brightness"
	"github.com/smazurov/camnode/internal/capture"
	"github.com/smazurov/camnode/internal/channel"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/framequeue"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/metrics"
	"github.com/smazurov/camnode/internal/shm"
	"github.com/smazurov/camnode/internal/switcher"
	"github.com/smazurov/camnode/internal/zerocopy"
)

// Options configures the daemon.
type Options struct {
	// Source, Hardware, Encoder and Exporter default to the simulated
	// pipeline when nil.
	Source   capture.Source
	Hardware capture.HardwareSwitcher
	Encoder  capture.Encoder
	Exporter capture.HandleExporter

	Switch  switcher.Config
	Runtime switcher.RuntimeConfig

	// ConfigPath enables live reload of the [switching] table when set.
	ConfigPath string

	// FrameInterval paces the simulated source.
	FrameInterval time.Duration

	EventBus *events.Bus
	Logger   *slog.Logger
}

// Daemon owns the shared-memory channels and the workers feeding them.
type Daemon struct {
	opts   Options
	logger *slog.Logger

	rings    map[string]*shm.Ring
	board    *channel.BrightnessBoard
	detBoard *channel.DetectionBoard
	control  *channel.ControlWord
	zcDay    *zerocopy.Channel
	zcNight  *zerocopy.Channel

	queue      *framequeue.Queue
	pipeline   *capture.Pipeline
	controller *switcher.Controller
	runtime    *switcher.Runtime
	watcher    *config.Watcher[config.SwitchSettings]

	cancel       context.CancelFunc
	watchdogDone chan struct{}
}

// New creates the daemon and all of its shared-memory channels. A failure
// mid-creation tears down whatever was already created.
func New(opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("daemon")
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 33 * time.Millisecond
	}
	if opts.Source == nil {
		sim := capture.NewSimulated(1920, 1080, opts.FrameInterval)
		opts.Source = sim
		if opts.Hardware == nil {
			opts.Hardware = sim
		}
	}
	if opts.Hardware == nil {
		return nil, fmt.Errorf("daemon: hardware switcher required with a custom source")
	}
	if opts.Encoder == nil {
		opts.Encoder = capture.PassthroughEncoder{}
	}

	d := &Daemon{
		opts:   opts,
		logger: opts.Logger,
		rings:  make(map[string]*shm.Ring),
	}

	if err := d.createChannels(); err != nil {
		d.closeChannels()
		return nil, err
	}

	d.queue = framequeue.New(framequeue.DefaultCapacity)

	var corrector *brightness.Corrector
	if applier, ok := opts.Source.(brightness.ProfileApplier); ok {
		corrector = brightness.NewCorrector(applier, brightness.DefaultHysteresis(), logging.GetLogger("brightness"))
	}

	d.pipeline = capture.NewPipeline(capture.PipelineOptions{
		Source:     opts.Source,
		Hardware:   opts.Hardware,
		Encoder:    opts.Encoder,
		Corrector:  corrector,
		ActiveRing: d.rings[channel.ActiveFrame],
		StreamRing: d.rings[channel.Stream],
		ProbeRing:  d.rings[channel.ProbeFrame],
		YoloRing:   d.rings[channel.YoloInput],
		MJPEGRing:  d.rings[channel.MJPEGFrame],
		Board:      d.board,
		Control:    d.control,
		ZeroCopyDay:   d.zcDay,
		ZeroCopyNight: d.zcNight,
		Exporter:   opts.Exporter,
		Queue:      d.queue,
		EventBus:   opts.EventBus,
		Logger:     logging.GetLogger("capture"),
	})

	d.controller = switcher.NewController(opts.Switch, logging.GetLogger("switcher"))
	d.runtime = switcher.NewRuntime(d.controller, d.pipeline, opts.Runtime, opts.EventBus, logging.GetLogger("switcher"))
	return d, nil
}

func (d *Daemon) createChannels() error {
	for _, name := range channel.Rings() {
		ring, err := shm.CreateRing(name)
		if err != nil {
			return fmt.Errorf("daemon: create ring %s: %w", name, err)
		}
		d.rings[name] = ring
	}

	board, err := channel.CreateBrightnessBoard()
	if err != nil {
		return fmt.Errorf("daemon: create brightness board: %w", err)
	}
	d.board = board

	// The inference process writes detections; the daemon creates the
	// channel so readers can attach before inference is up.
	detBoard, err := channel.CreateDetectionBoard()
	if err != nil {
		return fmt.Errorf("daemon: create detection board: %w", err)
	}
	d.detBoard = detBoard

	control, err := channel.CreateControlWord()
	if err != nil {
		return fmt.Errorf("daemon: create control word: %w", err)
	}
	d.control = control

	if d.zcDay, err = zerocopy.Create(channel.ZeroCopyDay); err != nil {
		return fmt.Errorf("daemon: create zero-copy channel: %w", err)
	}
	if d.zcNight, err = zerocopy.Create(channel.ZeroCopyNight); err != nil {
		return fmt.Errorf("daemon: create zero-copy channel: %w", err)
	}
	return nil
}

// Start launches the switch runtime, the encoder worker, the config watcher,
// and the systemd watchdog loop.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.control.SetActive(frame.CameraDay)
	metrics.SetActiveCamera(int(frame.CameraDay))

	d.pipeline.StartEncoder(ctx)
	d.runtime.Start(ctx, frame.CameraDay)

	if d.opts.ConfigPath != "" {
		d.watcher = config.NewConfigWatcher(d.opts.ConfigPath, config.LoadSwitchSettings, logging.GetLogger("config"))
		d.watcher.OnReload(func(s config.SwitchSettings) {
			d.controller.SetConfig(switcher.Config{
				DayToNightThreshold: s.DayToNightThreshold,
				NightToDayThreshold: s.NightToDayThreshold,
				DayToNightHold:      s.DayToNightHold(),
				NightToDayHold:      s.NightToDayHold(),
				WarmupFrames:        uint(s.WarmupFrames),
			})
		})
		if err := d.watcher.Start(); err != nil {
			d.logger.Warn("config watcher failed to start, live reload disabled", "error", err)
			d.watcher = nil
		}
	}

	d.watchdogDone = make(chan struct{})
	go d.watchdogLoop(ctx)

	if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		d.logger.Debug("sd_notify unavailable", "error", err)
	}
	d.logger.Info("daemon started", "channels", len(d.rings)+5)
	return nil
}

// watchdogLoop pets the systemd watchdog at half the configured interval.
func (d *Daemon) watchdogLoop(ctx context.Context) {
	defer close(d.watchdogDone)

	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sd.SdNotify(false, sd.SdNotifyWatchdog); err != nil {
				d.logger.Warn("watchdog notify failed", "error", err)
			}
		}
	}
}

// Stop halts the workers and tears down the channels.
func (d *Daemon) Stop() {
	if _, err := sd.SdNotify(false, sd.SdNotifyStopping); err != nil {
		d.logger.Debug("sd_notify unavailable", "error", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("config watcher stop failed", "error", err)
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	if d.watchdogDone != nil {
		<-d.watchdogDone
	}

	// Workers first. The encoder and the zero-copy producer still touch
	// mapped memory until these return.
	d.runtime.Stop()
	d.pipeline.StopEncoder()

	d.closeChannels()
	d.logger.Info("daemon stopped")
}

func (d *Daemon) closeChannels() {
	destroy := func(name string, owner bool, close, destroy func() error) {
		fn, verb := close, "close"
		if owner {
			fn, verb = destroy, "destroy"
		}
		if err := fn(); err != nil {
			d.logger.Warn("channel teardown failed", "channel", name, "op", verb, "error", err)
		}
	}

	for name, ring := range d.rings {
		destroy(name, ring.Owner(), ring.Close, ring.Destroy)
	}
	if d.board != nil {
		destroy(channel.Brightness, d.board.Owner(), d.board.Close, d.board.Destroy)
	}
	if d.detBoard != nil {
		destroy(channel.Detections, d.detBoard.Owner(), d.detBoard.Close, d.detBoard.Destroy)
	}
	if d.control != nil {
		destroy(channel.Control, d.control.Owner(), d.control.Close, d.control.Destroy)
	}
	if d.zcDay != nil {
		destroy(channel.ZeroCopyDay, d.zcDay.Owner(), d.zcDay.Close, d.zcDay.Destroy)
	}
	if d.zcNight != nil {
		destroy(channel.ZeroCopyNight, d.zcNight.Owner(), d.zcNight.Close, d.zcNight.Destroy)
	}
}

// Controller exposes the switch controller for the HTTP API.
func (d *Daemon) Controller() *switcher.Controller { return d.controller }

// Runtime exposes the switch runtime for the HTTP API.
func (d *Daemon) Runtime() *switcher.Runtime { return d.runtime }

// Board exposes the brightness summary board for the HTTP API.
func (d *Daemon) Board() *channel.BrightnessBoard { return d.board }

// Rings exposes the frame ring channels by name for the HTTP API.
func (d *Daemon) Rings() map[string]*shm.Ring { return d.rings }

// Queue exposes the capture-to-encoder queue for the HTTP API.
func (d *Daemon) Queue() *framequeue.Queue { return d.queue }
