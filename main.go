package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/camnode/cmd"
	"github.com/smazurov/camnode/internal/api"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/daemon"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/metrics/exporters"
	"github.com/smazurov/camnode/internal/switcher"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"camnode.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Capture settings
	CaptureFrameIntervalMs int `help:"Frame pacing for the simulated source in milliseconds" default:"33" toml:"capture.frame_interval_ms" env:"CAPTURE_FRAME_INTERVAL_MS"`

	// Switching settings
	SwitchDayToNightThreshold float64 `help:"Mean-luma threshold to switch day to night" default:"40" toml:"switching.day_to_night_threshold" env:"SWITCH_DAY_TO_NIGHT_THRESHOLD"`
	SwitchNightToDayThreshold float64 `help:"Mean-luma threshold to switch night to day" default:"70" toml:"switching.night_to_day_threshold" env:"SWITCH_NIGHT_TO_DAY_THRESHOLD"`
	SwitchDayToNightHoldSec   int     `help:"Seconds darkening must persist before switching" default:"10" toml:"switching.day_to_night_hold_sec" env:"SWITCH_DAY_TO_NIGHT_HOLD_SEC"`
	SwitchNightToDayHoldSec   int     `help:"Seconds brightening must persist before switching" default:"10" toml:"switching.night_to_day_hold_sec" env:"SWITCH_NIGHT_TO_DAY_HOLD_SEC"`
	SwitchWarmupFrames        int     `help:"Frames discarded after a switch while exposure settles" default:"3" toml:"switching.warmup_frames" env:"SWITCH_WARMUP_FRAMES"`
	SwitchProbeIntervalSec    int     `help:"Seconds between day-camera probes while night is active" default:"2" toml:"switching.probe_interval_sec" env:"SWITCH_PROBE_INTERVAL_SEC"`
	SwitchDayCheckInterval    int     `help:"Evaluate every Nth frame while day is active" default:"32" toml:"switching.day_check_interval" env:"SWITCH_DAY_CHECK_INTERVAL"`
	SwitchNightCheckInterval  int     `help:"Evaluate every Nth frame while night is active" default:"64" toml:"switching.night_check_interval" env:"SWITCH_NIGHT_CHECK_INTERVAL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture    string `help:"Capture pipeline logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingSwitcher   string `help:"Switch controller logging level" default:"info" toml:"logging.switcher" env:"LOGGING_SWITCHER"`
	LoggingBrightness string `help:"Brightness corrector logging level" default:"info" toml:"logging.brightness" env:"LOGGING_BRIGHTNESS"`
	LoggingShm        string `help:"Shared memory logging level" default:"info" toml:"logging.shm" env:"LOGGING_SHM"`
	LoggingDaemon     string `help:"Daemon lifecycle logging level" default:"info" toml:"logging.daemon" env:"LOGGING_DAEMON"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	// Create Huma CLI
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"capture":    opts.LoggingCapture,
				"switcher":   opts.LoggingSwitcher,
				"brightness": opts.LoggingBrightness,
				"shm":        opts.LoggingShm,
				"daemon":     opts.LoggingDaemon,
				"api":        opts.LoggingAPI,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Forward log entries onto the bus for the /api/logs/stream endpoint
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		d, err := daemon.New(daemon.Options{
			Switch: switcher.Config{
				DayToNightThreshold: opts.SwitchDayToNightThreshold,
				NightToDayThreshold: opts.SwitchNightToDayThreshold,
				DayToNightHold:      time.Duration(opts.SwitchDayToNightHoldSec) * time.Second,
				NightToDayHold:      time.Duration(opts.SwitchNightToDayHoldSec) * time.Second,
				WarmupFrames:        uint(opts.SwitchWarmupFrames),
			},
			Runtime: switcher.RuntimeConfig{
				ProbeInterval:      time.Duration(opts.SwitchProbeIntervalSec) * time.Second,
				DayCheckInterval:   uint(opts.SwitchDayCheckInterval),
				NightCheckInterval: uint(opts.SwitchNightCheckInterval),
			},
			ConfigPath:    opts.Config,
			FrameInterval: time.Duration(opts.CaptureFrameIntervalMs) * time.Millisecond,
			EventBus:      eventBus,
		})
		if err != nil {
			logger.Error("Failed to initialize daemon", "error", err)
			os.Exit(1)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Runtime:           d.Runtime(),
			Controller:        d.Controller(),
			Board:             d.Board(),
			Rings:             d.Rings(),
			Queue:             d.Queue(),
			EventBus:          eventBus,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		hooks.OnStart(func() {
			if startErr := d.Start(context.Background()); startErr != nil {
				logger.Error("Failed to start daemon", "error", startErr)
				os.Exit(1)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Workers and shared segments go down after the API stops
			// answering requests that read them.
			d.Stop()
		})
	})

	// Shared-memory inspection commands
	cli.Root().AddCommand(cmd.CreateStatusCmd())
	cli.Root().AddCommand(cmd.CreateWatchCmd())
	cli.Root().AddCommand(cmd.CreateSwitchCmd())

	// Run the CLI
	cli.Run()
}
