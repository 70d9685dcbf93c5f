package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/stkcam/cmd"
	"github.com/smazurov/stkcam/internal/api"
	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/capture"
	"github.com/smazurov/stkcam/internal/config"
	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/led"
	"github.com/smazurov/stkcam/internal/logging"
	"github.com/smazurov/stkcam/internal/metrics/collectors"
	"github.com/smazurov/stkcam/internal/metrics/exporters"
	"github.com/smazurov/stkcam/internal/source"
	"github.com/smazurov/stkcam/internal/systemd"
	"github.com/smazurov/stkcam/internal/version"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port               string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	FramePullTimeoutMs int    `help:"How long the frame hub waits per pull" default:"1000" toml:"server.frame_pull_timeout_ms" env:"SERVER_FRAME_PULL_TIMEOUT_MS"`

	// Camera settings
	CameraSensor     string `help:"Sensor family (vga, sxga, pal)" default:"vga" toml:"camera.sensor" env:"CAMERA_SENSOR"`
	CameraStreamFile string `help:"Stream parameters file, watched for changes" default:"stream.toml" toml:"camera.stream_file" env:"CAMERA_STREAM_FILE"`
	CameraPoolSize   int    `help:"Raw frame buffers" default:"3" toml:"camera.pool_size" env:"CAMERA_POOL_SIZE"`
	CameraSlots      int    `help:"Output image slots" default:"2" toml:"camera.slots" env:"CAMERA_SLOTS"`
	CameraAutoStart  bool   `help:"Start capturing on launch" default:"false" toml:"camera.auto_start" env:"CAMERA_AUTO_START"`

	// Transfer source settings
	SourceKind                 string `help:"Transfer source (synthetic, replay)" default:"synthetic" toml:"source.kind" env:"SOURCE_KIND"`
	SourceFPS                  int    `help:"Synthetic frame rate" default:"15" toml:"source.fps" env:"SOURCE_FPS"`
	SourcePacketErrorPercent   int    `help:"Synthetic packet error rate in percent" default:"0" toml:"source.packet_error_percent" env:"SOURCE_PACKET_ERROR_PERCENT"`
	SourceTransferErrorPercent int    `help:"Synthetic transfer error rate in percent" default:"0" toml:"source.transfer_error_percent" env:"SOURCE_TRANSFER_ERROR_PERCENT"`
	SourceReplayPath           string `help:"Trace to replay" default:"" toml:"source.replay_path" env:"SOURCE_REPLAY_PATH"`
	SourceReplayPace           bool   `help:"Replay at the recorded pace" default:"true" toml:"source.replay_pace" env:"SOURCE_REPLAY_PACE"`
	SourceReplayLoop           bool   `help:"Restart the trace when it ends" default:"true" toml:"source.replay_loop" env:"SOURCE_REPLAY_LOOP"`
	SourceRecordPath           string `help:"Also record every session to this trace" default:"" toml:"source.record_path" env:"SOURCE_RECORD_PATH"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Enable Prometheus" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsRatesEnabled      bool `help:"Publish stream rates over SSE" default:"true" toml:"metrics.rates_enabled" env:"METRICS_RATES_ENABLED"`
	MetricsStatsIntervalMs   int  `help:"Counter snapshot interval" default:"1000" toml:"metrics.stats_interval_ms" env:"METRICS_STATS_INTERVAL_MS"`

	// LED settings
	LEDName string `help:"sysfs LED that mirrors the capture state, empty disables" default:"" toml:"led.name" env:"LED_NAME"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture    string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingReassembly string `help:"Reassembly logging level" default:"info" toml:"logging.reassembly" env:"LOGGING_REASSEMBLY"`
	LoggingSource     string `help:"Transfer source logging level" default:"info" toml:"logging.source" env:"LOGGING_SOURCE"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

// newSource builds the transfer source the options select.
func newSource(opts *Options, logger *slog.Logger) (capture.Source, error) {
	var src source.Runner
	switch opts.SourceKind {
	case "synthetic":
		src = source.NewSynthetic(source.SyntheticOptions{
			FPS:               opts.SourceFPS,
			PacketErrorRate:   float64(opts.SourcePacketErrorPercent) / 100,
			TransferErrorRate: float64(opts.SourceTransferErrorPercent) / 100,
			Seed:              uint64(time.Now().UnixNano()),
		})
	case "replay":
		if opts.SourceReplayPath == "" {
			return nil, errors.New("source.replay_path is required for the replay source")
		}
		src = source.NewReplay(opts.SourceReplayPath, opts.SourceReplayPace, opts.SourceReplayLoop)
	default:
		return nil, fmt.Errorf("unknown source %q: expected synthetic or replay", opts.SourceKind)
	}

	if opts.SourceRecordPath != "" {
		return &source.Recording{
			Inner:  src,
			Path:   opts.SourceRecordPath,
			Name:   opts.SourceKind + " " + version.Agent(),
			Logger: logger,
		}, nil
	}
	return src, nil
}

// applyReloadedParams reconfigures the stream after the parameters file
// changed and reports the outcome on the bus.
func applyReloadedParams(orch *capture.Orchestrator, bus *events.Bus, path string, p capture.Params, logger *slog.Logger) error {
	if p == orch.Params() {
		logger.Debug("Stream file unchanged", "path", path)
		return nil
	}
	ev := events.ParamsReloadedEvent{Path: path, Timestamp: time.Now().Format(time.RFC3339)}
	err := orch.Reconfigure(context.Background(), p)
	if err != nil {
		logger.Warn("Failed to apply stream file", "path", path, "error", err)
		ev.Error = err.Error()
	} else {
		logger.Info("Stream file applied", "path", path, "resolution", p.Resolution.String(), "format", p.Format.String())
		ev.Applied = true
	}
	bus.Publish(ev)
	return err
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"capture":    opts.LoggingCapture,
				"reassembly": opts.LoggingReassembly,
				"source":     opts.LoggingSource,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		sensor, err := bayer.ParseSensor(opts.CameraSensor)
		if err != nil {
			logger.Error("Invalid camera sensor", "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Forward log records to SSE clients
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(logEntryEvent(entry))
		})

		src, err := newSource(opts, logging.GetLogger("source"))
		if err != nil {
			logger.Error("Invalid transfer source", "error", err)
			os.Exit(1)
		}

		statsInterval := time.Duration(opts.MetricsStatsIntervalMs) * time.Millisecond
		if opts.MetricsStatsIntervalMs <= 0 {
			statsInterval = -1
		}
		orch := capture.New(capture.Options{
			PoolSize:      opts.CameraPoolSize,
			Slots:         opts.CameraSlots,
			Sensor:        sensor,
			Source:        src,
			Events:        eventBus,
			StatsInterval: statsInterval,
		})

		params, err := config.LoadOrCreateStreamFile(opts.CameraStreamFile, sensor)
		if err != nil {
			logger.Warn("Failed to load stream file, using defaults", "path", opts.CameraStreamFile, "error", err)
		} else if cfgErr := orch.Configure(params); cfgErr != nil {
			logger.Warn("Stream file rejected", "path", opts.CameraStreamFile, "error", cfgErr)
		}

		watcher := config.NewConfigWatcher(
			opts.CameraStreamFile,
			config.StreamLoader(sensor),
			logging.GetLogger("config"),
			config.WithErrorHandler[capture.Params](func(loadErr error) {
				eventBus.Publish(events.ParamsReloadedEvent{
					Path:      opts.CameraStreamFile,
					Error:     loadErr.Error(),
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}),
		)
		watcher.OnReload(func(p capture.Params) {
			_ = applyReloadedParams(orch, eventBus, opts.CameraStreamFile, p, logger)
		})

		ledLogger := logging.GetLogger("led")
		indicator := led.NewIndicator(led.New(led.SysfsRoot, opts.LEDName, ledLogger), eventBus, ledLogger)

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		collector := collectors.NewStreamCollector(eventBus)
		var rates *exporters.RateExporter
		if opts.MetricsRatesEnabled {
			rates = exporters.NewRateExporter(eventBus)
		}

		apiOpts := &api.Options{
			AuthUsername:     opts.AuthUsername,
			AuthPassword:     opts.AuthPassword,
			Capture:          orch,
			Sensor:           sensor,
			EventBus:         eventBus,
			StreamFile:       opts.CameraStreamFile,
			FramePullTimeout: time.Duration(opts.FramePullTimeoutMs) * time.Millisecond,
			ReloadStream: func() error {
				p, loadErr := config.LoadStreamFile(opts.CameraStreamFile, sensor)
				if loadErr != nil {
					return loadErr
				}
				return applyReloadedParams(orch, eventBus, opts.CameraStreamFile, p, logger)
			},
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler(logging.GetLogger("metrics"))
		}

		server := api.NewServer(apiOpts)

		hooks.OnStart(func() {
			logger.Info("Starting stkcam", "version", version.String(), "sensor", sensor.String(), "source", opts.SourceKind)

			collector.Start()
			indicator.Start()
			if rates != nil {
				rates.Start(context.Background())
			}
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to watch stream file", "path", opts.CameraStreamFile, "error", startErr)
			}

			if opts.CameraAutoStart {
				if startErr := orch.Start(context.Background(), orch.Params()); startErr != nil {
					logger.Error("Failed to start capture", "error", startErr)
				}
			}

			notifier.Follow(eventBus)
			go notifier.RunWatchdog(watchdogCtx)
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			stopWatchdog()
			notifier.Unfollow()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop capture after the HTTP server stops accepting requests
			if orch.Running() {
				if stopErr := orch.Stop(); stopErr != nil {
					logger.Error("Error stopping capture", "error", stopErr)
				}
			}

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping stream file watcher", "error", stopErr)
			}
			if rates != nil {
				rates.Stop()
			}
			indicator.Stop()
			collector.Stop()
		})
	})

	cli.Root().Use = "stkcam"
	cli.Root().Short = "stk11xx bayer webcam capture service"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateDumpTraceCmd())
	cli.Root().AddCommand(cmd.CreateConvertCmd())
	cli.Root().AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Get().Full())
		},
	})

	// Run the CLI
	cli.Run()
}

func logEntryEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
