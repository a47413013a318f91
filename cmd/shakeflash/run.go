package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shakeflash/gesture"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		device       string
		axis         string
		reader       string
		backend      string
		settingsPath string
		ephemeral    bool
		torchDriver  string
		torchLED     string
		httpPort     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gesture daemon",
		Long: `Run reads accelerometer events from evdev, recognizes chop gestures and
toggles the light. It serves the IPC control socket and, unless the HTTP
port is 0, a websocket at /ws that streams triggers and parameter changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := FlagOverrides{
				InputDevice:     changedString(cmd, "input-device", device),
				InputAxis:       changedString(cmd, "axis", axis),
				InputReader:     changedString(cmd, "reader", reader),
				SettingsBackend: changedString(cmd, "settings-backend", backend),
				SettingsPath:    changedString(cmd, "settings-path", settingsPath),
				TorchDriver:     changedString(cmd, "torch-driver", torchDriver),
				TorchLED:        changedString(cmd, "torch-led", torchLED),
				HTTPPort:        changedInt(cmd, "http-port", httpPort),
			}
			if ephemeral {
				mem := backendMemory
				ov.SettingsBackend = &mem
			}

			cfg, err := opts.loadConfig(cmd, ov)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, opts.logger(cfg))
		},
	}

	f := cmd.Flags()
	f.StringVar(&device, "input-device", "/dev/input/event3", "Accelerometer evdev device")
	f.StringVar(&axis, "axis", "x", "Axis to watch: x, y or z")
	f.StringVar(&reader, "reader", readerGoroutine, "Input reader: goroutine or epoll")
	f.StringVar(&backend, "settings-backend", backendYAML, "Settings backend: yaml, sqlite or memory")
	f.StringVar(&settingsPath, "settings-path", "", "Settings file (yaml) or database (sqlite)")
	f.BoolVar(&ephemeral, "ephemeral", false, "Keep settings in memory only")
	f.StringVar(&torchDriver, "torch-driver", driverSysfs, "Torch driver: sysfs or log")
	f.StringVar(&torchLED, "torch-led", defaultTorchLED, "LED class directory for the sysfs driver")
	f.IntVar(&httpPort, "http-port", defaultHTTPPort, "Websocket/health port (0 disables)")

	return cmd
}

// serve runs the daemon until ctx is canceled or a component fails.
func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	store, err := openSettingsStore(cfg.Settings)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	params, err := newParamSet(store, logger)
	if err != nil {
		return err
	}

	broadcasts := make(chan StateBroadcast, broadcastQueueSize)
	publish := newPublisher(broadcasts, logger)

	driver, err := newTorchDriver(cfg.Torch, logger)
	if err != nil {
		return err
	}
	torch := NewTorch(driver, params.torchTimeout, func(on bool) {
		publish(BroadcastTorchChanged{On: on, At: nowUTC()})
	}, logger)
	if err := torch.ForceOff(); err != nil {
		return err
	}
	defer func() {
		if err := torch.ForceOff(); err != nil {
			logger.Warn("failed to switch torch off on exit", "error", err)
		}
	}()

	stopWatch := params.watch(publish)
	defer stopWatch()

	axis, err := axisCode(cfg.Input.Axis)
	if err != nil {
		return err
	}
	files, err := openInputDevices(cfg.Input.Devices, logger)
	if err != nil {
		logger.Error("failed to open input device", "error", err, "tip", "run as root or add user to 'input' group")
		return err
	}
	defer closeInputDevices(files)

	events := make(chan inputEvent, sampleQueueSize)
	readErr := make(chan error, len(files))
	switch cfg.Input.Reader {
	case readerEpoll:
		go readInputEventsEpoll(files, events, readErr)
	default:
		for _, f := range files {
			go readInputEvents(f, events, readErr)
		}
	}

	var (
		samples  = make(chan gesture.Sample, sampleQueueSize)
		status   = make(chan statusRequest)
		triggers = make(chan BroadcastTrigger, triggerQueueSize)
		ws       = newWSServer(logger, status)
		ctl      = &controller{params: params, torch: torch, status: status, logger: logger}
		asm      = newSampleAssembler(axis, cfg.Input.Scale)
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pumpSamples(gctx, events, asm, samples)
		return nil
	})
	g.Go(func() error {
		runDaemon(gctx, samples, status, params, torch, triggers, logger)
		return nil
	})
	g.Go(func() error {
		runEffects(gctx, triggers, torch, publish, logger)
		return nil
	})
	g.Go(func() error {
		ws.hub.run(gctx.Done())
		return nil
	})
	g.Go(func() error {
		runBroadcaster(gctx, ws.hub, broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, ctl, logger)
	})
	if cfg.HTTP.Port > 0 {
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Port, newHTTPMux(ws), logger)
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("input device: %w", err)
		}
	})

	logger.Debug("configuration",
		"devices", cfg.Input.Devices,
		"axis", cfg.Input.Axis,
		"scale", cfg.Input.Scale,
		"reader", cfg.Input.Reader,
		"settings_backend", cfg.Settings.Backend,
		"settings_path", cfg.Settings.Path,
		"torch_driver", cfg.Torch.Driver,
		"torch_led", cfg.Torch.LED)
	logger.Info("listening",
		"devices", cfg.Input.Devices,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"version", version)

	err = g.Wait()
	if err != nil {
		logger.Error("daemon stopped", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}

// openInputDevices opens every device or none. Each device is switched to
// monotonic event time; failing that, the sample assembler absorbs clock steps.
func openInputDevices(paths []string, logger *slog.Logger) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeInputDevices(files)
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		if err := useMonotonicClock(f); err != nil {
			logger.Warn("event clock left at wall time", "device", p, "error", err)
		}
		files = append(files, f)
	}
	return files, nil
}

func closeInputDevices(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
