package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the shakeflash daemon.
//
// The file is the primary configuration surface; flags only override single
// values. Defaults and validation live here so the rest of the code can
// assume a well-formed config.
type Config struct {
	// Accelerometer input
	Input InputConfig `yaml:"input"`

	// Where tunable parameters are persisted
	Settings SettingsConfig `yaml:"settings"`

	// Light output
	Torch TorchConfig `yaml:"torch"`

	// IPC control socket
	IPC IPCConfig `yaml:"ipc"`

	// Websocket/health HTTP listener
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Devices []string `yaml:"devices"`
	Axis    string   `yaml:"axis"`   // x, y or z
	Scale   float64  `yaml:"scale"`  // raw evdev units -> m/s^2
	Reader  string   `yaml:"reader"` // goroutine or epoll
}

type SettingsConfig struct {
	Backend string `yaml:"backend"` // yaml, sqlite or memory
	Path    string `yaml:"path,omitempty"`
}

type TorchConfig struct {
	Driver string `yaml:"driver"` // sysfs or log
	LED    string `yaml:"led,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	// Port 0 disables the listener.
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	readerGoroutine = "goroutine"
	readerEpoll     = "epoll"

	backendYAML   = "yaml"
	backendSQLite = "sqlite"
	backendMemory = "memory"

	driverSysfs = "sysfs"
	driverLog   = "log"
)

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Devices: []string{"/dev/input/event3"},
			Axis:    "x",
			Scale:   1.0,
			Reader:  readerGoroutine,
		},
		Settings: SettingsConfig{
			Backend: backendYAML,
			Path:    "~/.config/shakeflash/settings.yaml",
		},
		Torch: TorchConfig{
			Driver: driverSysfs,
			LED:    defaultTorchLED,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected so typos do not silently fall back to defaults.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values set on the command line. A nil pointer means
// the flag was not given; a non-nil pointer is applied even if it holds a
// zero value.
type FlagOverrides struct {
	InputDevice *string
	InputAxis   *string
	InputReader *string

	SettingsBackend *string
	SettingsPath    *string

	TorchDriver *string
	TorchLED    *string

	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.InputAxis != nil {
		cfg.Input.Axis = *o.InputAxis
	}
	if o.InputReader != nil {
		cfg.Input.Reader = *o.InputReader
	}

	if o.SettingsBackend != nil {
		cfg.Settings.Backend = *o.SettingsBackend
	}
	if o.SettingsPath != nil {
		cfg.Settings.Path = *o.SettingsPath
	}

	if o.TorchDriver != nil {
		cfg.Torch.Driver = *o.TorchDriver
	}
	if o.TorchLED != nil {
		cfg.Torch.LED = *o.TorchLED
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides have been applied.
func (c *Config) Validate() error {
	// Input
	if len(c.Input.Devices) == 0 {
		return errors.New("input.devices must not be empty")
	}
	// All devices share one sample assembler, so a second device would
	// interleave its frames into the gesture axis.
	if len(c.Input.Devices) > 1 {
		return fmt.Errorf("input.devices lists %d devices; exactly one accelerometer is supported", len(c.Input.Devices))
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if _, err := axisCode(c.Input.Axis); err != nil {
		return fmt.Errorf("input.axis: %w", err)
	}
	if c.Input.Scale == 0 {
		return errors.New("input.scale must not be 0")
	}
	switch c.Input.Reader {
	case readerGoroutine, readerEpoll:
	default:
		return fmt.Errorf("input.reader must be %q or %q", readerGoroutine, readerEpoll)
	}

	// Settings
	switch c.Settings.Backend {
	case backendYAML, backendSQLite:
		if c.Settings.Path == "" {
			return fmt.Errorf("settings.path is required for the %s backend", c.Settings.Backend)
		}
	case backendMemory:
	default:
		return fmt.Errorf("settings.backend must be one of: %s, %s, %s", backendYAML, backendSQLite, backendMemory)
	}

	// Torch
	switch c.Torch.Driver {
	case driverSysfs:
		if c.Torch.LED == "" {
			return errors.New("torch.led is required for the sysfs driver")
		}
	case driverLog:
	default:
		return fmt.Errorf("torch.driver must be %q or %q", driverSysfs, driverLog)
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// HTTP
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// axisCode maps a configured axis name to its EV_ABS code.
func axisCode(axis string) (uint16, error) {
	switch strings.ToLower(axis) {
	case "x":
		return ABS_X, nil
	case "y":
		return ABS_Y, nil
	case "z":
		return ABS_Z, nil
	default:
		return 0, fmt.Errorf("unknown axis %q (must be x, y or z)", axis)
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
