package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shakeflash.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  devices: ["/dev/input/event9"]
  axis: z
settings:
  backend: sqlite
  path: /var/lib/shakeflash/settings.db
torch:
  driver: log
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if got := cfg.Input.Devices; len(got) != 1 || got[0] != "/dev/input/event9" {
		t.Fatalf("devices = %v", got)
	}
	if cfg.Input.Axis != "z" {
		t.Fatalf("axis = %q, want z", cfg.Input.Axis)
	}
	// Untouched sections keep their defaults.
	if cfg.Input.Scale != 1.0 {
		t.Fatalf("scale = %v, want default 1.0", cfg.Input.Scale)
	}
	if cfg.IPC.SocketPath != defaultSocketPath {
		t.Fatalf("socket = %q, want default", cfg.IPC.SocketPath)
	}
	if cfg.Settings.Backend != backendSQLite || cfg.Torch.Driver != driverLog {
		t.Fatalf("backend/driver = %q/%q", cfg.Settings.Backend, cfg.Torch.Driver)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
input:
  axes: x
`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n---\nlogging:\n  level: info\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for trailing document")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	dev := "/dev/input/event1"
	backend := backendMemory
	port := 0
	FlagOverrides{
		InputDevice:     &dev,
		SettingsBackend: &backend,
		HTTPPort:        &port,
	}.Apply(&cfg)

	if len(cfg.Input.Devices) != 1 || cfg.Input.Devices[0] != dev {
		t.Fatalf("devices = %v", cfg.Input.Devices)
	}
	if cfg.Settings.Backend != backendMemory {
		t.Fatalf("backend = %q", cfg.Settings.Backend)
	}
	if cfg.HTTP.Port != 0 {
		t.Fatalf("zero-valued override not applied: port = %d", cfg.HTTP.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("unset override changed level to %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no devices", func(c *Config) { c.Input.Devices = nil }, "input.devices"},
		{"two devices", func(c *Config) { c.Input.Devices = []string{"/dev/input/event3", "/dev/input/event4"} }, "exactly one"},
		{"bad axis", func(c *Config) { c.Input.Axis = "w" }, "input.axis"},
		{"zero scale", func(c *Config) { c.Input.Scale = 0 }, "input.scale"},
		{"bad reader", func(c *Config) { c.Input.Reader = "poll" }, "input.reader"},
		{"bad backend", func(c *Config) { c.Settings.Backend = "etcd" }, "settings.backend"},
		{"sqlite without path", func(c *Config) { c.Settings.Backend = backendSQLite; c.Settings.Path = "" }, "settings.path"},
		{"sysfs without led", func(c *Config) { c.Torch.LED = "" }, "torch.led"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_MemoryBackendNeedsNoPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.Backend = backendMemory
	cfg.Settings.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x/y") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Fatalf("ExpandPath(/abs) = %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Fatalf("ExpandPath(~user/x) = %q", got)
	}
}
