package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	socketPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd()); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "shakeflash",
		Short: "Toggle a light with a chop gesture",
		Long: `shakeflash watches an accelerometer for a double "chop" (up, down, up,
down within a short window) and toggles a light each time it sees one.

The detection parameters are live-tunable: change them with
"shakeflash param set" while the daemon is running and the next sample
uses the new value. Settings are persisted across restarts.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: error, warn, info, debug")
	root.PersistentFlags().StringVar(&opts.socketPath, "socket", defaultSocketPath, "Unix domain socket path for IPC")

	root.AddCommand(
		newRunCmd(opts),
		newParamCmd(opts),
		newTorchCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

// loadConfig layers defaults, the config file, the persistent flags and
// the command's own overrides, then validates the result.
func (o *rootOptions) loadConfig(cmd *cobra.Command, ov FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if o.configPath != "" {
		fileCfg, err := LoadConfigFile(o.configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	ov.LogLevel = changedString(cmd, "log-level", o.logLevel)
	ov.IPCSocketPath = changedString(cmd, "socket", o.socketPath)
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// logger builds the process logger from a validated config.
func (o *rootOptions) logger(cfg Config) *slog.Logger {
	// Validate has already accepted the level.
	level, _ := parseLogLevel(cfg.Logging.Level)
	return setupLogger(level, os.Stderr)
}

// changedString returns &v when the flag was given on the command line.
func changedString(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
