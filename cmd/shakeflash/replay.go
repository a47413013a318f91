package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shakeflash/gesture"
	"shakeflash/tunable"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var (
		defaults  bool
		overrides []string
	)

	cmd := &cobra.Command{
		Use:   "replay FILE.csv",
		Short: "Run recorded samples through a fresh recognizer",
		Long: `Replay reads "t_ms,x" rows (an optional header row is skipped) and feeds
them to a new recognizer, printing every trigger. Parameters come from the
configured settings store unless --defaults is given; --set overrides single
values for this run only. Nothing is written back to the store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, FlagOverrides{})
			if err != nil {
				return err
			}
			logger := opts.logger(cfg)

			store := tunable.NewMemoryStore()
			if !defaults {
				if err := copySettings(cfg.Settings, store); err != nil {
					return err
				}
			}
			params, err := newParamSet(store, logger)
			if err != nil {
				return err
			}
			for _, kv := range overrides {
				if err := applyOverride(params, kv); err != nil {
					return err
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open samples: %w", err)
			}
			defer f.Close()

			res, err := replaySamples(f, params, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d samples, %d triggers\n",
				styleDim.Render("replayed"), res.Samples, res.Triggers)
			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "Ignore stored settings and use defaults")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "Override a parameter for this run (KEY=VALUE, repeatable)")
	return cmd
}

// copySettings loads the persisted value of every parameter into dst, so a
// replay sees the daemon's settings without being able to change them.
func copySettings(cfg SettingsConfig, dst tunable.Store) error {
	src, err := openSettingsStore(cfg)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer src.Close()

	for _, spec := range paramSpecs() {
		v, ok, err := src.Load(spec.Key)
		if err != nil {
			return fmt.Errorf("load %s: %w", spec.Key, err)
		}
		if !ok {
			continue
		}
		if err := dst.Save(spec.Key, v); err != nil {
			return err
		}
	}
	return nil
}

// applyOverride parses KEY=VALUE and sets the parameter. The value must be
// in range, as it would be over IPC.
func applyOverride(params *paramSet, kv string) error {
	key, raw, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("invalid --set %q (want KEY=VALUE)", kv)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid --set %q: %w", kv, err)
	}
	t, err := params.registry.Lookup(strings.TrimSpace(key))
	if err != nil {
		return err
	}
	if err := t.Validate(value); err != nil {
		return err
	}
	return t.SetFloat(value)
}

type replayResult struct {
	Samples  int
	Triggers int
}

// replaySamples feeds every row of r to a new recognizer and writes one line
// per trigger to out.
func replaySamples(r io.Reader, params *paramSet, out io.Writer, logger *slog.Logger) (replayResult, error) {
	var (
		res     replayResult
		current gesture.Sample
		werr    error
	)

	recog := gesture.NewRecognizer(params.recognizerParams(), func() {
		res.Triggers++
		_, err := fmt.Fprintf(out, "%s at %d ms\n", styleEvent.Render("trigger"), current.At.Milliseconds())
		if err != nil && werr == nil {
			werr = err
		}
	})

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for row := 1; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read samples: %w", err)
		}

		ms, tErr := strconv.ParseInt(fields[0], 10, 64)
		x, xErr := strconv.ParseFloat(fields[1], 64)
		if tErr != nil || xErr != nil {
			if row == 1 {
				logger.Debug("skipping header row", "row", fields)
				continue
			}
			return res, fmt.Errorf("row %d: invalid sample %q", row, fields)
		}

		current = gesture.Sample{Kind: gesture.KindAccelerometer, At: sampleTime(ms), X: x}
		res.Samples++
		recog.Process(current)
		if werr != nil {
			return res, werr
		}
	}
	return res, nil
}
