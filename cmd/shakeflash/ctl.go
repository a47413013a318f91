package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shakeflash/gesture"
)

// ============================================================================
// IPC client commands
// ============================================================================

// clientOptions is shared by the commands that talk to a running daemon.
type clientOptions struct {
	root    *rootOptions
	jsonOut bool
}

func (c *clientOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&c.jsonOut, "json", false, "Print the raw JSON response")
}

// socket resolves the control socket from flags and the config file.
func (c *clientOptions) socket(cmd *cobra.Command) (string, error) {
	cfg, err := c.root.loadConfig(cmd, FlagOverrides{})
	if err != nil {
		return "", err
	}
	return cfg.IPC.SocketPath, nil
}

// call sends req and either prints the raw response data or decodes it into
// out for the caller to render.
func (c *clientOptions) call(cmd *cobra.Command, req Request, out any) (printed bool, err error) {
	socket, err := c.socket(cmd)
	if err != nil {
		return false, err
	}
	if !c.jsonOut {
		return false, sendIPCRequest(socket, req, out)
	}

	var raw json.RawMessage
	if err := sendIPCRequest(socket, req, &raw); err != nil {
		return false, err
	}
	return true, writeJSON(cmd.OutOrStdout(), raw)
}

func writeJSON(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func newParamCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param",
		Short: "Inspect and change live parameters",
	}
	cmd.AddCommand(
		newParamListCmd(opts),
		newParamGetCmd(opts),
		newParamSetCmd(opts),
		newParamResetCmd(opts),
	)
	return cmd
}

func newParamListCmd(opts *rootOptions) *cobra.Command {
	c := &clientOptions{root: opts}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var views []paramView
			printed, err := c.call(cmd, ParamList{}, &views)
			if err != nil || printed {
				return err
			}
			return writeParamTable(cmd.OutOrStdout(), views)
		},
	}
	c.bind(cmd)
	return cmd
}

func newParamGetCmd(opts *rootOptions) *cobra.Command {
	c := &clientOptions{root: opts}
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Show one parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view paramView
			printed, err := c.call(cmd, ParamGet{Key: args[0]}, &view)
			if err != nil || printed {
				return err
			}
			return writeParamTable(cmd.OutOrStdout(), []paramView{view})
		},
	}
	c.bind(cmd)
	return cmd
}

func newParamSetCmd(opts *rootOptions) *cobra.Command {
	c := &clientOptions{root: opts}
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a parameter (takes effect on the next sample)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			var view paramView
			printed, err := c.call(cmd, ParamSet{Key: args[0], Value: value}, &view)
			if err != nil || printed {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s %s\n",
				styleKey.Render(view.Key), formatValue(view.Value),
				styleDim.Render(fmt.Sprintf("(engine %s)", formatValue(view.EngineValue))))
			return err
		},
	}
	c.bind(cmd)
	return cmd
}

func newParamResetCmd(opts *rootOptions) *cobra.Command {
	c := &clientOptions{root: opts}
	cmd := &cobra.Command{
		Use:   "reset [KEY]",
		Short: "Restore one parameter, or all of them, to the default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req ParamReset
			if len(args) == 1 {
				req.Key = args[0]
			}
			var views []paramView
			printed, err := c.call(cmd, req, &views)
			if err != nil || printed {
				return err
			}
			return writeParamTable(cmd.OutOrStdout(), views)
		},
	}
	c.bind(cmd)
	return cmd
}

func newTorchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torch",
		Short: "Control the light",
	}

	c := &clientOptions{root: opts}
	toggle := &cobra.Command{
		Use:   "toggle",
		Short: "Flip the light",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res wsTorchChangedData
			printed, err := c.call(cmd, TorchToggle{}, &res)
			if err != nil || printed {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "torch %s\n", renderTorch(res.On))
			return err
		},
	}
	c.bind(toggle)

	cmd.AddCommand(toggle)
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	c := &clientOptions{root: opts}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recognizer and torch state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap statusSnapshot
			printed, err := c.call(cmd, StatusQuery{}, &snap)
			if err != nil || printed {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), snap)
		},
	}
	c.bind(cmd)
	return cmd
}

// ============================================================================
// Rendering
// ============================================================================

func writeParamTable(w io.Writer, views []paramView) error {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.Key,
			formatValue(v.Value),
			formatValue(v.Min) + ".." + formatValue(v.Max),
			formatValue(v.Default),
			formatValue(v.EngineValue),
			v.Label,
		})
	}
	_, err := io.WriteString(w, renderTable(
		[]string{"KEY", "VALUE", "RANGE", "DEFAULT", "ENGINE", "LABEL"}, rows))
	return err
}

func writeStatus(w io.Writer, snap statusSnapshot) error {
	lastTrigger := "never"
	if snap.Triggered {
		lastTrigger = fmt.Sprintf("%d ms", snap.LastTriggerMS)
	}

	rows := [][]string{
		{"torch", renderTorch(snap.TorchOn)},
		{"pattern", formatPattern(snap.Pattern)},
		{"last direction", formatDirection(snap.LastDirection)},
		{"triggers", strconv.FormatUint(snap.Triggers, 10)},
		{"last trigger", lastTrigger},
		{"samples", strconv.FormatUint(snap.Samples, 10)},
	}
	if _, err := io.WriteString(w, renderTable([]string{"STATE", ""}, rows)); err != nil {
		return err
	}
	if len(snap.Params) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return writeParamTable(w, snap.Params)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatDirection(d int8) string {
	switch d {
	case gesture.DirUp:
		return "up"
	case gesture.DirDown:
		return "down"
	default:
		return "none"
	}
}

func formatPattern(p []int8) string {
	if len(p) == 0 {
		return styleDim.Render("(empty)")
	}
	parts := make([]string, len(p))
	for i, d := range p {
		parts[i] = formatDirection(d)
	}
	return strings.Join(parts, " ")
}
