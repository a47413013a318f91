package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var wsURL string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live events from the daemon's websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, FlagOverrides{})
			if err != nil {
				return err
			}
			if wsURL == "" {
				if cfg.HTTP.Port == 0 {
					return fmt.Errorf("http.port is 0; pass --url")
				}
				wsURL = "ws://127.0.0.1:" + strconv.Itoa(cfg.HTTP.Port) + "/ws"
			}
			return watchEvents(cmd.Context(), wsURL, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&wsURL, "url", "", "Websocket URL (default ws://127.0.0.1:<http.port>/ws)")
	return cmd
}

// watchEvents prints every frame until ctx ends or the server hangs up.
func watchEvents(ctx context.Context, rawURL string, out, errOut io.Writer) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u, err)
	}
	defer conn.Close()

	fmt.Fprintf(errOut, "connected to %s (press Ctrl+C to exit)\n", u)

	// Control frames and the close handshake share the connection.
	var writeMu sync.Mutex
	conn.SetPingHandler(func(data string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	done := make(chan error, 1)
	go func() {
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					done <- fmt.Errorf("websocket: %w", err)
					return
				}
				done <- nil
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			fmt.Fprintln(out, formatEvent(message))
		}
	}()

	select {
	case <-ctx.Done():
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			fmt.Fprintf(errOut, "error closing connection: %v\n", err)
		}
		return nil
	case err := <-done:
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(errOut, "connection closed")
		return err
	}
}

// formatEvent renders one envelope as "15:04:05.000 type {data}". Frames that
// are not envelopes are printed as-is.
func formatEvent(message []byte) string {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		return string(message)
	}

	ts := "--:--:--.---"
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000")
	}

	detail := string(env.Data)
	switch env.Type {
	case "torch_changed":
		var d wsTorchChangedData
		if json.Unmarshal(env.Data, &d) == nil {
			detail = "torch " + renderTorch(d.On)
		}
	case "param_changed":
		var d wsParamChangedData
		if json.Unmarshal(env.Data, &d) == nil {
			detail = fmt.Sprintf("%s = %s %s", styleKey.Render(d.Key), formatValue(d.Value),
				styleDim.Render("(engine "+formatValue(d.EngineValue)+")"))
		}
	case "trigger":
		var d wsTriggerData
		if json.Unmarshal(env.Data, &d) == nil {
			detail = fmt.Sprintf("at %d ms %s", d.AtMS, styleDim.Render(d.ID))
		}
	}

	return fmt.Sprintf("%s %s %s", styleDim.Render(ts), styleEvent.Render(env.Type), detail)
}
