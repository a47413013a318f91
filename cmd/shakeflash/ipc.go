package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// Control socket protocol, one JSON document per line in each direction:
//
//	-> {"type": "param_set", "data": {"key": "cooldownTime", "value": 0.4}}
//	<- {"status": "ok", "data": {...}}
//	<- {"status": "error", "error": "cooldownTime=4 not in [0.1, 1]: value out of range"}

// IPCResponse is sent back for every request line.
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // set when status == "error"
	Data   json.RawMessage `json:"data,omitempty"`
}

// controller executes requests against the daemon's components.
type controller struct {
	params *paramSet
	torch  *Torch
	status chan<- statusRequest
	logger *slog.Logger
}

// handle runs one request and returns the response payload.
func (c *controller) handle(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case ParamList:
		return c.params.views(), nil

	case ParamGet:
		t, err := c.params.registry.Lookup(r.Key)
		if err != nil {
			return nil, err
		}
		return viewOf(t), nil

	case ParamSet:
		t, err := c.params.registry.Lookup(r.Key)
		if err != nil {
			return nil, err
		}
		if err := t.Validate(r.Value); err != nil {
			return nil, err
		}
		if err := t.SetFloat(r.Value); err != nil {
			// The value is live; only persisting it failed.
			c.logger.Error("param persist failed", "key", r.Key, "error", err)
			return nil, err
		}
		c.logger.Info("param changed", "key", r.Key, "value", r.Value)
		return viewOf(t), nil

	case ParamReset:
		if r.Key == "" {
			if err := c.params.registry.ResetAll(); err != nil {
				return nil, err
			}
			c.logger.Info("params reset to defaults")
			return c.params.views(), nil
		}
		t, err := c.params.registry.Lookup(r.Key)
		if err != nil {
			return nil, err
		}
		if err := t.ResetValue(); err != nil {
			return nil, err
		}
		c.logger.Info("param reset", "key", r.Key, "value", t.Float())
		return []paramView{viewOf(t)}, nil

	case TorchToggle:
		on, err := c.torch.Toggle()
		if err != nil {
			return nil, err
		}
		return wsTorchChangedData{On: on}, nil

	case StatusQuery:
		return requestStatus(ctx, c.status)

	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

// runIPCServer serves the control socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, ctl *controller, logger *slog.Logger) error {
	// A stale socket from a crashed run would make Listen fail.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("control socket ready", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("control socket closed")
				return nil
			}
			logger.Error("control socket accept failed", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, ctl, logger)
	}
}

// handleIPCConnection answers request lines until the client hangs up.
func handleIPCConnection(ctx context.Context, conn net.Conn, ctl *controller, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(data any, err error) {
		resp := IPCResponse{Status: "ok"}
		if err != nil {
			resp = IPCResponse{Status: "error", Error: err.Error()}
		} else if data != nil {
			raw, mErr := json.Marshal(data)
			if mErr != nil {
				resp = IPCResponse{Status: "error", Error: fmt.Sprintf("marshal response: %v", mErr)}
			} else {
				resp.Data = raw
			}
		}
		if encErr := encoder.Encode(resp); encErr != nil {
			logger.Error("control response failed", "error", encErr)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("control request", "line", line)

		req, err := UnmarshalRequest([]byte(line))
		if err != nil {
			reply(nil, fmt.Errorf("parse request: %w", err))
			continue
		}
		reply(ctl.handle(ctx, req))
	}

	logger.Debug("control client disconnected")
}

// Client side, used by the param, torch and status commands.

// ErrDaemon wraps errors reported by the daemon (as opposed to transport errors).
var ErrDaemon = errors.New("daemon error")

// sendIPCRequest sends one request and decodes the response data into out
// (which may be nil).
func sendIPCRequest(socketPath string, req Request, out any) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalRequest(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%w: %s", ErrDaemon, resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
