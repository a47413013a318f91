package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Live event websocket
// ============================================================================
//
// Frames are JSON text: {"type": ..., "ts": ..., "data": {...}}.
//
//   state_init      statusSnapshot, always the first frame on a connection
//   trigger         {id, at_ms}
//   param_changed   {key, value, engine_value}, latest value per key, at most
//                   once per wsParamCoalesceWindow
//   torch_changed   {on}
//
// ============================================================================

type wsTriggerData struct {
	ID   string `json:"id"`
	AtMS int64  `json:"at_ms"`
}

type wsParamChangedData struct {
	Key         string  `json:"key"`
	Value       float64 `json:"value"`
	EngineValue float64 `json:"engine_value"`
}

type wsTorchChangedData struct {
	On bool `json:"on"`
}

// envelope is the wire form of every frame.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// marshalEnvelope encodes one frame. A zero ts is stamped with the current time.
func marshalEnvelope(typ string, ts time.Time, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if ts.IsZero() {
		ts = nowUTC()
	}
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: raw})
}

// wsParamCoalesceWindow bounds how often param_changed for one key is sent
// while a value is being dragged.
const wsParamCoalesceWindow = 50 * time.Millisecond

// wsServer upgrades HTTP requests into watchers of the event hub.
type wsServer struct {
	logger *slog.Logger
	hub    *eventHub

	// status reaches the sample loop for the state_init snapshot.
	status chan<- statusRequest
}

// newWSServer builds a server with its own hub. The caller runs hub.run and
// runBroadcaster.
func newWSServer(logger *slog.Logger, status chan<- statusRequest) *wsServer {
	return &wsServer{
		logger: logger,
		hub:    newEventHub(logger, 0, 0),
		status: status,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := requestStatus(r.Context(), s.status)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("state snapshot for watcher failed", "error", err)
		}
		http.Error(w, "daemon not ready", http.StatusServiceUnavailable)
		return
	}
	initFrame, err := marshalEnvelope("state_init", nowUTC(), snap)
	if err != nil {
		s.logger.Warn("state_init marshal failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	// state_init is queued before the hub knows the watcher, so it is the
	// first frame and cannot race a shutdown of the queue.
	wt := newWatcher(s.hub, conn, r.RemoteAddr, s.logger)
	wt.out <- initFrame
	if !s.hub.join(wt) {
		return
	}

	// The loops outlive the request; net/http cancels its context on return.
	go wt.writeLoop()
	go wt.readLoop()
}

// runBroadcaster encodes broadcasts from src and publishes them to hub.
//
// param_changed is coalesced per key: the latest value of each key is sent
// when the window closes. Any other broadcast flushes the pending parameter
// frames first so watchers see changes in order.
func runBroadcaster(ctx context.Context, hub *eventHub, src <-chan StateBroadcast, logger *slog.Logger) {
	var (
		pending = make(map[string][]byte)
		keys    []string
		window  *time.Timer
		flushC  <-chan time.Time
	)

	flush := func() {
		if window != nil {
			window.Stop()
			window, flushC = nil, nil
		}
		for _, k := range keys {
			hub.publish(pending[k])
		}
		clear(pending)
		keys = keys[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-flushC:
			window, flushC = nil, nil
			flush()

		case b, ok := <-src:
			if !ok {
				flush()
				return
			}

			typ, data, at := describeBroadcast(b)
			if typ == "" {
				continue
			}
			frame, err := marshalEnvelope(typ, at, data)
			if err != nil {
				logger.Warn("broadcast marshal failed", "type", typ, "error", err)
				continue
			}

			p, isParam := b.(BroadcastParamChanged)
			if !isParam {
				flush()
				hub.publish(frame)
				continue
			}
			if _, queued := pending[p.Key]; !queued {
				keys = append(keys, p.Key)
			}
			pending[p.Key] = frame
			if window == nil {
				window = time.NewTimer(wsParamCoalesceWindow)
				flushC = window.C
			}
		}
	}
}

// describeBroadcast maps a broadcast to its frame type, payload and time.
// Unknown broadcasts yield an empty type.
func describeBroadcast(b StateBroadcast) (string, any, time.Time) {
	switch ev := b.(type) {
	case BroadcastTrigger:
		return "trigger", wsTriggerData{ID: ev.ID, AtMS: ev.AtMS}, ev.At
	case BroadcastParamChanged:
		return "param_changed", wsParamChangedData{Key: ev.Key, Value: ev.Value, EngineValue: ev.EngineValue}, ev.At
	case BroadcastTorchChanged:
		return "torch_changed", wsTorchChangedData{On: ev.On}, ev.At
	default:
		return "", nil, time.Time{}
	}
}
