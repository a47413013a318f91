package main

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWatcherQueue = 32
	defaultHubBacklog   = 128

	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// eventHub fans serialized frames out to every connected watcher. Each
// watcher has its own queue and write loop; a watcher whose queue is full
// when a frame arrives is dropped rather than waited for.
type eventHub struct {
	logger *slog.Logger

	frames chan []byte
	leaves chan *watcher
	queue  int

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	closed   bool
}

// newEventHub returns a hub with the given per-watcher queue length and
// inbound backlog. Non-positive sizes select the defaults. Call run to
// start it.
func newEventHub(logger *slog.Logger, queue, backlog int) *eventHub {
	if queue <= 0 {
		queue = defaultWatcherQueue
	}
	if backlog <= 0 {
		backlog = defaultHubBacklog
	}
	return &eventHub{
		logger:   logger,
		frames:   make(chan []byte, backlog),
		leaves:   make(chan *watcher, 64),
		queue:    queue,
		watchers: make(map[*watcher]struct{}),
	}
}

// run serves leaves and frames until done is closed, then disconnects
// everyone and refuses further joins.
func (h *eventHub) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.dropAll()
			return

		case w := <-h.leaves:
			h.drop(w, "left")

		case frame := <-h.frames:
			for _, w := range h.fanOut(frame) {
				h.drop(w, "queue full")
			}
		}
	}
}

// fanOut queues frame for every watcher and returns those that had no room.
func (h *eventHub) fanOut(frame []byte) []*watcher {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stuck []*watcher
	for w := range h.watchers {
		select {
		case w.out <- frame:
		default:
			stuck = append(stuck, w)
		}
	}
	return stuck
}

// join registers w. Once the hub has stopped it closes w and reports false.
func (h *eventHub) join(w *watcher) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		w.shutdown()
		return false
	}
	h.watchers[w] = struct{}{}
	n := len(h.watchers)
	h.mu.Unlock()

	h.logger.Info("watcher connected", "remote_addr", w.addr, "watchers", n)
	return true
}

func (h *eventHub) drop(w *watcher, reason string) {
	h.mu.Lock()
	_, ok := h.watchers[w]
	delete(h.watchers, w)
	n := len(h.watchers)
	h.mu.Unlock()

	if !ok {
		return
	}
	w.shutdown()
	h.logger.Info("watcher disconnected", "remote_addr", w.addr, "reason", reason, "watchers", n)
}

func (h *eventHub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for w := range h.watchers {
		w.shutdown()
	}
	clear(h.watchers)
}

// publish hands a frame to the hub without blocking.
func (h *eventHub) publish(frame []byte) {
	select {
	case h.frames <- frame:
	default:
		h.logger.Warn("event hub backlog full, dropping frame", "bytes", len(frame))
	}
}

// count reports the number of connected watchers.
func (h *eventHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// watcher is one websocket connection subscribed to the event stream.
type watcher struct {
	hub  *eventHub
	conn *websocket.Conn
	out  chan []byte
	once sync.Once

	addr   string
	logger *slog.Logger
}

func newWatcher(hub *eventHub, conn *websocket.Conn, addr string, logger *slog.Logger) *watcher {
	return &watcher{
		hub:    hub,
		conn:   conn,
		out:    make(chan []byte, hub.queue),
		addr:   addr,
		logger: logger,
	}
}

// shutdown closes the connection and the queue, which ends writeLoop.
// conn may be nil in tests.
func (w *watcher) shutdown() {
	w.once.Do(func() {
		if w.conn != nil {
			_ = w.conn.Close()
		}
		close(w.out)
	})
}

func (w *watcher) logExit(loop string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		w.logger.Debug("watcher "+loop+" closed", "remote_addr", w.addr, "code", ce.Code, "reason", ce.Text)
		return
	}
	w.logger.Debug("watcher "+loop+" ended", "remote_addr", w.addr, "error", err)
}

// writeLoop sends queued frames and keepalive pings until the queue is
// closed or a write fails.
func (w *watcher) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var (
			kind    int
			payload []byte
		)
		select {
		case frame, ok := <-w.out:
			if !ok {
				_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			kind, payload = websocket.TextMessage, frame
		case <-ping.C:
			kind = websocket.PingMessage
		}

		_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := w.conn.WriteMessage(kind, payload); err != nil {
			w.logExit("write", err)
			return
		}
	}
}

// readLoop discards inbound frames. It keeps control frames flowing and
// notices when the peer goes away.
func (w *watcher) readLoop() {
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			w.logExit("read", err)
			break
		}
	}

	select {
	case w.hub.leaves <- w:
	default:
		w.hub.drop(w, "left")
	}
}
