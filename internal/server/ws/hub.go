// Package ws bridges the Redis signal bus to WebSocket clients so that
// external consumers can stream opportunity, plan and trade events live.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbot/internal/domain"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingEvery    = 54 * time.Second // must stay under pongTimeout
	readLimit    = 4096
	outboxSize   = 256
)

// topics are the signal-bus channels the hub mirrors to WebSocket clients.
var topics = []string{"opportunities", "plans", "trades"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering happens in the CORS layer; the hub accepts any
	// upgrade that made it through the middleware chain.
	CheckOrigin: func(*http.Request) bool { return true },
}

// event is a single bus message tagged with the topic it arrived on.
type event struct {
	topic   string
	payload []byte
}

// Config carries runtime metadata included in the status frame each client
// receives on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub fans signal-bus messages out to connected WebSocket clients. Clients
// start subscribed to every topic and can narrow the set with JSON control
// frames ({"action":"subscribe"|"unsubscribe","channels":[...]}).
type Hub struct {
	bus       domain.SignalBus
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	events chan event

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		logger:    logger,
		mode:      mode,
		startedAt: started,
		events:    make(chan event, 256),
		conns:     make(map[*conn]struct{}),
	}
}

// Run drives the hub until ctx is cancelled: one goroutine pumps each bus
// topic into the event channel, and the dispatch loop fans events out to
// subscribed clients.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error { return h.pump(ctx, topic) })
	}
	g.Go(func() error { return h.dispatch(ctx) })
	return g.Wait()
}

func (h *Hub) pump(ctx context.Context, topic string) error {
	src, err := h.bus.Subscribe(ctx, topic)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("topic", topic), slog.String("error", err.Error()))
		return nil
	}
	h.logger.Info("ws: mirroring topic", slog.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, open := <-src:
			if !open {
				h.logger.Warn("ws: bus stream closed", slog.String("topic", topic))
				return nil
			}
			select {
			case h.events <- event{topic: topic, payload: data}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (h *Hub) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case ev := <-h.events:
			h.mu.RLock()
			for c := range h.conns {
				c.deliver(ev, h.logger)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		close(c.outbox)
		delete(h.conns, c)
	}
}

func (h *Hub) attach(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("clients", n))
}

func (h *Hub) detach(c *conn) {
	h.mu.Lock()
	_, present := h.conns[c]
	if present {
		delete(h.conns, c)
		close(c.outbox)
	}
	n := len(h.conns)
	h.mu.Unlock()
	if present {
		h.logger.Info("ws: client disconnected", slog.Int("clients", n))
	}
}

// HandleWS upgrades the request and services it until either side hangs up.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &conn{
		sock:   sock,
		outbox: make(chan []byte, outboxSize),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}

	h.attach(c)
	c.enqueue(h.statusFrame())

	go c.writeLoop()
	go c.readLoop(h)
}

// statusFrame tells a fresh client the connection is live before any market
// events arrive.
func (h *Hub) statusFrame() []byte {
	uptime := max(int64(time.Since(h.startedAt).Seconds()), 0)
	frame, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"mode":           h.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return nil
	}
	return frame
}

// conn is one WebSocket client with its outgoing queue and topic filter.
type conn struct {
	sock   *websocket.Conn
	outbox chan []byte

	mu     sync.RWMutex
	topics map[string]struct{}
}

// controlFrame is the JSON message clients send to manage their topic set.
type controlFrame struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func (c *conn) deliver(ev event, logger *slog.Logger) {
	c.mu.RLock()
	_, wants := c.topics[ev.topic]
	c.mu.RUnlock()
	if !wants {
		return
	}
	select {
	case c.outbox <- ev.payload:
	default:
		// Backpressure: the client is not draining its queue.
		logger.Warn("ws: dropping event for slow client", slog.String("topic", ev.topic))
	}
}

func (c *conn) enqueue(frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.outbox <- frame:
	default:
	}
}

func (c *conn) applyControl(f controlFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch f.Action {
	case "subscribe":
		for _, t := range f.Channels {
			c.topics[t] = struct{}{}
		}
	case "unsubscribe":
		for _, t := range f.Channels {
			delete(c.topics, t)
		}
	}
}

func (c *conn) readLoop(h *Hub) {
	defer func() {
		h.detach(c)
		c.sock.Close()
	}()

	c.sock.SetReadLimit(readLimit)
	c.sock.SetReadDeadline(time.Now().Add(pongTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("ws: abnormal close", slog.String("error", err.Error()))
			}
			return
		}
		var f controlFrame
		if json.Unmarshal(raw, &f) == nil && (f.Action != "" || len(f.Channels) > 0) {
			c.applyControl(f)
		}
	}
}

func (c *conn) writeLoop() {
	keepalive := time.NewTicker(pingEvery)
	defer func() {
		keepalive.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case frame, open := <-c.outbox:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !open {
				c.sock.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-keepalive.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
