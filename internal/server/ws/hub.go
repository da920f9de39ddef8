// Package ws streams chat exchange events from the signal bus to WebSocket
// clients.
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

	"github.com/ciyexa/cryptoagent/internal/domain"
)

// fanoutBuffer is the number of bus events queued ahead of the hub loop.
const fanoutBuffer = 256

// feeds maps each bus channel the hub relays to the envelope type clients see.
var feeds = map[string]string{
	domain.ChannelChat: "chat_exchange",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware in front of /ws.
	CheckOrigin: func(*http.Request) bool { return true },
}

// envelope wraps every frame sent to clients. ID is set only on frames
// replayed from the durable stream.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(env envelope) []byte {
	b, _ := json.Marshal(env)
	return b
}

type busEvent struct {
	channel string
	data    []byte
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Name      string
	Version   string
	StartedAt time.Time
}

// Hub relays signal bus events to every connected client subscribed to
// the event's channel.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger
	meta   Config

	events chan busEvent
	join   chan *client
	leave  chan *client
	done   chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub reading from bus. Run must be started before
// HandleWS accepts connections.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:     bus,
		logger:  logger,
		meta:    cfg,
		events:  make(chan busEvent, fanoutBuffer),
		join:    make(chan *client),
		leave:   make(chan *client),
		done:    make(chan struct{}),
		clients: make(map[*client]struct{}),
	}
}

// Run subscribes to every relayed channel and dispatches events until ctx
// is cancelled, at which point all client connections are closed.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for channel := range feeds {
		go h.relay(ctx, channel)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.closed = true
				close(c.send)
			}
			clear(h.clients)
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.join:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("clients", n))

		case c := <-h.leave:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.closed = true
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("clients", n))

		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

// dispatch sends ev to subscribed clients. A client whose buffer is full
// misses the event; it can catch up with a replay request.
func (h *Hub) dispatch(ev busEvent) {
	if !json.Valid(ev.data) {
		h.logger.Warn("ws: dropping non-JSON bus event", slog.String("channel", ev.channel))
		return
	}
	frame := encode(envelope{Type: feeds[ev.channel], Channel: ev.channel, Payload: ev.data})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.channel) {
			continue
		}
		if !c.trySend(frame) {
			h.logger.Warn("ws: client too slow, event dropped", slog.String("channel", ev.channel))
		}
	}
}

// relay forwards one bus channel into the hub loop.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: relaying channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.events <- busEvent{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and attaches a new client subscribed to
// every relayed channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.queue(h.statusFrame())

	select {
	case h.join <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) statusFrame() []byte {
	channels := make([]string, 0, len(feeds))
	for ch := range feeds {
		channels = append(channels, ch)
	}
	payload, _ := json.Marshal(map[string]any{
		"name":           h.meta.Name,
		"version":        h.meta.Version,
		"uptime_seconds": max(0, int64(time.Since(h.meta.StartedAt).Seconds())),
		"channels":       channels,
	})
	return encode(envelope{Type: "status", Payload: payload})
}
