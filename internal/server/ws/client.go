package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 256

	// maxReplay caps entries returned for one replay request.
	maxReplay     = 100
	replayTimeout = 5 * time.Second
)

// request is a control frame sent by a client.
//
//	{"action":"subscribe","channels":["chat:*"]}
//	{"action":"unsubscribe","channels":["chat:exchanges"]}
//	{"action":"replay","after":"1700000000000-0","count":20}
type request struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
	After    string   `json:"after,omitempty"`
	Count    int      `json:"count,omitempty"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// closed is guarded by hub.mu and set when the hub closes send.
	closed bool

	mu   sync.RWMutex
	subs map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]struct{}, len(feeds)),
	}
	for ch := range feeds {
		c.subs[ch] = struct{}{}
	}
	return c
}

// queue enqueues a frame without blocking; it reports false when the
// buffer is full or the client is gone.
func (c *client) queue(frame []byte) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.trySend(frame)
}

// trySend is queue for callers already holding hub.mu.
func (c *client) trySend(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// wants reports whether channel matches a subscription. A trailing "*"
// matches any suffix.
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.subs[channel]; ok {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) handle(req request) {
	switch req.Action {
	case "subscribe":
		c.mu.Lock()
		for _, ch := range req.Channels {
			c.subs[ch] = struct{}{}
		}
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range req.Channels {
			delete(c.subs, ch)
		}
		c.mu.Unlock()
	case "replay":
		c.replay(req.After, req.Count)
	}
}

// replay sends stream entries recorded after the given id ("" or "0" for
// the oldest retained), then a replay_end frame carrying the last id sent.
func (c *client) replay(after string, count int) {
	if after == "" {
		after = "0"
	}
	if count <= 0 || count > maxReplay {
		count = maxReplay
	}

	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()

	msgs, err := c.hub.bus.StreamRead(ctx, domain.StreamChat, after, count)
	if err != nil {
		c.hub.logger.Warn("ws: replay failed", slog.String("error", err.Error()))
		c.queue(encode(envelope{Type: "error", Payload: json.RawMessage(`{"detail":"replay unavailable"}`)}))
		return
	}

	last := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		if !c.queue(encode(envelope{Type: feeds[domain.ChannelChat], Channel: domain.StreamChat, ID: m.ID, Payload: m.Payload})) {
			break
		}
		last = m.ID
	}
	end, _ := json.Marshal(map[string]string{"last_id": last})
	c.queue(encode(envelope{Type: "replay_end", Payload: end}))
}

func (c *client) readLoop() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: connection closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		var req request
		if json.Unmarshal(data, &req) == nil {
			c.handle(req)
		}
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
