package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"DexLedger/internal/eventlog"
	"DexLedger/internal/ingestion"
	"DexLedger/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the outer handler.
		return true
	},
}

// Hub fans live event envelopes out to WebSocket clients. Clients subscribe
// to channels named after event kinds ("order", "trade", ...) or "events"
// for everything. A client whose send buffer stays full is disconnected
// rather than allowed to stall the broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool

	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{} // closed when Run exits

	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     observability.NewLogger("ws"),
		metrics:    metrics,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSClients.Set(float64(n))
			}
			h.logger.Debug().Str("client", c.id).Int("total", n).Msg("client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSClients.Set(float64(n))
			}
			h.logger.Debug().Str("client", c.id).Int("total", n).Msg("client disconnected")
		}
	}
}

// Broadcast sends raw bytes to every client subscribed to the channel.
// Full client buffers drop the message for that client only.
func (h *Hub) Broadcast(channel string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- message:
		default:
			if h.metrics != nil {
				h.metrics.WSBroadcastDrops.Inc()
			}
		}
	}
}

// RunEventStream forwards every appended envelope to the hub, on both the
// catch-all "events" channel and the kind-specific one. Live-only: clients
// needing history use the query surface.
func (h *Hub) RunEventStream(ctx context.Context, evlog *eventlog.Log) {
	for env := range evlog.Subscribe(ctx, evlog.Len()+1) {
		data, err := ingestion.EncodeEnvelope(env)
		if err != nil {
			h.logger.Error().Err(err).Uint64("sequence", env.Sequence).Msg("encode for broadcast failed")
			continue
		}
		h.Broadcast("events", data)
		h.Broadcast(strings.ToLower(env.Kind.String()), data)
	}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu sync.RWMutex
	subs   map[string]bool
}

type wsSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

func (c *wsClient) subscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channel]
}

// attach hands the client to the hub. False once the hub has stopped, so a
// connection arriving during shutdown is not stranded on the register channel.
func (h *Hub) attach(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// detach removes the client, returning immediately if the hub already stopped.
func (c *wsClient) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("client", c.id).Msg("read error")
			}
			return
		}

		var req wsSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		c.subsMu.Lock()
		switch req.Op {
		case "subscribe":
			for _, ch := range req.Channels {
				c.subs[ch] = true
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				delete(c.subs, ch)
			}
		}
		c.subsMu.Unlock()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   conn.RemoteAddr().String(),
		subs: map[string]bool{"events": true},
	}
	if !h.attach(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
