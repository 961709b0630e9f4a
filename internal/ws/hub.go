package ws

import (
	"context"
	"sync"
	"time"

	"github.com/damoang/angple-chat/internal/messaging"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options tune every connection served by a Hub
type Options struct {
	MaxMessageSize  int64
	EventsPerSecond float64
	EventBurst      int
	SendBuffer      int
}

func (o *Options) withDefaults() {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
}

// Hub owns the open websocket connections and binds each to a protocol session
type Hub struct {
	handler *messaging.Handler
	clients map[*Client]struct{}
	log     zerolog.Logger
	opts    Options
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
}

// NewHub creates a new Hub
func NewHub(handler *messaging.Handler, opts Options) *Hub {
	opts.withDefaults()
	return &Hub{
		handler: handler,
		clients: make(map[*Client]struct{}),
		log:     pkglogger.WithComponent("ws"),
		opts:    opts,
	}
}

// Serve starts the pumps for an upgraded connection of an authenticated principal.
// It returns immediately; the connection lives until either side closes it.
func (h *Hub) Serve(conn *websocket.Conn, principalID string) {
	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.opts.EventsPerSecond), h.opts.EventBurst),
		log:     h.log.With().Str("user_id", principalID).Logger(),
	}
	client.session = h.handler.NewSession(principalID, client)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	connectionsActive.Inc()

	go client.writePump()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		connectionsActive.Dec()
	}
	h.mu.Unlock()
}

// Count returns the number of open connections
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for their read loops to retire sessions
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), deadline)
		c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn().Int("connections", len(clients)).Msg("shutdown timed out waiting for connections")
	}
}
