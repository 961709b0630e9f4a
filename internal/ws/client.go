package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/messaging"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// bound for one event including its store round trips
	eventTimeout = 15 * time.Second
)

type outbound struct {
	Data  interface{} `json:"data,omitempty"`
	Event string      `json:"event"`
	Ref   string      `json:"ref,omitempty"`
}

// Client is a single websocket connection. It implements messaging.Conn.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *messaging.Session
	limiter *rate.Limiter
	send    chan []byte
	log     zerolog.Logger
	mu      sync.Mutex
	closed  bool
}

// Send queues an event for the write pump; false when the queue is full or closed
func (c *Client) Send(event string, payload interface{}) bool {
	return c.Reply(event, "", payload)
}

// Reply queues an event correlated with an inbound ref
func (c *Client) Reply(event, ref string, payload interface{}) bool {
	data, err := json.Marshal(outbound{Event: event, Data: payload, Ref: ref})
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event failed")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		eventsDropped.WithLabelValues("send_buffer_full").Inc()
		c.log.Warn().Str("event", event).Msg("send buffer full, event dropped")
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump handles inbound events strictly in arrival order
func (c *Client) readPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		c.session.Close(ctx)
		cancel()
		c.hub.unregister(c)
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var f messaging.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			eventsDropped.WithLabelValues("malformed").Inc()
			continue
		}
		// identify is exempt from the event limiter
		if f.Event != domain.EventIdentify && !c.limiter.Allow() {
			eventsDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		eventsTotal.WithLabelValues(eventLabel(f.Event)).Inc()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		if !c.session.Dispatch(ctx, f) {
			eventsDropped.WithLabelValues("ignored").Inc()
		}
		cancel()
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
