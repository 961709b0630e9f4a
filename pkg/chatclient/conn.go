package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrClosed is returned by writes after the connection has gone away
var ErrClosed = errors.New("chatclient: connection closed")

// Conn is a live channel bound to a State. Inbound frames are applied in arrival order.
type Conn struct {
	ws     *websocket.Conn
	state  *State
	done   chan struct{}
	err    error
	mu     sync.Mutex
	errMu  sync.Mutex
	closed bool
}

type outbound struct {
	Data  interface{} `json:"data,omitempty"`
	Event string      `json:"event"`
	Ref   string      `json:"ref,omitempty"`
}

// Dial opens url with a bearer token, identifies as state.Self() and starts pumping events into state
func Dial(ctx context.Context, url, token string, state *State) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{ws: ws, state: state, done: make(chan struct{})}
	if err := c.Emit("identify", state.Self()); err != nil {
		ws.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		var ev Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			c.setErr(err)
			return
		}
		if err := c.state.Apply(ev); err != nil {
			c.setErr(err)
		}
	}
}

// Emit writes one event without a ref
func (c *Conn) Emit(event string, data interface{}) error {
	return c.write(outbound{Event: event, Data: data})
}

func (c *Conn) write(frame outbound) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// SendText inserts an optimistic record and pushes it on the live channel.
// The ack confirms the record; a write failure marks it failed.
func (c *Conn) SendText(conversationID, receiverID, content string) (Message, error) {
	m := c.state.BeginSend(conversationID, receiverID, content)
	if err := c.write(outbound{Event: "send", Data: m, Ref: m.ID}); err != nil {
		_ = c.state.FailSend(m.ID)
		return m, err
	}
	return m, nil
}

// Forward announces a message already stored through the REST path so a live receiver gets it at once
func (c *Conn) Forward(m Message) error {
	return c.write(outbound{Event: "send", Data: m, Ref: m.ID})
}

// StartTyping and StopTyping drive the receiver's typing indicator
func (c *Conn) StartTyping(conversationID, receiverID string) error {
	return c.Emit("typing-start", map[string]string{"conversationId": conversationID, "receiverId": receiverID})
}

func (c *Conn) StopTyping(conversationID, receiverID string) error {
	return c.Emit("typing-stop", map[string]string{"conversationId": conversationID, "receiverId": receiverID})
}

// MarkRead sends a read receipt for messages from senderID
func (c *Conn) MarkRead(senderID string, messageIDs []string) error {
	return c.Emit("read-receipt", map[string]interface{}{"senderId": senderID, "messageIds": messageIDs})
}

// React toggles emoji on messageID as the connected principal
func (c *Conn) React(messageID, emoji string) error {
	return c.Emit("reaction", map[string]string{"messageId": messageID, "emoji": emoji, "reactorId": c.state.Self()})
}

// QueryStatus asks for principalID's presence; the reply updates the State
func (c *Conn) QueryStatus(principalID string) error {
	return c.write(outbound{Event: "query-status", Data: principalID, Ref: principalID})
}

// Done is closed when the read loop exits
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the last read or apply error
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}

// Close sends a close frame and tears the connection down
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
