// ABOUTME: Websocket implementation of the remote call gateway.
// ABOUTME: JSON request/reply frames correlated by call ID, with cancel frames.

package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// callFrame is an outgoing request or cancel frame.
type callFrame struct {
	ID     uint64         `json:"id,omitempty"`
	Method string         `json:"method,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Cancel uint64         `json:"cancel,omitempty"`
}

// Client speaks JSON frames over a single websocket connection. Replies carry
// the originating call ID plus either a payload object or an error object:
//
//	{"id": 7, "payload": {...}}
//	{"id": 7, "error": {"code": "BOT_INVALID", "message": "..."}}
//
// Callbacks are invoked from the read loop goroutine; consumers synchronize
// their own state.
type Client struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[Handle]func(payload []byte, err error)
	closed  bool
}

// Dial connects to the remote service at the given websocket URL and starts
// the reply dispatch loop.
func Dial(url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}
	c := &Client{
		conn:    conn,
		logger:  logger.With("component", "gateway"),
		pending: make(map[Handle]func(payload []byte, err error)),
	}
	go c.readLoop()
	return c, nil
}

// Call sends a request frame and registers done for the reply.
func (c *Client) Call(method string, params map[string]any, done func(payload []byte, err error)) Handle {
	h := Handle(c.nextID.Add(1))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go done(nil, ErrClosed)
		return h
	}
	c.pending[h] = done
	c.mu.Unlock()

	if err := c.write(callFrame{ID: uint64(h), Method: method, Params: params}); err != nil {
		c.mu.Lock()
		cb, ok := c.pending[h]
		delete(c.pending, h)
		c.mu.Unlock()
		if ok {
			go cb(nil, fmt.Errorf("sending %s: %w", method, err))
		}
		return h
	}

	c.logger.Debug("call issued", "method", method, "handle", h)
	return h
}

// Cancel voids the local slot immediately and tells the remote side to stop
// working on the call. A reply that still arrives is dropped.
func (c *Client) Cancel(h Handle) {
	if h == 0 {
		return
	}
	c.mu.Lock()
	_, ok := c.pending[h]
	delete(c.pending, h)
	closed := c.closed
	c.mu.Unlock()
	if !ok || closed {
		return
	}
	// Best-effort; the local slot is already gone.
	if err := c.write(callFrame{Cancel: uint64(h)}); err != nil {
		c.logger.Debug("cancel frame not sent", "handle", h, "error", err)
	}
}

// Close shuts the connection down and fails every pending call with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	callbacks := make([]func(payload []byte, err error), 0, len(c.pending))
	for h, cb := range c.pending {
		callbacks = append(callbacks, cb)
		delete(c.pending, h)
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(nil, ErrClosed)
	}
	return c.conn.Close()
}

func (c *Client) write(frame callFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// readLoop dispatches reply frames to their registered callbacks until the
// connection drops.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("gateway connection closed", "error", err)
			c.Close()
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	frame := gjson.ParseBytes(data)
	id := frame.Get("id").Uint()
	if id == 0 {
		c.logger.Warn("reply frame without call id")
		return
	}

	c.mu.Lock()
	cb, ok := c.pending[Handle(id)]
	delete(c.pending, Handle(id))
	c.mu.Unlock()
	if !ok {
		// Cancelled or unknown; late replies are no-ops.
		c.logger.Debug("dropping reply for unknown call", "handle", id)
		return
	}

	if errObj := frame.Get("error"); errObj.Exists() {
		cb(nil, &Error{
			Code:    errObj.Get("code").String(),
			Message: errObj.Get("message").String(),
		})
		return
	}

	payload := frame.Get("payload")
	raw := []byte(payload.Raw)
	if !payload.Exists() {
		raw = []byte("{}")
	}
	cb(raw, nil)
}

var _ Caller = (*Client)(nil)
