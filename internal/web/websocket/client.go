package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// maxMessageSize bounds inbound frames; function results can carry frames
	maxMessageSize = 4 << 20

	sendQueueSize = 256
)

var (
	// ErrClientClosed is returned when sending to a disconnected client
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned when a client is not draining its queue
	ErrSendBufferFull = errors.New("send channel full")
)

// Client is one browser connection. Inbound frames are decoded and
// dispatched by the hub; outbound frames are encoded once and queued.
type Client struct {
	// ID is unique per connection
	ID string
	// Subject is the authenticated token subject, if any
	Subject string

	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	connectedAt time.Time
	// lastSeen holds unix nanos of the last frame or pong
	lastSeen atomic.Int64
	closed   atomic.Bool
}

// NewClient binds conn to hub. The client's context ends with the hub's.
func NewClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)
	now := time.Now()

	c := &Client{
		ID:          id,
		conn:        conn,
		hub:         hub,
		send:        make(chan []byte, sendQueueSize),
		ctx:         ctx,
		cancel:      cancel,
		connectedAt: now,
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Context is cancelled when the client disconnects
func (c *Client) Context() context.Context {
	return c.ctx
}

// serve runs the write loop in the background and the read loop until the
// connection drops
func (c *Client) serve() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.cancel()
		c.unregister()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		c.touch()

		if err := c.hub.HandleMessage(c.ctx, c, data); err != nil {
			c.hub.logger.Error("message handler failed", zap.String("client_id", c.ID), zap.Error(err))
			c.SendError(err.Error())
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	frameType := c.hub.codec.FrameType()
	for {
		var err error
		select {
		case <-c.ctx.Done():
			_ = c.write(websocket.CloseMessage, nil)
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(frameType, data)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(frameType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(frameType, data)
}

// Send encodes message with the hub codec and queues it for this client
func (c *Client) Send(message *Message) (err error) {
	// send may be closed by the hub between the check and the write
	defer func() {
		if recover() != nil {
			err = ErrClientClosed
		}
	}()

	if c.closed.Load() {
		return ErrClientClosed
	}

	data, err := c.hub.codec.Encode(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// SendError sends {"type": "error", "data": {"message": ...}}
func (c *Client) SendError(message string) {
	_ = c.Send(NewMessage(TypeError, map[string]string{"message": message}))
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastHeartbeat returns when the client was last heard from
func (c *Client) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// ConnectionDuration returns how long the client has been connected
func (c *Client) ConnectionDuration() time.Duration {
	return time.Since(c.connectedAt)
}

// Close disconnects the client
func (c *Client) Close() {
	c.closed.Store(true)
	c.cancel()
	c.unregister()
}

func (c *Client) unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.ctx.Done():
	}
}
