package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Conn adapts a gorilla websocket to the Link interface. One goroutine
// reads, one writes; everyone else reaches the socket through the send
// channel or control frames.
type Conn struct {
	id        string
	hub       *Hub
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	userID    atomic.Int64
	logger    *slog.Logger
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: h.logger,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) UserID() int64 { return c.userID.Load() }

func (c *Conn) BindUser(id int64) { c.userID.Store(id) }

func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrLinkClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Ping writes a control frame directly; gorilla allows one concurrent
// WriteControl alongside the write pump.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Run starts the write pump and reads until the connection dies. The
// caller's goroutine becomes the read pump.
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()
}

// readPump has no read deadline on purpose: the liveness sweep closes
// connections that stop answering pings, and that close is what unblocks
// ReadMessage here.
func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.hub.Detach(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.hub.HandlePong(c)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("read error", "connId", c.id, "error", err)
			}
			return
		}
		c.hub.HandleFrame(c, data)
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			// Flush anything already queued, the replaced notice in
			// particular, then say goodbye
			for {
				select {
				case data := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					c.ws.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
