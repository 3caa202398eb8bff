package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/scanogram/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Pings are sent at this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Largest inbound frame accepted
	maxFrameSize = 64 * 1024

	// Buffer size for outgoing frames
	sendBufferSize = 256
)

// Client is a Conn backed by a gorilla websocket. Frames are written by a
// single goroutine (writePump); Close lets it flush what is already queued
// before the socket is closed.
type Client struct {
	id          model.SessionID
	conn        *websocket.Conn
	send        chan []byte
	closing     chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
	logger      *slog.Logger
}

// Ensure Client implements Conn
var _ Conn = (*Client)(nil)

// NewClient wraps an upgraded websocket connection
func NewClient(id model.SessionID, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		closing:     make(chan struct{}),
		connectedAt: time.Now(),
		logger:      logger.With(slog.String("session_id", string(id))),
	}
}

func (c *Client) SessionID() model.SessionID {
	return c.id
}

// Deliver queues a frame without blocking
func (c *Client) Deliver(frame []byte) bool {
	select {
	case <-c.closing:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("ws client buffer full")
		return false
	}
}

// Close asks the write pump to flush and close the socket
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closing) })
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// writePump owns every write to the socket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.logger.Debug("ws client closed", slog.Duration("connection_duration", time.Since(c.connectedAt)))
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closing:
			for {
				select {
				case frame := <-c.send:
					if err := c.write(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					_ = c.write(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// readPump reads text frames until the socket fails or closes
func (c *Client) readPump(onFrame func([]byte)) error {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		onFrame(data)
	}
}
