package ws

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

var (
	// ErrClosed is returned by Send after the connection has been closed.
	ErrClosed = errors.New("connection closed")
	// ErrSendQueueFull is returned by Send when the peer has stopped draining
	// its queue. The connection is closed when this happens.
	ErrSendQueueFull = errors.New("send queue full")
)

const defaultSendQueueSize = 64

// Conn wraps a websocket connection. Outbound frames go through a bounded
// queue drained by a single writer goroutine, so they reach the peer in the
// order Send was called. Reads must come from a single goroutine.
type Conn struct {
	id     string
	raw    *websocket.Conn
	remote string

	writeTimeout time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration

	send      chan []byte
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps raw with the limits and keepalive timings in cfg and starts
// its writer.
//
// Precondition: raw must be an upgraded, open websocket connection.
// Postcondition: Returns a Conn with a unique ID and its read limit applied.
func NewConn(raw *websocket.Conn, cfg config.ServerConfig) *Conn {
	size := cfg.SendQueueSize
	if size <= 0 {
		size = defaultSendQueueSize
	}
	c := &Conn{
		id:           uuid.NewString(),
		raw:          raw,
		remote:       raw.RemoteAddr().String(),
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		pingPeriod:   cfg.PingPeriod(),
		send:         make(chan []byte, size),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		raw.SetReadLimit(cfg.MaxMessageSize)
	}
	if c.pongWait > 0 {
		_ = raw.SetReadDeadline(time.Now().Add(c.pongWait))
		raw.SetPongHandler(func(string) error {
			return raw.SetReadDeadline(time.Now().Add(c.pongWait))
		})
	}
	go c.writePump()
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// Send queues frame for delivery as one text message. It never blocks: a
// peer whose queue is full is disconnected and ErrSendQueueFull returned.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.shutdown()
		return ErrSendQueueFull
	}
}

// ReadFrame blocks for the next data message.
//
// Postcondition: Returns the message payload, io.EOF after a clean close, or
// an error once the peer has gone silent past the pong wait or exceeded the
// read limit.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.raw.ReadMessage()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if c.pongWait > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	return data, nil
}

// writePump owns every write to raw. It delivers queued frames, pings the
// peer each ping period, and on shutdown flushes what is left before sending
// the close frame.
func (c *Conn) writePump() {
	var tick <-chan time.Time
	if c.pingPeriod > 0 {
		ticker := time.NewTicker(c.pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		c.shutdown()
		_ = c.raw.Close()
		close(c.done)
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeDeadline()))
			if err := c.raw.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-tick:
			if err := c.raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeDeadline())); err != nil {
				return
			}
		case <-c.quit:
			c.drain()
			return
		}
	}
}

// drain writes whatever is still queued under one deadline, then says goodbye.
func (c *Conn) drain() {
	deadline := time.Now().Add(c.writeDeadline())
	_ = c.raw.SetWriteDeadline(deadline)
	for {
		select {
		case frame := <-c.send:
			if err := c.raw.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			_ = c.raw.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *Conn) writeDeadline() time.Duration {
	if c.writeTimeout > 0 {
		return c.writeTimeout
	}
	return time.Second
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// Close flushes queued frames, sends a close frame and releases the
// connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown()
	<-c.done
	return nil
}
