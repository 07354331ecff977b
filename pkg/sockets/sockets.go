package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

type Connection interface {
	Dial(ctx context.Context, url, subprotocol string) error
	Send(msg Msg) error
	Done() <-chan struct{}
	io.Closer
}

const defaultHandshakeTimeout = 15 * time.Second

type Conn struct {
	ws               *websocket.Conn
	mu               sync.Mutex
	sslSkipVerify    bool
	closed           bool
	done             chan struct{}
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	pingMsg          []byte
	onError          func(err error)
	onMessage        func([]byte, Connection)
	onConnected      func(Connection)
}

func New(opts ...Option) Connection {
	c := &Conn{handshakeTimeout: defaultHandshakeTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Msg is the message structure.
type Msg struct {
	Body []byte
}

// Closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Conn) close() error {
	if c.closed || c.ws == nil {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *Conn) Send(msg Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Body); err != nil {
		_ = c.close()
		if c.onError != nil {
			c.onError(err)
		}
		return err
	}
	return nil
}

// Done is closed when the read loop of the current connection ends.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}

func (c *Conn) Dial(ctx context.Context, url, subProtocol string) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	if subProtocol != "" {
		dialer.Subprotocols = []string{subProtocol}
	}
	conn, res, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if res != nil {
			return fmt.Errorf("dial %s (HTTP %d): %w", url, res.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.ws = conn
	c.closed = false
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	if c.onConnected != nil {
		go c.onConnected(c)
	}
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				closed := c.closed
				c.mu.Unlock()
				if !closed && c.onError != nil {
					c.onError(err)
				}
				return
			}
			c.onMsg(msg)
		}
	}()
	c.setupPing(done)
	return nil
}

func (c *Conn) onMsg(msg []byte) {
	// Fire OnMessage every time, in order.
	if c.onMessage != nil {
		c.onMessage(msg, c)
	}
}

func (c *Conn) setupPing(done <-chan struct{}) {
	if c.pingInterval > 0 && len(c.pingMsg) > 0 {
		ticker := time.NewTicker(c.pingInterval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
				case <-done:
					return
				}
				if c.Send(Msg{Body: c.pingMsg}) != nil {
					return
				}
			}
		}()
	}
}
