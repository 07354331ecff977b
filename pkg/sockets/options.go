package sockets

import "time"

// Option configures a Conn.
type Option func(*Conn)

// WithPingInterval sends the ping message every d while connected.
func WithPingInterval(d time.Duration) Option {
	return func(c *Conn) {
		c.pingInterval = d
	}
}

// WithPingMsg sets the text message sent on every ping tick. Any message
// sent to the hub also asks it for a fresh snapshot.
func WithPingMsg(msg []byte) Option {
	return func(c *Conn) {
		c.pingMsg = msg
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.handshakeTimeout = d
	}
}

func InsecureSkipVerify() Option {
	return func(c *Conn) {
		c.sslSkipVerify = true
	}
}

// OnMessage is called for every inbound message, in order, from the read loop.
func OnMessage(f func([]byte, Connection)) Option {
	return func(c *Conn) {
		c.onMessage = f
	}
}

// OnError is called when the connection fails outside of Close.
func OnError(f func(error)) Option {
	return func(c *Conn) {
		c.onError = f
	}
}

func OnConnected(f func(Connection)) Option {
	return func(c *Conn) {
		c.onConnected = f
	}
}
