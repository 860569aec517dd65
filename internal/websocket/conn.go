package websocket

import (
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

// Conn is one live connection handle as seen by the relay.
type Conn interface {
	// ID is the transport-assigned handle id, unique per connection.
	ID() string
	// Emit sends one event to this handle only.
	Emit(event string, payload any)
}

// socketConn adapts a Socket.IO socket to Conn.
type socketConn struct {
	client *socket.Socket
}

func newSocketConn(client *socket.Socket) *socketConn {
	return &socketConn{client: client}
}

func (c *socketConn) ID() string { return string(c.client.Id()) }

func (c *socketConn) Emit(event string, payload any) {
	c.client.Emit(event, payload)
}
