// Package realtime is the Go client transport for the chat relay: a thin
// Socket.IO client that authenticates with a bearer token and delivers server
// events to registered handlers in arrival order.
package realtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// Path is the Socket.IO endpoint path served by the relay.
const Path = "/socket.io"

// ErrNotConnected is returned by Emit before Connect or after Close.
var ErrNotConnected = errors.New("not connected")

// Handler receives the first argument of a server event.
type Handler func(payload any)

// Client is a Socket.IO connection to the relay.
type Client struct {
	serverURL string
	token     string

	mu        sync.RWMutex
	socket    *socket.Socket
	handlers  map[string][]Handler
	bound     map[string]bool
	connected bool
	lastError error
	closeOnce sync.Once
}

// NewClient creates a client for serverURL (scheme and host only; the path is
// fixed) authenticating with token.
func NewClient(serverURL, token string) *Client {
	return &Client{
		serverURL: serverURL,
		token:     token,
		handlers:  make(map[string][]Handler),
		bound:     make(map[string]bool),
	}
}

// On registers a handler for a server event. Handlers run on the transport's
// callback goroutine, one event at a time, so they should return quickly.
func (c *Client) On(event string, handler Handler) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	sock := c.socket
	bind := sock != nil && !c.bound[event]
	if bind {
		c.bound[event] = true
	}
	c.mu.Unlock()

	if bind {
		c.bind(sock, event)
	}
}

// Registrar is anything handlers can be registered on; *Client is one.
type Registrar interface {
	On(event string, handler Handler)
}

// OnEvent registers a handler that receives the event payload decoded into T.
// Payloads that do not decode are logged and skipped.
func OnEvent[T any](r Registrar, event string, handler func(T)) {
	r.On(event, func(payload any) {
		var v T
		if err := wire.Decode(payload, &v); err != nil {
			logger.Warnf("realtime: bad %s payload: %v", event, err)
			return
		}
		handler(v)
	})
}

// Connect opens the connection. It returns once the attempt has started;
// use WaitForConnect to block until the handshake is accepted.
func (c *Client) Connect() error {
	logger.Debugf("Connecting to Socket.IO: %s (path: %s)", c.serverURL, Path)

	opts := socket.DefaultOptions()
	opts.SetPath(Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]any{
		"token": c.token,
	})

	sock, err := socket.Connect(c.serverURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	sock.On(types.EventName("connect"), func(args ...any) {
		c.mu.Lock()
		c.connected = true
		c.lastError = nil
		c.mu.Unlock()
		logger.Debugf("Socket.IO connected: %s", sock.Id())
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		logger.Debugf("Socket.IO disconnected: %s", firstString(args))
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) == 0 {
			return
		}
		c.mu.Lock()
		c.lastError = fmt.Errorf("connect error: %v", args[0])
		c.mu.Unlock()
		logger.Warnf("Socket.IO connection error: %v", args[0])
	})

	c.mu.Lock()
	c.socket = sock
	var events []string
	for event := range c.handlers {
		if !c.bound[event] {
			c.bound[event] = true
			events = append(events, event)
		}
	}
	c.mu.Unlock()

	for _, event := range events {
		c.bind(sock, event)
	}
	return nil
}

func (c *Client) bind(sock *socket.Socket, event string) {
	sock.On(types.EventName(event), func(args ...any) {
		var payload any
		if len(args) > 0 {
			payload = args[0]
		}
		c.dispatch(event, payload)
	})
}

func (c *Client) dispatch(event string, payload any) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[event]...)
	c.mu.RUnlock()

	logger.Tracef("Received event: %s", event)
	for _, h := range handlers {
		h(payload)
	}
}

// WaitForConnect waits for the socket to report connected or times out.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

// LastError returns the most recent connect error, cleared on connect.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Emit sends an event to the relay.
func (c *Client) Emit(event string, payload any) error {
	c.mu.RLock()
	sock := c.socket
	c.mu.RUnlock()

	if sock == nil {
		return ErrNotConnected
	}

	logger.Tracef("Sending event: %s", event)
	sock.Emit(event, payload)
	return nil
}

// Close disconnects. Handlers stay registered but are never called again.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sock := c.socket
		c.socket = nil
		c.connected = false
		c.mu.Unlock()

		if sock != nil {
			sock.Disconnect()
		}
	})
	return nil
}

// IsConnected returns whether the handshake has been accepted and the
// connection is still up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	sock := c.socket
	connected := c.connected
	c.mu.RUnlock()

	if connected {
		return true
	}
	return sock != nil && sock.Connected()
}

func firstString(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}
