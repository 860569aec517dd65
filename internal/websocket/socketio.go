package websocket

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/config"
	"github.com/HassanDev-git/HK.Chat/internal/crypto"
	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/internal/metrics"
	"github.com/HassanDev-git/HK.Chat/internal/websocket/handlers"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/gin-gonic/gin"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"
)

// SocketIOPath is where browsers expect the Socket.IO endpoint.
const SocketIOPath = "/socket.io"

// connectTimeout bounds the membership lookup made while accepting a socket.
const connectTimeout = 10 * time.Second

// SocketIOServer binds the relay to a Socket.IO v4 server.
type SocketIOServer struct {
	jwtManager *crypto.JWTManager
	server     *socket.Server
	relay      *Relay
	metrics    *metrics.Metrics
}

// NewSocketIOServer creates the Socket.IO server and wires connections to
// relay.
func NewSocketIOServer(cfg *config.Config, jwtManager *crypto.JWTManager, relay *Relay, m *metrics.Metrics) *SocketIOServer {
	opts := socket.DefaultServerOptions()

	opts.SetCors(&sockettypes.Cors{
		Origin:      corsOrigin(cfg.AllowedOrigins),
		Credentials: false,
	})

	// The ping interval and timeout decide how fast an abruptly closed tab
	// goes offline.
	opts.SetPingTimeout(cfg.PingTimeout)
	opts.SetPingInterval(cfg.PingInterval)
	opts.SetPath(SocketIOPath)

	s := &SocketIOServer{
		jwtManager: jwtManager,
		server:     socket.NewServer(nil, opts),
		relay:      relay,
		metrics:    m,
	}

	s.server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.handleConnection(client)
	})
	return s
}

func corsOrigin(origins []string) any {
	if len(origins) == 0 {
		return "*"
	}
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
	}
	return origins
}

func (s *SocketIOServer) refuse(client *socket.Socket, message string) {
	s.metrics.AuthFailure()
	client.Emit(wire.EventError, wire.ErrorPayload{Message: message})
	client.Disconnect(true)
}

func (s *SocketIOServer) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	logger.Debugf("Socket.IO connection attempt (socket ID: %s)", socketID)

	authMap := client.Handshake().Auth
	if len(authMap) == 0 {
		logger.Warnf("Socket.IO missing auth data (socket %s)", socketID)
		s.refuse(client, handlers.ErrMissingToken.Error())
		return
	}

	var authPayload wire.SocketAuthPayload
	if err := wire.Decode(authMap, &authPayload); err != nil {
		logger.Warnf("Socket.IO invalid auth data (socket %s): %v", socketID, err)
		s.refuse(client, "Invalid authentication data")
		return
	}

	token, err := handlers.ValidateSocketAuthPayload(authPayload)
	if err != nil {
		logger.Warnf("Socket.IO handshake auth rejected (socket %s): %v", socketID, err)
		s.refuse(client, err.Error())
		return
	}

	// Do not log the token.
	claims, err := s.jwtManager.VerifyToken(token)
	if err != nil {
		logger.Warnf("Socket.IO invalid token (socket %s): %v", socketID, err)
		s.refuse(client, "Invalid token")
		return
	}
	userID := claims.UserID

	// The disconnect listener goes in first so a socket that drops while the
	// memberships load is still torn down.
	var gone atomic.Bool
	client.On("disconnect", func(data ...any) {
		reason := ""
		if len(data) > 0 {
			if r, ok := data[0].(string); ok {
				reason = r
			}
		}
		gone.Store(true)
		logger.Debugf("Socket.IO disconnect (user %d, socket %s, reason: %s)", userID, socketID, reason)
		s.relay.Close(socketID)
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := s.relay.Open(ctx, newSocketConn(client), userID); err != nil {
		logger.Errorf("Socket.IO setup failed (user %d, socket %s): %v", userID, socketID, err)
		client.Emit(wire.EventError, wire.ErrorPayload{Message: "Failed to load chats"})
		client.Disconnect(true)
		return
	}
	if gone.Load() {
		s.relay.Close(socketID)
		return
	}

	for _, event := range s.relay.Events() {
		client.On(event, func(data ...any) {
			raw, _ := getFirstAnyWithAck(data)
			s.relay.Dispatch(socketID, event, raw)
		})
	}
}

// HandleSocketIO creates a Gin handler for Socket.IO.
func (s *SocketIOServer) HandleSocketIO() gin.HandlerFunc {
	httpHandler := s.server.ServeHandler(nil)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}
		logger.Tracef("Socket.IO request: %s %s", c.Request.Method, c.Request.URL.Path)
		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the Socket.IO server.
func (s *SocketIOServer) Close() error {
	s.server.Close(nil)
	s.relay.Shutdown()
	return nil
}
