package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	db          Pinger
	connections func() int
	now         func() time.Time
}

// NewHealthHandler creates a health handler. connections may be nil.
func NewHealthHandler(db Pinger, connections func() int) *HealthHandler {
	return &HealthHandler{db: db, connections: connections, now: time.Now}
}

// HealthResponse is the health probe body.
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Connections int    `json:"connections"`
	Error       string `json:"error,omitempty"`
}

// Get handles GET /api/health
func (h *HealthHandler) Get(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	if h.connections != nil {
		resp.Connections = h.connections()
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "error"
			resp.Error = "database unavailable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}
