package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/gin-gonic/gin"
)

// PresenceView is the read side of the presence registry.
type PresenceView interface {
	IsOnline(userID int64) bool
	HandlesOf(userID int64) []string
}

// LastSeenQuery loads the stored last-seen time of a user.
type LastSeenQuery interface {
	LastSeen(ctx context.Context, userID int64) (time.Time, bool, error)
}

// PresenceHandler serves presence lookups.
type PresenceHandler struct {
	presence PresenceView
	lastSeen LastSeenQuery
}

// NewPresenceHandler creates a presence handler. lastSeen may be nil.
func NewPresenceHandler(presence PresenceView, lastSeen LastSeenQuery) *PresenceHandler {
	return &PresenceHandler{presence: presence, lastSeen: lastSeen}
}

// PresenceResponse is the body of GET /api/presence/:userId.
type PresenceResponse struct {
	UserID      int64  `json:"userId"`
	IsOnline    bool   `json:"isOnline"`
	Connections int    `json:"connections"`
	LastSeen    string `json:"lastSeen,omitempty"`
}

// Get handles GET /api/presence/:userId
func (h *PresenceHandler) Get(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	resp := PresenceResponse{
		UserID:      userID,
		IsOnline:    h.presence.IsOnline(userID),
		Connections: len(h.presence.HandlesOf(userID)),
	}

	if !resp.IsOnline && h.lastSeen != nil {
		seen, _, err := h.lastSeen.LastSeen(c.Request.Context(), userID)
		switch {
		case err != nil:
			logger.Debugf("Presence lookup: no last-seen for user %d: %v", userID, err)
		case !seen.IsZero():
			resp.LastSeen = seen.UTC().Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, resp)
}
