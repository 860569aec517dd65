package handlers

import (
	"errors"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// ErrMissingToken is returned when the handshake carries no token.
var ErrMissingToken = errors.New("Authentication required")

// AuthContext carries authenticated socket identity information into handler
// functions. It intentionally excludes transport-specific types.
type AuthContext struct {
	userID   int64
	socketID string
}

// NewAuthContext constructs an AuthContext for a single socket event.
func NewAuthContext(userID int64, socketID string) AuthContext {
	return AuthContext{userID: userID, socketID: socketID}
}

// UserID returns the authenticated user id.
func (a AuthContext) UserID() int64 { return a.userID }

// SocketID returns the caller socket id.
func (a AuthContext) SocketID() string { return a.socketID }

// ValidateSocketAuthPayload checks the handshake auth object and returns the
// bearer token.
func ValidateSocketAuthPayload(auth wire.SocketAuthPayload) (string, error) {
	if auth.Token == "" {
		return "", ErrMissingToken
	}
	return auth.Token, nil
}
