package handlers

import (
	"context"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// TypingStart records the caller as the chat's typer and relays typing:start
// with their display name.
func TypingStart(ctx context.Context, deps Deps, auth AuthContext, req wire.ChatRef) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}

	name, err := deps.Users().DisplayName(ctx, auth.UserID())
	if err != nil {
		logger.Debugf("Typing: no display name for user %d: %v", auth.UserID(), err)
	}
	deps.Typing().Start(req.ChatID, auth.UserID(), name, auth.SocketID())

	return emits(toRoom(req.ChatID, wire.EventTypingStart, wire.TypingPayload{
		ChatID:   req.ChatID,
		UserID:   auth.UserID(),
		UserName: name,
	}))
}

// TypingStop clears the caller's marker, if it is still theirs, and relays
// typing:stop either way.
func TypingStop(ctx context.Context, deps Deps, auth AuthContext, req wire.ChatRef) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}
	deps.Typing().Stop(req.ChatID, auth.UserID())
	return emits(toRoom(req.ChatID, wire.EventTypingStop, wire.TypingPayload{
		ChatID: req.ChatID,
		UserID: auth.UserID(),
	}))
}

// TypingExpired builds the relay for a marker that timed out. The result must
// be applied with the marker's handle as the sender so that handle is skipped.
func TypingExpired(chatID, userID int64) EventResult {
	return emits(toRoom(chatID, wire.EventTypingStop, wire.TypingPayload{
		ChatID: chatID,
		UserID: userID,
	}))
}
