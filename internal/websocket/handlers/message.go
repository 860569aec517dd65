package handlers

import (
	"context"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// MessageSend relays a freshly persisted message to the rest of the chat room
// as message:receive.
func MessageSend(ctx context.Context, deps Deps, auth AuthContext, req wire.MessagePayload) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}
	return emits(toRoom(req.ChatID, wire.EventMessageReceive, wire.MessagePayload{
		ChatID:  req.ChatID,
		Message: req.Message,
	}))
}

// MessageDelivered records a delivery receipt and relays it when the message
// exists.
func MessageDelivered(ctx context.Context, deps Deps, auth AuthContext, req wire.MessageDeliveredRequest) EventResult {
	if req.ChatID <= 0 || req.MessageID <= 0 {
		return EventResult{}
	}

	found, err := deps.Messages().MarkDelivered(ctx, req.MessageID, auth.UserID())
	if err != nil {
		logger.Warnf("Failed to record delivery of message %d: %v", req.MessageID, err)
		return EventResult{}
	}
	if !found {
		return EventResult{}
	}

	return emits(toRoom(req.ChatID, wire.EventMessageDelivered, wire.MessageDeliveredPayload{
		MessageID: req.MessageID,
		ChatID:    req.ChatID,
		UserID:    auth.UserID(),
	}))
}

// MessageRead marks the chat read for the caller and relays the read receipt.
// The receipt is relayed even if persisting it fails.
func MessageRead(ctx context.Context, deps Deps, auth AuthContext, req wire.ChatRef) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}
	if err := deps.Messages().MarkChatRead(ctx, req.ChatID, auth.UserID()); err != nil {
		logger.Warnf("Failed to mark chat %d read for user %d: %v", req.ChatID, auth.UserID(), err)
	}
	return emits(toRoom(req.ChatID, wire.EventMessageRead, wire.MessageReadPayload{
		ChatID: req.ChatID,
		UserID: auth.UserID(),
	}))
}

// MessageDelete relays a deletion to the chat room.
func MessageDelete(ctx context.Context, deps Deps, auth AuthContext, req wire.MessageDeletePayload) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}
	return emits(toRoom(req.ChatID, wire.EventMessageDeleted, req))
}

// MessageEdit relays an edit to the chat room.
func MessageEdit(ctx context.Context, deps Deps, auth AuthContext, req wire.MessageEditPayload) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}
	return emits(toRoom(req.ChatID, wire.EventMessageEdited, req))
}
