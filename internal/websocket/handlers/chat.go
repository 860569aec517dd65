package handlers

import (
	"context"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// ChatJoin joins the caller's handle to a chat room it is a member of.
func ChatJoin(ctx context.Context, deps Deps, auth AuthContext, req wire.ChatRef) EventResult {
	if req.ChatID <= 0 {
		return EventResult{}
	}
	ok, err := deps.Chats().IsMember(ctx, req.ChatID, auth.UserID())
	if err != nil {
		logger.Warnf("chat:join membership check failed (chat %d, user %d): %v", req.ChatID, auth.UserID(), err)
		return EventResult{}
	}
	if !ok {
		logger.Warnf("chat:join refused: user %d is not a member of chat %d", auth.UserID(), req.ChatID)
		return EventResult{}
	}
	return NewEventResult([]RoomCommand{joinSelf(req.ChatID)}, nil)
}

// ChatCreated joins every listed member's handles to the new chat room and
// delivers chat:new to each of them.
func ChatCreated(ctx context.Context, deps Deps, auth AuthContext, req wire.ChatCreatedRequest) EventResult {
	if req.Chat == nil {
		return EventResult{}
	}
	chatID := wire.Int64Field(req.Chat, "id")

	var (
		rooms []RoomCommand
		out   []Emission
		seen  = make(map[int64]struct{})
	)
	for _, memberID := range chatMembers(req.Chat) {
		if _, dup := seen[memberID]; dup {
			continue
		}
		seen[memberID] = struct{}{}
		if chatID > 0 {
			rooms = append(rooms, addUser(memberID, chatID))
		}
		out = append(out, toUser(memberID, wire.EventChatNew, wire.ChatNewPayload{Chat: req.Chat}))
	}
	return NewEventResult(rooms, out)
}

func chatMembers(chat map[string]any) []int64 {
	list, ok := chat["members"].([]any)
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(list))
	for _, item := range list {
		// Members are user objects; bare ids are accepted too.
		m, ok := item.(map[string]any)
		if !ok {
			m = map[string]any{"id": item}
		}
		if id := wire.Int64Field(m, "id"); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
