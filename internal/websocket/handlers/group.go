package handlers

import (
	"context"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// GroupMemberAdded joins every handle of the added user to the group room,
// then relays the event to the room (the new member included).
func GroupMemberAdded(ctx context.Context, deps Deps, auth AuthContext, req wire.GroupEventPayload) EventResult {
	chatID, userID := req.ChatID(), req.UserID()
	if chatID <= 0 {
		return EventResult{}
	}
	var rooms []RoomCommand
	if userID > 0 {
		rooms = append(rooms, addUser(userID, chatID))
	}
	return NewEventResult(rooms, []Emission{toRoom(chatID, wire.EventGroupMemberAdded, req)})
}

// GroupMemberRemoved removes every handle of the user from the group room and
// relays the event to the remaining members and to the removed user.
func GroupMemberRemoved(ctx context.Context, deps Deps, auth AuthContext, req wire.GroupEventPayload) EventResult {
	chatID, userID := req.ChatID(), req.UserID()
	if chatID <= 0 {
		return EventResult{}
	}
	if userID <= 0 {
		return emits(toRoom(chatID, wire.EventGroupMemberRemoved, req))
	}
	out := []Emission{toRoom(chatID, wire.EventGroupMemberRemoved, req)}
	if userID != auth.UserID() {
		out = append(out, toUser(userID, wire.EventGroupMemberRemoved, req))
	}
	return NewEventResult([]RoomCommand{removeUser(userID, chatID)}, out)
}

// GroupUpdated relays group metadata changes to the room.
func GroupUpdated(ctx context.Context, deps Deps, auth AuthContext, req wire.GroupEventPayload) EventResult {
	chatID := req.ChatID()
	if chatID <= 0 {
		return EventResult{}
	}
	return emits(toRoom(chatID, wire.EventGroupUpdated, req))
}
