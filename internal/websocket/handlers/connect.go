package handlers

import (
	"context"
	"fmt"
)

// Connect loads the caller's chat memberships and returns the room joins that
// must be applied before any event from the connection is handled. An error
// means the connection cannot be made usable and must be refused.
func Connect(ctx context.Context, deps Deps, auth AuthContext) (EventResult, error) {
	chatIDs, err := deps.Chats().ChatIDsForUser(ctx, auth.UserID())
	if err != nil {
		return EventResult{}, fmt.Errorf("load chat memberships for user %d: %w", auth.UserID(), err)
	}

	rooms := make([]RoomCommand, 0, len(chatIDs))
	for _, id := range chatIDs {
		rooms = append(rooms, joinSelf(id))
	}
	return NewEventResult(rooms, nil), nil
}
