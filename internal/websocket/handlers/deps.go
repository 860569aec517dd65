package handlers

import (
	"context"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/calls"
	"github.com/HassanDev-git/HK.Chat/internal/typing"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// UserQueries is the subset of user queries used by websocket handlers.
type UserQueries interface {
	UserSummary(ctx context.Context, userID int64) (wire.UserSummary, error)
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// ChatQueries is the subset of chat membership queries used by websocket
// handlers.
type ChatQueries interface {
	ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}

// MessageQueries is the subset of receipt queries used by websocket handlers.
type MessageQueries interface {
	MarkDelivered(ctx context.Context, messageID, userID int64) (bool, error)
	MarkChatRead(ctx context.Context, chatID, userID int64) error
}

// TypingState is the typing tracker as seen by handlers.
type TypingState interface {
	Start(chatID, userID int64, userName, connID string) typing.Marker
	Stop(chatID, userID int64) bool
	ClearConn(connID string) []int64
}

// CallState is the relay call registry as seen by handlers.
type CallState interface {
	Begin(callerID, calleeID int64, callType wire.CallType) (calls.Call, error)
	Accept(calleeID, callerID int64) (calls.Call, bool)
	Finish(a, b int64) (calls.Call, bool)
	Drop(userID int64) (calls.Call, bool)
}

// Deps holds the narrow dependencies required by websocket handlers.
type Deps struct {
	users    UserQueries
	chats    ChatQueries
	messages MessageQueries
	typing   TypingState
	calls    CallState
	now      func() time.Time
}

// NewDeps builds a dependency bundle for handler calls.
func NewDeps(
	users UserQueries,
	chats ChatQueries,
	messages MessageQueries,
	typing TypingState,
	calls CallState,
	now func() time.Time,
) Deps {
	return Deps{
		users:    users,
		chats:    chats,
		messages: messages,
		typing:   typing,
		calls:    calls,
		now:      now,
	}
}

func (d Deps) Users() UserQueries       { return d.users }
func (d Deps) Chats() ChatQueries       { return d.chats }
func (d Deps) Messages() MessageQueries { return d.messages }
func (d Deps) Typing() TypingState      { return d.typing }
func (d Deps) Calls() CallState         { return d.calls }
func (d Deps) Now() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}
