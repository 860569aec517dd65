package handlers

import (
	"context"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/calls"
	"github.com/HassanDev-git/HK.Chat/internal/store"
	"github.com/HassanDev-git/HK.Chat/internal/typing"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

type fakeUserQueries struct {
	users map[int64]wire.UserSummary
	err   error
}

func (f fakeUserQueries) UserSummary(ctx context.Context, userID int64) (wire.UserSummary, error) {
	if f.err != nil {
		return wire.UserSummary{}, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return wire.UserSummary{}, store.ErrNotFound
	}
	return u, nil
}

func (f fakeUserQueries) DisplayName(ctx context.Context, userID int64) (string, error) {
	u, err := f.UserSummary(ctx, userID)
	return u.DisplayName, err
}

type fakeChatQueries struct {
	chatIDs  func(ctx context.Context, userID int64) ([]int64, error)
	isMember func(ctx context.Context, chatID, userID int64) (bool, error)
}

func (f fakeChatQueries) ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return f.chatIDs(ctx, userID)
}

func (f fakeChatQueries) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	return f.isMember(ctx, chatID, userID)
}

type fakeMessageQueries struct {
	markDelivered func(ctx context.Context, messageID, userID int64) (bool, error)
	markChatRead  func(ctx context.Context, chatID, userID int64) error
}

func (f fakeMessageQueries) MarkDelivered(ctx context.Context, messageID, userID int64) (bool, error) {
	return f.markDelivered(ctx, messageID, userID)
}

func (f fakeMessageQueries) MarkChatRead(ctx context.Context, chatID, userID int64) error {
	return f.markChatRead(ctx, chatID, userID)
}

var (
	alicePic  = "alice.png"
	testUsers = fakeUserQueries{users: map[int64]wire.UserSummary{
		1: {ID: 1, DisplayName: "Alice", ProfilePic: &alicePic},
		2: {ID: 2, DisplayName: "Bob"},
		3: {ID: 3, DisplayName: "Carol"},
	}}
)

// neverFires is a typing scheduler whose timers never run.
func neverFires(time.Duration, func()) func() bool { return func() bool { return true } }

func newTestDeps() (Deps, *typing.Tracker, *calls.Registry) {
	tr := typing.NewTracker(typing.WithScheduler(neverFires))
	reg := calls.NewRegistry(calls.WithIDGenerator(func() string { return "c1" }))
	deps := NewDeps(testUsers, nil, nil, tr, reg, func() time.Time { return time.UnixMilli(1000) })
	return deps, tr, reg
}
