package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/stretchr/testify/require"
)

func membershipDeps(members map[int64][]int64) Deps {
	_, tr, reg := newTestDeps()
	return NewDeps(testUsers, fakeChatQueries{
		chatIDs: func(ctx context.Context, userID int64) ([]int64, error) {
			return members[userID], nil
		},
		isMember: func(ctx context.Context, chatID, userID int64) (bool, error) {
			for _, id := range members[userID] {
				if id == chatID {
					return true, nil
				}
			}
			return false, nil
		},
	}, nil, tr, reg, nil)
}

func TestConnect_JoinsEveryMembership(t *testing.T) {
	deps := membershipDeps(map[int64][]int64{1: {10, 20, 30}})

	res, err := Connect(context.Background(), deps, NewAuthContext(1, "h1"))
	require.NoError(t, err)
	require.Empty(t, res.Emissions())
	require.Len(t, res.Rooms(), 3)
	for i, want := range []int64{10, 20, 30} {
		require.True(t, res.Rooms()[i].IsJoinSelf())
		require.Equal(t, want, res.Rooms()[i].ChatID())
	}
}

func TestConnect_StoreErrorRefuses(t *testing.T) {
	_, tr, reg := newTestDeps()
	deps := NewDeps(testUsers, fakeChatQueries{
		chatIDs: func(ctx context.Context, userID int64) ([]int64, error) {
			return nil, errors.New("db gone")
		},
	}, nil, tr, reg, nil)

	_, err := Connect(context.Background(), deps, NewAuthContext(1, "h1"))
	require.Error(t, err)
}

func TestChatJoin_RequiresMembership(t *testing.T) {
	deps := membershipDeps(map[int64][]int64{1: {10}})

	res := ChatJoin(context.Background(), deps, NewAuthContext(1, "h1"), wire.ChatRef{ChatID: 10})
	require.Len(t, res.Rooms(), 1)
	require.True(t, res.Rooms()[0].IsJoinSelf())

	res = ChatJoin(context.Background(), deps, NewAuthContext(1, "h1"), wire.ChatRef{ChatID: 11})
	require.True(t, res.IsEmpty())
}

func TestChatCreated_DeliversToEveryMember(t *testing.T) {
	deps, _, _ := newTestDeps()
	var req wire.ChatCreatedRequest
	require.NoError(t, wire.Decode(map[string]any{
		"chat": map[string]any{
			"id":   40,
			"type": "group",
			"members": []any{
				map[string]any{"id": 1, "display_name": "Alice"},
				map[string]any{"id": 2},
				map[string]any{"id": 2},
				3,
			},
		},
	}, &req))

	res := ChatCreated(context.Background(), deps, NewAuthContext(1, "h1"), req)

	require.Len(t, res.Rooms(), 3)
	require.Len(t, res.Emissions(), 3)
	for i, uid := range []int64{1, 2, 3} {
		require.True(t, res.Rooms()[i].IsAddUser())
		require.Equal(t, uid, res.Rooms()[i].UserID())
		require.Equal(t, int64(40), res.Rooms()[i].ChatID())

		e := res.Emissions()[i]
		require.True(t, e.IsUser())
		require.False(t, e.SkipSelf())
		require.Equal(t, uid, e.UserID())
		require.Equal(t, wire.EventChatNew, e.Event())
	}
}

func TestChatCreated_NoChat(t *testing.T) {
	deps, _, _ := newTestDeps()
	res := ChatCreated(context.Background(), deps, NewAuthContext(1, "h1"), wire.ChatCreatedRequest{})
	require.True(t, res.IsEmpty())
}
