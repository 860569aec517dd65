package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/store"
	"github.com/HassanDev-git/HK.Chat/internal/websocket/handlers"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/stretchr/testify/require"
)

type sent struct {
	event   string
	payload any
}

type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []sent
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{event: event, payload: payload})
}

func (c *fakeConn) events(event string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, s := range c.sent {
		if s.event == event {
			out = append(out, s.payload)
		}
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	members map[int64][]int64
	names   map[int64]string
	failFor map[int64]bool
}

func (f *fakeStore) ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] {
		return nil, errors.New("database is locked")
	}
	return append([]int64(nil), f.members[userID]...), nil
}

func (f *fakeStore) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	ids, _ := f.ChatIDsForUser(ctx, userID)
	for _, id := range ids {
		if id == chatID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UserSummary(ctx context.Context, userID int64) (wire.UserSummary, error) {
	name, ok := f.names[userID]
	if !ok {
		return wire.UserSummary{}, store.ErrNotFound
	}
	return wire.UserSummary{ID: userID, DisplayName: name}, nil
}

func (f *fakeStore) DisplayName(ctx context.Context, userID int64) (string, error) {
	u, err := f.UserSummary(ctx, userID)
	return u.DisplayName, err
}

func (f *fakeStore) MarkDelivered(ctx context.Context, messageID, userID int64) (bool, error) {
	return true, nil
}

func (f *fakeStore) MarkChatRead(ctx context.Context, chatID, userID int64) error {
	return nil
}

// manualTimers is a typing scheduler fired by the test.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualTimers) after(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, f)
	return func() bool { return true }
}

func (m *manualTimers) fireLast() {
	m.mu.Lock()
	f := m.fns[len(m.fns)-1]
	m.mu.Unlock()
	f()
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

func newTestRelay(t *testing.T, st *fakeStore, timers *manualTimers) *Relay {
	t.Helper()
	opts := RelayOptions{
		Users:     st,
		Chats:     st,
		Messages:  st,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewCallID: func() string { return "call-1" },
	}
	if timers != nil {
		opts.TypingScheduler = timers.after
	}
	return NewRelay(opts)
}

func defaultStore() *fakeStore {
	return &fakeStore{
		members: map[int64][]int64{1: {10, 20}, 2: {10}, 3: {30}},
		names:   map[int64]string{1: "Alice", 2: "Bob", 3: "Carol"},
	}
}

func open(t *testing.T, r *Relay, userID int64, id string) *fakeConn {
	t.Helper()
	c := newFakeConn(id)
	require.NoError(t, r.Open(context.Background(), c, userID))
	return c
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_OpenJoinsRoomsAndAnnouncesPresence(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)

	alice := open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")

	require.Equal(t, []string{"a1", "b1"}, r.Rooms().Members(10))
	require.Equal(t, []string{"a1"}, r.Rooms().Members(20))
	require.Equal(t, []any{wire.PresencePayload{UserID: 2, IsOnline: true}}, alice.events(wire.EventUserOnline))
	require.Empty(t, bob.events(wire.EventUserOnline))

	// A second tab does not re-announce.
	open(t, r, 2, "b2")
	require.Len(t, alice.events(wire.EventUserOnline), 1)
	require.Equal(t, 3, r.Hub().Count())
}

func TestRelay_CloseRacingOpenLeavesUserOffline(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	bob := open(t, r, 2, "b1")

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("a%d", i)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Close(id)
		}()
		require.NoError(t, r.Open(context.Background(), newFakeConn(id), 1))
		wg.Wait()
		// The connection callback closes again when the socket dropped
		// during Open.
		r.Close(id)

		eventually(t, func() bool { return r.Hub().Count() == 1 })
		require.False(t, r.Presence().IsOnline(1), "handle %s", id)
		require.Empty(t, r.Rooms().RoomsOf(id))
	}
	require.Equal(t, []string{"b1"}, r.Rooms().Members(10))

	online := 0
	for _, p := range bob.events(wire.EventUserOnline) {
		if p.(wire.PresencePayload).IsOnline {
			online++
		} else {
			online--
		}
	}
	require.Zero(t, online)
}

func TestRelay_OpenRejectsDuplicateHandle(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	open(t, r, 1, "a1")

	err := r.Open(context.Background(), newFakeConn("a1"), 1)
	require.ErrorIs(t, err, ErrDuplicateHandle)
	require.Equal(t, 1, r.Hub().Count())
	require.True(t, r.Presence().IsOnline(1))
}

func TestRelay_ToUserFollowsPresence(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	alice := open(t, r, 1, "a1")
	alice2 := open(t, r, 1, "a2")

	r.Close("a2")
	eventually(t, func() bool { return r.Hub().Count() == 1 })

	require.Equal(t, 1, r.ToUser(1, "mine", nil))
	require.Len(t, alice.events("mine"), 1)
	require.Empty(t, alice2.events("mine"))
}

func TestRelay_OpenFailsWhenMembershipsCannotLoad(t *testing.T) {
	st := defaultStore()
	st.failFor = map[int64]bool{1: true}
	r := newTestRelay(t, st, nil)

	err := r.Open(context.Background(), newFakeConn("a1"), 1)
	require.Error(t, err)
	require.Zero(t, r.Hub().Count())
	require.False(t, r.Presence().IsOnline(1))
}

func TestRelay_MessageReachesRoomOnly(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	alice := open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")
	carol := open(t, r, 3, "c1")

	r.Dispatch("a1", wire.EventMessageSend, map[string]any{
		"chatId":  10,
		"message": map[string]any{"id": 7, "content": "hello"},
	})

	eventually(t, func() bool { return len(bob.events(wire.EventMessageReceive)) == 1 })
	require.Equal(t, wire.MessagePayload{
		ChatID:  10,
		Message: map[string]any{"id": float64(7), "content": "hello"},
	}, bob.events(wire.EventMessageReceive)[0])
	require.Empty(t, alice.events(wire.EventMessageReceive))
	require.Empty(t, carol.events(wire.EventMessageReceive))
}

func TestRelay_EventsFromOneHandleStayOrdered(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")

	const n = 100
	for i := 0; i < n; i++ {
		r.Dispatch("a1", wire.EventMessageSend, map[string]any{
			"chatId":  10,
			"message": map[string]any{"seq": i},
		})
	}

	eventually(t, func() bool { return len(bob.events(wire.EventMessageReceive)) == n })
	for i, p := range bob.events(wire.EventMessageReceive) {
		msg := p.(wire.MessagePayload).Message.(map[string]any)
		require.Equal(t, float64(i), msg["seq"])
	}
}

func TestRelay_LastHandleCloseGoesOffline(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	open(t, r, 1, "a1")
	open(t, r, 1, "a2")
	bob := open(t, r, 2, "b1")

	r.Close("a1")
	eventually(t, func() bool { return r.Hub().Count() == 2 })
	require.True(t, r.Presence().IsOnline(1))
	require.Empty(t, bob.events(wire.EventUserOnline))
	require.Equal(t, []string{"a2", "b1"}, r.Rooms().Members(10))

	r.Close("a2")
	eventually(t, func() bool { return len(bob.events(wire.EventUserOnline)) == 1 })
	require.Equal(t, wire.PresencePayload{
		UserID:   1,
		IsOnline: false,
		LastSeen: "2026-03-01T12:00:00.000Z",
	}, bob.events(wire.EventUserOnline)[0])
	require.False(t, r.Presence().IsOnline(1))
	require.Equal(t, []string{"b1"}, r.Rooms().Members(10))

	// Closing twice is harmless.
	r.Close("a2")
}

func TestRelay_TypingExpiresToRoom(t *testing.T) {
	timers := &manualTimers{}
	r := newTestRelay(t, defaultStore(), timers)
	alice := open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")

	r.Dispatch("a1", wire.EventTypingStart, map[string]any{"chatId": 10})
	eventually(t, func() bool { return len(bob.events(wire.EventTypingStart)) == 1 })
	require.Equal(t, wire.TypingPayload{ChatID: 10, UserID: 1, UserName: "Alice"}, bob.events(wire.EventTypingStart)[0])
	require.Equal(t, 1, timers.count())

	timers.fireLast()

	eventually(t, func() bool { return len(bob.events(wire.EventTypingStop)) == 1 })
	require.Equal(t, []any{wire.TypingPayload{ChatID: 10, UserID: 1}}, bob.events(wire.EventTypingStop))
	require.Empty(t, alice.events(wire.EventTypingStop))
}

func TestRelay_TypingExpiryRunsInlineForClosedHandle(t *testing.T) {
	timers := &manualTimers{}
	r := newTestRelay(t, defaultStore(), timers)
	open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")
	r.Close("a1")
	eventually(t, func() bool { return r.Hub().Count() == 1 })

	ran := false
	r.onHandleQueue("a1", func() { ran = true })
	require.True(t, ran)
	require.Empty(t, bob.events(wire.EventTypingStop))
}

func TestRelay_DisconnectClearsTyping(t *testing.T) {
	r := newTestRelay(t, defaultStore(), &manualTimers{})
	open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")

	r.Dispatch("a1", wire.EventTypingStart, map[string]any{"chatId": 10})
	eventually(t, func() bool { return len(bob.events(wire.EventTypingStart)) == 1 })

	r.Close("a1")
	eventually(t, func() bool { return len(bob.events(wire.EventTypingStop)) == 1 })
}

func TestRelay_CallEndsWhenCallerVanishes(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")

	r.Dispatch("a1", wire.EventCallInitiate, map[string]any{
		"targetUserId": 2,
		"callType":     "video",
		"offer":        map[string]any{"type": "offer", "sdp": "v=0"},
	})
	eventually(t, func() bool { return len(bob.events(wire.EventCallIncoming)) == 1 })
	incoming := bob.events(wire.EventCallIncoming)[0].(wire.CallIncomingPayload)
	require.Equal(t, "Alice", incoming.Caller.DisplayName)
	require.Equal(t, wire.CallTypeVideo, incoming.CallType)

	r.Close("a1")
	eventually(t, func() bool { return len(bob.events(wire.EventCallEnded)) == 1 })
	require.Equal(t, wire.CallPeerPayload{UserID: 1}, bob.events(wire.EventCallEnded)[0])

	ringing, active := r.Calls().Count()
	require.Zero(t, ringing)
	require.Zero(t, active)
}

func TestRelay_ChatCreatedJoinsLiveHandles(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	alice := open(t, r, 1, "a1")
	carol := open(t, r, 3, "c1")

	r.Dispatch("a1", wire.EventChatCreated, map[string]any{
		"chat": map[string]any{
			"id":      40,
			"members": []any{map[string]any{"id": 1}, map[string]any{"id": 3}},
		},
	})
	eventually(t, func() bool { return len(carol.events(wire.EventChatNew)) == 1 })
	require.Len(t, alice.events(wire.EventChatNew), 1)
	require.Equal(t, []string{"a1", "c1"}, r.Rooms().Members(40))

	r.Dispatch("a1", wire.EventMessageSend, map[string]any{"chatId": 40, "message": "hi"})
	eventually(t, func() bool { return len(carol.events(wire.EventMessageReceive)) == 1 })
}

func TestRelay_BadPayloadAndPanicDoNotStopTheQueue(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	open(t, r, 1, "a1")
	bob := open(t, r, 2, "b1")

	r.routes["boom"] = func(context.Context, handlers.Deps, handlers.AuthContext, any) (handlers.EventResult, error) {
		panic("boom")
	}

	r.Dispatch("a1", wire.EventMessageSend, "not an object")
	r.Dispatch("a1", "boom", nil)
	r.Dispatch("a1", "no:such-event", nil)
	r.Dispatch("a1", wire.EventMessageSend, map[string]any{"chatId": 10, "message": "still here"})

	eventually(t, func() bool { return len(bob.events(wire.EventMessageReceive)) == 1 })
}

func TestRelay_StatusBroadcastSkipsAuthor(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	alice := open(t, r, 1, "a1")
	alice2 := open(t, r, 1, "a2")
	carol := open(t, r, 3, "c1")

	r.Dispatch("a1", wire.EventStatusNew, map[string]any{"id": 5, "content": "sunset"})

	eventually(t, func() bool { return len(carol.events(wire.EventStatusNew)) == 1 })
	require.Len(t, alice2.events(wire.EventStatusNew), 1)
	require.Empty(t, alice.events(wire.EventStatusNew))
	require.Equal(t, int64(1), carol.events(wire.EventStatusNew)[0].(wire.StatusPayload)["userId"])
}

func TestRelay_Primitives(t *testing.T) {
	r := newTestRelay(t, defaultStore(), nil)
	alice := open(t, r, 1, "a1")
	alice2 := open(t, r, 1, "a2")
	bob := open(t, r, 2, "b1")
	carol := open(t, r, 3, "c1")

	require.Equal(t, 2, r.ToRoom(10, "custom", 1, "a1"))
	require.Empty(t, alice.events("custom"))
	require.Len(t, alice2.events("custom"), 1)
	require.Len(t, bob.events("custom"), 1)
	require.Empty(t, carol.events("custom"))

	require.Equal(t, 2, r.ToUser(1, "mine", 2))
	require.Len(t, alice.events("mine"), 1)
	require.Len(t, alice2.events("mine"), 1)

	require.Equal(t, 3, r.ToAllExceptSender("all", 3, "c1"))
	require.Empty(t, carol.events("all"))

	// Unknown targets are dropped.
	require.Zero(t, r.ToUser(99, "mine", 4))
	require.Zero(t, r.ToRoom(99, "custom", 5, ""))
}
