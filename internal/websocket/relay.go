package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/calls"
	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/internal/metrics"
	"github.com/HassanDev-git/HK.Chat/internal/presence"
	"github.com/HassanDev-git/HK.Chat/internal/rooms"
	"github.com/HassanDev-git/HK.Chat/internal/typing"
	"github.com/HassanDev-git/HK.Chat/internal/websocket/handlers"
)

// ErrDuplicateHandle is returned by Open for a handle id that is already live.
var ErrDuplicateHandle = errors.New("handle already open")

// DefaultHandlerTimeout bounds the store calls made while handling one event.
const DefaultHandlerTimeout = 10 * time.Second

// RelayOptions wires the relay to its collaborators.
type RelayOptions struct {
	Users    handlers.UserQueries
	Chats    handlers.ChatQueries
	Messages handlers.MessageQueries

	// Persisters receive presence transitions, in order.
	Persisters []presence.Persister
	Metrics    *metrics.Metrics

	// TypingTTL defaults to typing.DefaultTTL.
	TypingTTL time.Duration
	// TypingScheduler defaults to time.AfterFunc.
	TypingScheduler typing.AfterFunc
	// Now defaults to time.Now.
	Now func() time.Time
	// NewCallID defaults to random UUIDs.
	NewCallID func() string
}

// Relay is the transport-independent core of the chat relay. It owns the
// live handles, presence, rooms, typing markers and call registry, and routes
// client events through the handlers package.
type Relay struct {
	hub      *Hub
	presence *presence.Registry
	rooms    *rooms.Manager
	typing   *typing.Tracker
	calls    *calls.Registry
	deps     handlers.Deps
	routes   map[string]route
	metrics  *metrics.Metrics

	handlerTimeout time.Duration
	closing        sync.Map // handle id -> struct{}
}

// NewRelay builds a relay and its components.
func NewRelay(opts RelayOptions) *Relay {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := &Relay{
		hub:            NewHub(opts.Metrics),
		routes:         defaultRoutes(),
		metrics:        opts.Metrics,
		handlerTimeout: DefaultHandlerTimeout,
	}

	presenceOpts := []presence.Option{
		presence.WithNotifier(r.hub),
		presence.WithClock(now),
		presence.WithOnlineGauge(opts.Metrics.SetOnlineUsers),
	}
	for _, p := range opts.Persisters {
		presenceOpts = append(presenceOpts, presence.WithPersister(p))
	}
	r.presence = presence.New(presenceOpts...)
	r.rooms = rooms.NewManager(r.presence)

	typingOpts := []typing.Option{
		typing.WithClock(now),
		typing.WithExpireFunc(r.typingExpired),
		typing.WithRunner(r.onHandleQueue),
	}
	if opts.TypingTTL > 0 {
		typingOpts = append(typingOpts, typing.WithTTL(opts.TypingTTL))
	}
	if opts.TypingScheduler != nil {
		typingOpts = append(typingOpts, typing.WithScheduler(opts.TypingScheduler))
	}
	r.typing = typing.NewTracker(typingOpts...)

	callOpts := []calls.Option{calls.WithClock(now)}
	if opts.NewCallID != nil {
		callOpts = append(callOpts, calls.WithIDGenerator(opts.NewCallID))
	}
	r.calls = calls.NewRegistry(callOpts...)

	r.deps = handlers.NewDeps(opts.Users, opts.Chats, opts.Messages, r.typing, r.calls, now)
	return r
}

// Presence returns the presence registry.
func (r *Relay) Presence() *presence.Registry { return r.presence }

// Rooms returns the room manager.
func (r *Relay) Rooms() *rooms.Manager { return r.rooms }

// Calls returns the relay call registry.
func (r *Relay) Calls() *calls.Registry { return r.calls }

// Hub returns the live handle set.
func (r *Relay) Hub() *Hub { return r.hub }

// Events lists the client events the relay handles.
func (r *Relay) Events() []string { return routeNames(r.routes) }

// Open makes an authenticated handle live: it registers presence and joins
// the user's chat rooms. Both run as the first job on the handle's queue, so
// a Close that races with Open always tears down after them. Events from the
// handle must only be dispatched after Open returns nil.
func (r *Relay) Open(ctx context.Context, conn Conn, userID int64) error {
	connID := conn.ID()
	if _, ok := r.hub.get(connID); ok {
		return fmt.Errorf("open handle %s: %w", connID, ErrDuplicateHandle)
	}
	auth := handlers.NewAuthContext(userID, connID)
	result, err := handlers.Connect(ctx, r.deps, auth)
	if err != nil {
		return err
	}
	chatIDs := joinedChats(result)

	cd := r.hub.newConnData(userID, conn)
	ready := make(chan struct{})
	if !cd.queue.enqueue(func() {
		defer close(ready)
		r.presence.Register(userID, connID)
		r.rooms.Attach(connID, chatIDs)
	}) {
		return fmt.Errorf("open handle %s: queue unavailable", connID)
	}
	if !r.hub.add(cd) {
		<-ready
		cd.queue.stop()
		return fmt.Errorf("open handle %s: %w", connID, ErrDuplicateHandle)
	}
	<-ready

	logger.Infof("Client ready (user: %d, handle: %s, rooms: %d)", userID, connID, len(chatIDs))
	return nil
}

func joinedChats(result handlers.EventResult) []int64 {
	var ids []int64
	for _, cmd := range result.Rooms() {
		if cmd.IsJoinSelf() {
			ids = append(ids, cmd.ChatID())
		}
	}
	return ids
}

// Dispatch queues one client event on the handle's serial queue.
func (r *Relay) Dispatch(connID, event string, raw any) {
	rt, ok := r.routes[event]
	if !ok {
		logger.Debugf("Ignoring unknown event %q from handle %s", event, connID)
		return
	}
	cd, ok := r.hub.get(connID)
	if !ok {
		logger.Debugf("Ignoring %s from unknown handle %s", event, connID)
		return
	}
	r.metrics.EventReceived(event)
	cd.queue.enqueue(func() { r.handle(cd, event, rt, raw) })
}

// Close tears the handle down after the events already queued for it. Closing
// an unknown or already closed handle is a no-op.
func (r *Relay) Close(connID string) {
	cd, ok := r.hub.get(connID)
	if !ok {
		return
	}
	if _, loaded := r.closing.LoadOrStore(connID, struct{}{}); loaded {
		return
	}

	teardown := func() { r.teardown(cd) }
	if !cd.queue.enqueue(teardown) {
		teardown()
	}
	cd.queue.stop()
}

// Shutdown waits for pending presence writes.
func (r *Relay) Shutdown() {
	r.presence.Wait()
}

func (r *Relay) handle(cd *connData, event string, rt route, raw any) {
	connID := cd.Conn.ID()
	defer func() {
		if p := recover(); p != nil {
			r.metrics.HandlerPanic()
			logger.Errorf("Handler for %s panicked (handle %s): %v", event, connID, p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.handlerTimeout)
	defer cancel()

	result, err := rt(ctx, r.deps, handlers.NewAuthContext(cd.UserID, connID), raw)
	if err != nil {
		logger.Warnf("Invalid %s payload from handle %s: %v", event, connID, err)
		r.metrics.Dropped("invalid_payload")
		return
	}
	r.apply(connID, result)

	if strings.HasPrefix(event, "call:") {
		r.refreshCallGauge()
	}
}

func (r *Relay) teardown(cd *connData) {
	connID := cd.Conn.ID()
	defer r.closing.Delete(connID)

	last := r.presence.Unregister(cd.UserID, connID)

	ctx, cancel := context.WithTimeout(context.Background(), r.handlerTimeout)
	defer cancel()
	result := handlers.DisconnectEffects(ctx, r.deps, handlers.NewAuthContext(cd.UserID, connID), last)
	r.apply(connID, result)

	r.rooms.Detach(connID)
	r.hub.remove(connID)
	r.refreshCallGauge()

	logger.Infof("Client gone (user: %d, handle: %s, last: %t)", cd.UserID, connID, last)
}

// apply runs room commands first, then emissions, on behalf of senderID.
func (r *Relay) apply(senderID string, result handlers.EventResult) {
	for _, cmd := range result.Rooms() {
		switch {
		case cmd.IsJoinSelf():
			r.rooms.Join(senderID, cmd.ChatID())
		case cmd.IsAddUser():
			n := r.rooms.AddUserToRoom(cmd.UserID(), cmd.ChatID())
			logger.Tracef("Rooms: user %d joined chat %d on %d handles", cmd.UserID(), cmd.ChatID(), n)
		case cmd.IsRemoveUser():
			n := r.rooms.RemoveUserFromRoom(cmd.UserID(), cmd.ChatID())
			logger.Tracef("Rooms: user %d left chat %d on %d handles", cmd.UserID(), cmd.ChatID(), n)
		}
	}

	for _, e := range result.Emissions() {
		skip := ""
		if e.SkipSelf() {
			skip = senderID
		}
		switch {
		case e.IsRoom():
			r.ToRoom(e.ChatID(), e.Event(), e.Payload(), skip)
		case e.IsUser():
			r.hub.EmitTo(r.presence.HandlesOf(e.UserID()), e.Event(), e.Payload(), skip)
		case e.IsBroadcast():
			r.ToAllExceptSender(e.Event(), e.Payload(), skip)
		case e.IsSelf():
			r.hub.EmitTo([]string{senderID}, e.Event(), e.Payload(), "")
		}
	}
}

// ToRoom emits to every handle joined to the chat room except senderConnID.
// It returns the number of handles reached.
func (r *Relay) ToRoom(chatID int64, event string, payload any, senderConnID string) int {
	return r.hub.EmitTo(r.rooms.Members(chatID), event, payload, senderConnID)
}

// ToUser emits to every live handle of the user.
func (r *Relay) ToUser(userID int64, event string, payload any) int {
	return r.hub.EmitTo(r.presence.HandlesOf(userID), event, payload, "")
}

// ToAllExceptSender emits to every live handle but senderConnID.
func (r *Relay) ToAllExceptSender(event string, payload any, senderConnID string) int {
	return r.hub.EmitToAll(event, payload, senderConnID)
}

// onHandleQueue runs fn on the handle's event queue, or inline when the handle
// is gone.
func (r *Relay) onHandleQueue(connID string, fn func()) {
	if cd, ok := r.hub.get(connID); ok && cd.queue.enqueue(fn) {
		return
	}
	fn()
}

// typingExpired relays typing:stop for a marker that timed out. It runs on the
// originating handle's queue, ordered with that handle's typing events.
func (r *Relay) typingExpired(chatID int64, m typing.Marker) {
	r.metrics.TypingExpired()
	r.apply(m.ConnID, handlers.TypingExpired(chatID, m.UserID))
}

func (r *Relay) refreshCallGauge() {
	ringing, active := r.calls.Count()
	r.metrics.SetCalls(ringing, active)
}
