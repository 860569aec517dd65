// Package presence tracks which users are online and through which
// connection handles.
//
// A user is online while at least one handle is registered. The transition
// from zero to one handle, and from one to zero, are the only points where
// presence is broadcast and persisted; additional tabs or devices are silent.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// LastSeenLayout is the timestamp format used in offline broadcasts.
const LastSeenLayout = "2006-01-02T15:04:05.000Z07:00"

// Notifier delivers presence transitions to every connection except the one
// given.
type Notifier interface {
	BroadcastPresence(payload wire.PresencePayload, exceptConnID string)
}

// Persister records presence transitions outside the process. Calls happen
// off the relay path and failures are only logged.
type Persister interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error
}

// Registry maps user ids to their live connection handles.
type Registry struct {
	// transition serializes online/offline transitions so broadcasts for a
	// user are observed in the same order as the state changes.
	transition sync.Mutex

	mu    sync.RWMutex
	conns map[int64]map[string]struct{}

	notifier       Notifier
	persisters     []Persister
	now            func() time.Time
	persistTimeout time.Duration
	onChange       func(online int)

	// Persistence runs on one worker so writes land in transition order.
	jobs       chan func()
	workerOnce sync.Once
	pending    sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the broadcast target for transitions.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithPersister appends a persistence sink.
func WithPersister(p Persister) Option {
	return func(r *Registry) {
		if p != nil {
			r.persisters = append(r.persisters, p)
		}
	}
}

// WithClock overrides the time source used for last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithPersistTimeout bounds each persistence call.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.persistTimeout = d
		}
	}
}

// WithOnlineGauge is called with the number of online users after every
// transition.
func WithOnlineGauge(fn func(online int)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		conns:          make(map[int64]map[string]struct{}),
		now:            time.Now,
		persistTimeout: 5 * time.Second,
		jobs:           make(chan func(), 256),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a handle for the user. It returns true when this handle made
// the user go online.
func (r *Registry) Register(userID int64, connID string) bool {
	r.transition.Lock()
	defer r.transition.Unlock()

	r.mu.Lock()
	handles, ok := r.conns[userID]
	if !ok {
		handles = make(map[string]struct{})
		r.conns[userID] = handles
	}
	handles[connID] = struct{}{}
	first := !ok
	count := len(handles)
	online := len(r.conns)
	r.mu.Unlock()

	if !first {
		logger.Tracef("Presence: user %d added handle %s (%d handles)", userID, connID, count)
		return false
	}

	logger.Debugf("Presence: user %d online (handle %s)", userID, connID)
	if r.onChange != nil {
		r.onChange(online)
	}
	if r.notifier != nil {
		r.notifier.BroadcastPresence(wire.PresencePayload{UserID: userID, IsOnline: true}, connID)
	}
	r.persist(func(ctx context.Context, p Persister) error {
		return p.SetOnline(ctx, userID)
	})
	return true
}

// Unregister removes a handle. It returns true when this was the user's last
// handle; unknown or already removed handles return false and have no effect.
func (r *Registry) Unregister(userID int64, connID string) bool {
	r.transition.Lock()
	defer r.transition.Unlock()

	r.mu.Lock()
	handles, ok := r.conns[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := handles[connID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(handles, connID)
	left := len(handles)
	last := left == 0
	if last {
		delete(r.conns, userID)
	}
	online := len(r.conns)
	r.mu.Unlock()

	if !last {
		logger.Tracef("Presence: user %d dropped handle %s (%d left)", userID, connID, left)
		return false
	}

	lastSeen := r.now()
	logger.Debugf("Presence: user %d offline", userID)
	if r.onChange != nil {
		r.onChange(online)
	}
	if r.notifier != nil {
		r.notifier.BroadcastPresence(wire.PresencePayload{
			UserID:   userID,
			IsOnline: false,
			LastSeen: lastSeen.UTC().Format(LastSeenLayout),
		}, connID)
	}
	r.persist(func(ctx context.Context, p Persister) error {
		return p.SetOffline(ctx, userID, lastSeen)
	})
	return true
}

// IsOnline reports whether the user has at least one handle.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// HandlesOf returns the user's handles in sorted order.
func (r *Registry) HandlesOf(userID int64) []string {
	r.mu.RLock()
	handles := r.conns[userID]
	out := make([]string, 0, len(handles))
	for id := range handles {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// OnlineUsers returns every online user id in ascending order.
func (r *Registry) OnlineUsers() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Wait blocks until every in-flight persistence call has finished.
func (r *Registry) Wait() {
	r.pending.Wait()
}

func (r *Registry) persist(call func(context.Context, Persister) error) {
	if len(r.persisters) == 0 {
		return
	}
	r.workerOnce.Do(func() { go r.worker() })

	r.pending.Add(1)
	job := func() {
		defer r.pending.Done()
		for _, p := range r.persisters {
			ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
			if err := call(ctx, p); err != nil {
				logger.Warnf("Presence: persist failed: %v", err)
			}
			cancel()
		}
	}
	select {
	case r.jobs <- job:
	default:
		r.pending.Done()
		logger.Warnf("Presence: persist queue full; dropping write")
	}
}

func (r *Registry) worker() {
	for job := range r.jobs {
		job()
	}
}
