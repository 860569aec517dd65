// Package typing tracks the active typer per chat.
//
// Each chat has a single slot: the most recent typing:start wins. A marker
// clears itself DefaultTTL after it was set, unless it was replaced or
// stopped first, so a lost typing:stop never leaves an indicator on forever.
package typing

import (
	"sync"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
)

// DefaultTTL is how long a marker lives without a refresh.
const DefaultTTL = 3 * time.Second

// Marker is the current typer of a chat.
type Marker struct {
	UserID    int64
	UserName  string
	StartedAt time.Time
	// ConnID is the handle that sent typing:start; expiry notifications
	// exclude it.
	ConnID string

	seq uint64
}

// ExpireFunc is called, outside the tracker lock, when a marker times out.
type ExpireFunc func(chatID int64, m Marker)

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Runner runs an expiry check on behalf of the handle that set the marker.
type Runner func(connID string, check func())

type slot struct {
	marker Marker
	stop   func() bool
}

// Tracker holds typing markers.
type Tracker struct {
	ttl      time.Duration
	now      func() time.Time
	after    AfterFunc
	run      Runner
	onExpire ExpireFunc

	mu    sync.Mutex
	seq   uint64
	chats map[int64]slot
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithScheduler overrides time.AfterFunc.
func WithScheduler(after AfterFunc) Option {
	return func(t *Tracker) { t.after = after }
}

// WithRunner sets where expiry checks run. By default they run on the timer
// goroutine. Running them on the originating handle's event queue orders the
// check and its notification against that handle's own typing events.
func WithRunner(run Runner) Option {
	return func(t *Tracker) { t.run = run }
}

// WithExpireFunc sets the expiry callback.
func WithExpireFunc(fn ExpireFunc) Option {
	return func(t *Tracker) { t.onExpire = fn }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		ttl: DefaultTTL,
		now: time.Now,
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		run:   func(_ string, check func()) { check() },
		chats: make(map[int64]slot),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start records userID as the chat's typer, replacing any previous marker, and
// schedules its expiry.
func (t *Tracker) Start(chatID, userID int64, userName, connID string) Marker {
	t.mu.Lock()
	t.seq++
	m := Marker{
		UserID:    userID,
		UserName:  userName,
		StartedAt: t.now(),
		ConnID:    connID,
		seq:       t.seq,
	}
	if prev, ok := t.chats[chatID]; ok && prev.stop != nil {
		prev.stop()
	}
	stop := t.after(t.ttl, func() {
		t.run(connID, func() { t.expire(chatID, m) })
	})
	t.chats[chatID] = slot{marker: m, stop: stop}
	t.mu.Unlock()

	logger.Tracef("Typing: user %d started in chat %d", userID, chatID)
	return m
}

// Stop clears the chat's marker if it belongs to userID. It reports whether a
// marker was cleared.
func (t *Tracker) Stop(chatID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.chats[chatID]
	if !ok || cur.marker.UserID != userID {
		return false
	}
	if cur.stop != nil {
		cur.stop()
	}
	delete(t.chats, chatID)
	return true
}

// Current returns the chat's marker.
func (t *Tracker) Current(chatID int64) (Marker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.chats[chatID]
	return cur.marker, ok
}

// ClearConn drops every marker set from connID, without notifications. It is
// used when a handle disconnects.
func (t *Tracker) ClearConn(connID string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []int64
	for chatID, cur := range t.chats {
		if cur.marker.ConnID != connID {
			continue
		}
		if cur.stop != nil {
			cur.stop()
		}
		delete(t.chats, chatID)
		cleared = append(cleared, chatID)
	}
	return cleared
}

func (t *Tracker) expire(chatID int64, m Marker) {
	t.mu.Lock()
	cur, ok := t.chats[chatID]
	if !ok || cur.marker.UserID != m.UserID || !cur.marker.StartedAt.Equal(m.StartedAt) || cur.marker.seq != m.seq {
		t.mu.Unlock()
		return
	}
	delete(t.chats, chatID)
	t.mu.Unlock()

	logger.Tracef("Typing: marker for user %d in chat %d expired", m.UserID, chatID)
	if t.onExpire != nil {
		t.onExpire(chatID, m)
	}
}
