// Package calls keeps the relay's view of which users are in a call.
//
// The authoritative call state machine runs in each client. The relay only
// remembers caller/callee pairs so it can answer for a busy callee and tell the
// surviving party when the other one disappears.
package calls

import (
	"errors"
	"sync"
	"time"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/google/uuid"
)

const (
	// RingTimeout mirrors the caller-side accept timeout.
	RingTimeout = 30 * time.Second
	// RingGrace covers clock skew and signaling latency past RingTimeout.
	RingGrace = 5 * time.Second
)

var (
	// ErrBusy is returned when the callee is already in another call.
	ErrBusy = errors.New("callee busy")
	// ErrSelfCall is returned when a user calls themselves.
	ErrSelfCall = errors.New("cannot call self")
)

// Phase is the relay-visible call phase.
type Phase int

const (
	PhaseRinging Phase = iota + 1
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseRinging:
		return "ringing"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// Call is one caller/callee pair.
type Call struct {
	ID        string
	CallerID  int64
	CalleeID  int64
	Type      wire.CallType
	Phase     Phase
	StartedAt time.Time
}

// Peer returns the other party of the call.
func (c Call) Peer(userID int64) int64 {
	if userID == c.CallerID {
		return c.CalleeID
	}
	return c.CallerID
}

func (c Call) involves(a, b int64) bool {
	return (c.CallerID == a && c.CalleeID == b) || (c.CallerID == b && c.CalleeID == a)
}

// Registry indexes calls by participant.
type Registry struct {
	now     func() time.Time
	newID   func() string
	ringTTL time.Duration

	mu     sync.Mutex
	byUser map[int64]*Call
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides uuid call ids.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithRingTTL sets how long an unanswered call is remembered.
func WithRingTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ringTTL = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:     time.Now,
		newID:   uuid.NewString,
		ringTTL: RingTimeout + RingGrace,
		byUser:  make(map[int64]*Call),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin records a ringing call. It fails with ErrBusy when the callee is in a
// call with someone else. A stale entry the caller still holds is replaced.
func (r *Registry) Begin(callerID, calleeID int64, callType wire.CallType) (Call, error) {
	if callerID == calleeID {
		return Call{}, ErrSelfCall
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.lookupLocked(calleeID); cur != nil && !cur.involves(callerID, calleeID) {
		return Call{}, ErrBusy
	}
	if cur := r.lookupLocked(callerID); cur != nil {
		r.removeLocked(cur)
	}
	if cur := r.lookupLocked(calleeID); cur != nil {
		r.removeLocked(cur)
	}

	c := &Call{
		ID:        r.newID(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		Type:      callType,
		Phase:     PhaseRinging,
		StartedAt: r.now(),
	}
	r.byUser[callerID] = c
	r.byUser[calleeID] = c
	return *c, nil
}

// Accept marks the callee's ringing call with callerID active.
func (r *Registry) Accept(calleeID, callerID int64) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.lookupLocked(calleeID)
	if c == nil || c.CallerID != callerID || c.CalleeID != calleeID {
		return Call{}, false
	}
	c.Phase = PhaseActive
	return *c, true
}

// Finish removes the call between a and b, if any.
func (r *Registry) Finish(a, b int64) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.lookupLocked(a)
	if c == nil || !c.involves(a, b) {
		return Call{}, false
	}
	r.removeLocked(c)
	return *c, true
}

// Drop removes whatever call userID is in.
func (r *Registry) Drop(userID int64) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.lookupLocked(userID)
	if c == nil {
		return Call{}, false
	}
	r.removeLocked(c)
	return *c, true
}

// Get returns the call userID is in.
func (r *Registry) Get(userID int64) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.lookupLocked(userID)
	if c == nil {
		return Call{}, false
	}
	return *c, true
}

// Count returns ringing and active call counts.
func (r *Registry) Count() (ringing, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Call]struct{}, len(r.byUser)/2)
	for _, c := range r.byUser {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if r.expiredLocked(c) {
			continue
		}
		if c.Phase == PhaseActive {
			active++
		} else {
			ringing++
		}
	}
	return ringing, active
}

// lookupLocked returns the user's call, dropping it if it rang out.
func (r *Registry) lookupLocked(userID int64) *Call {
	c, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	if r.expiredLocked(c) {
		r.removeLocked(c)
		return nil
	}
	return c
}

func (r *Registry) expiredLocked(c *Call) bool {
	return c.Phase == PhaseRinging && r.now().Sub(c.StartedAt) > r.ringTTL
}

func (r *Registry) removeLocked(c *Call) {
	if r.byUser[c.CallerID] == c {
		delete(r.byUser, c.CallerID)
	}
	if r.byUser[c.CalleeID] == c {
		delete(r.byUser, c.CalleeID)
	}
}
