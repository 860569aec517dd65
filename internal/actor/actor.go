// Package actor is a small event-loop scaffold for state machines written as
// pure reducers.
//
// One goroutine owns the state. Each input is reduced to a next state plus a
// list of declarative effects, and a Runtime carries the effects out and feeds
// their outcomes back as new inputs. Reducers can therefore be tested with
// plain (state, input) tables.
package actor

import (
	"context"
	"errors"
	"sync"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
)

// ErrStopped is returned when an input is sent to a stopped actor.
var ErrStopped = errors.New("actor stopped")

// DefaultMailboxSize is the inbox buffer used unless WithMailboxSize is given.
const DefaultMailboxSize = 256

// Input is an item delivered to an actor mailbox: a command from a caller or
// an event reported by the runtime.
type Input interface {
	isActorInput()
}

// Effect is a side effect requested by a reducer. Effects are data; only the
// Runtime executes them.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition.
//
// Reducers must not do I/O, start goroutines, read the clock or generate
// random ids; anything like that arrives through inputs.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and reports their outcomes back to the actor.
type Runtime interface {
	// HandleEffects must return quickly; blocking work runs asynchronously
	// and reports through emit. Nothing may be emitted after ctx is done.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work. It may be called more than once.
	Stop()
}

// Hooks observe an actor's execution. All hooks run on the loop goroutine.
type Hooks[S any] struct {
	OnInput      func(input Input)
	OnTransition func(prev S, next S, input Input)
	OnEffects    func(effects []Effect)
	// OnPanic receives a recovered loop panic. If nil the panic propagates.
	OnPanic func(recovered any)
}

// Actor runs the loop that owns a state of type S.
type Actor[S any] struct {
	name    string
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the inbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// WithName labels the actor in logs.
func WithName[S any](name string) Option[S] {
	return func(a *Actor[S]) { a.name = name }
}

// New creates an actor. Call Start to run it.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		name:    "actor",
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, DefaultMailboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop. Extra calls do nothing.
func (a *Actor[S]) Start() {
	a.once.Do(func() { go a.loop() })
}

// Stop cancels the loop and stops the runtime. It is safe to call repeatedly.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done is closed when the loop exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue delivers an input without blocking. It reports false when the actor
// is stopped or the mailbox is full.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	default:
	}
	select {
	case a.inbox <- input:
		return true
	default:
		logger.Warnf("[%s] mailbox full; dropping %T", a.name, input)
		return false
	}
}

// Send delivers an input, waiting for mailbox space.
func (a *Actor[S]) Send(ctx context.Context, input Input) error {
	if input == nil {
		return nil
	}
	select {
	case <-a.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- input:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the current state, for observers and tests.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	emit := func(in Input) {
		_ = a.Enqueue(in)
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}
