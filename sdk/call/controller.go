package call

import (
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/actor"
	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/HassanDev-git/HK.Chat/sdk/realtime"
	"github.com/google/uuid"
)

// Transport is the relay connection a Controller signals over.
// *realtime.Client implements it.
type Transport interface {
	Signaler
	On(event string, handler realtime.Handler)
}

// Hooks let a UI follow the call. They run on the call's loop goroutine and
// must not block; ringtone and ringback playback attach to OnPhaseChange.
type Hooks struct {
	OnPhaseChange func(prev, next Phase)
	OnError       func(err error)
}

type controllerOptions struct {
	media MediaDevices
	peers PeerFactory
	clock actor.Clock
	hooks Hooks
	newID func() string
}

// Option configures a Controller.
type Option func(*controllerOptions)

// WithMedia sets the local media source. Defaults to StaticMedia.
func WithMedia(m MediaDevices) Option {
	return func(o *controllerOptions) { o.media = m }
}

// WithPeerFactory sets the peer connection factory. Defaults to pion with
// DefaultICEServers.
func WithPeerFactory(f PeerFactory) Option {
	return func(o *controllerOptions) { o.peers = f }
}

// WithClock sets the time source for timers and durations.
func WithClock(c actor.Clock) Option {
	return func(o *controllerOptions) { o.clock = c }
}

// WithHooks attaches UI hooks.
func WithHooks(h Hooks) Option {
	return func(o *controllerOptions) { o.hooks = h }
}

// WithIDGenerator overrides the local call id generator.
func WithIDGenerator(f func() string) Option {
	return func(o *controllerOptions) { o.newID = f }
}

// Controller is the call API for one signed-in user.
type Controller struct {
	actor   *actor.Actor[State]
	runtime *Runtime
	clock   actor.Clock
	newID   func() string
}

// NewController wires a call state machine to transport and subscribes to
// the relay's call events. Call Start before use.
func NewController(transport Transport, opts ...Option) (*Controller, error) {
	o := controllerOptions{
		media: StaticMedia{},
		clock: actor.RealClock{},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.peers == nil {
		f, err := NewPionFactory(nil)
		if err != nil {
			return nil, err
		}
		o.peers = f
	}

	rt := NewRuntime(transport, o.media, o.peers, o.clock, o.hooks.OnError)
	a := actor.New[State](State{}, Reduce, rt,
		actor.WithName[State]("call"),
		actor.WithHooks(actor.Hooks[State]{
			OnTransition: func(prev, next State, _ actor.Input) {
				if prev.Phase == next.Phase {
					return
				}
				logger.Debugf("call %s: %s -> %s", next.CallID, prev.Phase, next.Phase)
				if o.hooks.OnPhaseChange != nil {
					o.hooks.OnPhaseChange(prev.Phase, next.Phase)
				}
			},
			OnPanic: func(r any) {
				logger.Errorf("call: loop panic: %v", r)
			},
		}),
	)

	c := &Controller{actor: a, runtime: rt, clock: o.clock, newID: o.newID}
	c.subscribe(transport)
	return c, nil
}

func (c *Controller) subscribe(t Transport) {
	realtime.OnEvent(t, wire.EventCallIncoming, func(p wire.CallIncomingPayload) {
		c.actor.Enqueue(evIncoming{CallID: c.newID(), Caller: p.Caller, CallType: p.CallType, Offer: p.Offer})
	})
	realtime.OnEvent(t, wire.EventCallAccepted, func(p wire.CallAcceptedPayload) {
		c.actor.Enqueue(evAccepted{From: p.UserID, Answer: p.Answer, At: c.clock.Now()})
	})
	realtime.OnEvent(t, wire.EventCallRejected, func(p wire.CallPeerPayload) {
		c.actor.Enqueue(evRejected{From: p.UserID})
	})
	realtime.OnEvent(t, wire.EventCallEnded, func(p wire.CallPeerPayload) {
		c.actor.Enqueue(evRemoteEnded{From: p.UserID})
	})
	realtime.OnEvent(t, wire.EventCallICECandidate, func(p wire.CallICECandidatePayload) {
		c.actor.Enqueue(evRemoteCandidate{From: p.From, Candidate: p.Candidate})
	})
}

// Start runs the call loop.
func (c *Controller) Start() { c.actor.Start() }

// Stop ends the loop and releases media and the peer connection without
// signaling the remote party.
func (c *Controller) Stop() { c.actor.Stop() }

// State returns a snapshot of the call.
func (c *Controller) State() State { return c.actor.State() }

// Duration is the connected time of the current call.
func (c *Controller) Duration() time.Duration {
	return c.actor.State().Duration(c.clock.Now())
}

// Initiate calls target. Errors detected later (busy, media) reach
// Hooks.OnError.
func (c *Controller) Initiate(target wire.UserSummary, callType wire.CallType) error {
	if !callType.Valid() {
		return ErrInvalidCallType
	}
	if c.State().Active() {
		return ErrBusy
	}
	return c.send(cmdInitiate{CallID: c.newID(), Target: target, CallType: callType})
}

// Accept answers the ringing call.
func (c *Controller) Accept() error {
	if c.State().Phase != PhaseIncoming {
		return ErrNoIncomingCall
	}
	return c.send(cmdAccept{})
}

// Reject declines the ringing call.
func (c *Controller) Reject() error {
	if c.State().Phase != PhaseIncoming {
		return ErrNoIncomingCall
	}
	return c.send(cmdReject{})
}

// Hangup ends the current call. A ringing incoming call is rejected.
func (c *Controller) Hangup() error { return c.send(cmdHangup{}) }

// ToggleMute flips the local audio track.
func (c *Controller) ToggleMute() error { return c.send(cmdToggleMute{}) }

// ToggleVideo flips the local video track of a video call.
func (c *Controller) ToggleVideo() error { return c.send(cmdToggleVideo{}) }

func (c *Controller) send(in actor.Input) error {
	if !c.actor.Enqueue(in) {
		return actor.ErrStopped
	}
	return nil
}
