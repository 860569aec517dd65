package call

import (
	"context"
	"sync"

	"github.com/HassanDev-git/HK.Chat/internal/actor"
	"github.com/HassanDev-git/HK.Chat/internal/logger"
)

// Signaler sends events to the relay. *realtime.Client implements it.
type Signaler interface {
	Emit(event string, payload any) error
}

// Runtime executes call effects. Peer operations and signaling emits run in
// effect order on one worker goroutine, so candidates reach the peer
// connection and the relay in the order the reducer produced them. Media
// acquisition runs on its own goroutine per generation and is canceled when
// that generation's media or peer is released. Timers are armed inline.
type Runtime struct {
	signaler Signaler
	media    MediaDevices
	peers    PeerFactory
	clock    actor.Clock
	onError  func(error)

	mu      sync.Mutex
	pending []job
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started sync.Once
	stopped sync.Once
	timers  map[timerKind]func() bool

	// Guarded by mu; acquisitions finish off the worker.
	acquiring map[uint64]context.CancelFunc
	streams   map[uint64]LocalStream

	// Owned by the worker.
	peer    Peer
	peerGen uint64
}

type job struct {
	ctx  context.Context
	eff  actor.Effect
	emit func(actor.Input)
}

var _ actor.Runtime = (*Runtime)(nil)

// NewRuntime builds a runtime. onError may be nil.
func NewRuntime(signaler Signaler, media MediaDevices, peers PeerFactory, clock actor.Clock, onError func(error)) *Runtime {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		signaler: signaler,
		media:    media,
		peers:    peers,
		clock:    clock,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		timers:    make(map[timerKind]func() bool),
		acquiring: make(map[uint64]context.CancelFunc),
		streams:   make(map[uint64]LocalStream),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.started.Do(func() { go r.work() })

	var queued bool
	for _, eff := range effects {
		switch e := eff.(type) {
		case effStartTimer:
			r.startTimer(ctx, e, emit)
			continue
		case effCancelTimer:
			r.cancelTimer(e.Kind)
			continue
		case effAcquireMedia:
			r.acquire(ctx, e, emit)
			continue
		case effReleaseMedia:
			r.cancelAcquire(e.Gen)
		case effClosePeer:
			r.cancelAcquire(e.Gen)
		}
		r.mu.Lock()
		r.pending = append(r.pending, job{ctx: ctx, eff: eff, emit: emit})
		r.mu.Unlock()
		queued = true
	}
	if queued {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Stop implements actor.Runtime. Pending work is abandoned; the open peer
// connection and streams are released.
func (r *Runtime) Stop() {
	r.stopped.Do(func() {
		close(r.stop)
		r.mu.Lock()
		for kind, cancel := range r.timers {
			cancel()
			delete(r.timers, kind)
		}
		for gen, cancel := range r.acquiring {
			cancel()
			delete(r.acquiring, gen)
		}
		r.mu.Unlock()

		started := true
		r.started.Do(func() { started = false })
		if started {
			<-r.done
		}
		r.closePeer()
		r.mu.Lock()
		gens := make([]uint64, 0, len(r.streams))
		for gen := range r.streams {
			gens = append(gens, gen)
		}
		r.mu.Unlock()
		for _, gen := range gens {
			r.releaseMedia(gen)
		}
	})
}

// acquire opens local media for one generation without blocking the worker.
// A stream that arrives after its generation was released is closed at once.
func (r *Runtime) acquire(ctx context.Context, e effAcquireMedia, emit func(actor.Input)) {
	r.mu.Lock()
	select {
	case <-r.stop:
		r.mu.Unlock()
		return
	default:
	}
	if cancel, ok := r.acquiring[e.Gen]; ok {
		cancel()
	}
	actx, cancel := context.WithCancel(ctx)
	r.acquiring[e.Gen] = cancel
	r.mu.Unlock()

	go func() {
		defer cancel()
		stream, err := r.media.Open(actx, e.CallType)

		r.mu.Lock()
		_, live := r.acquiring[e.Gen]
		if live {
			delete(r.acquiring, e.Gen)
			if err == nil {
				r.streams[e.Gen] = stream
			}
		}
		r.mu.Unlock()

		switch {
		case !live:
			if err == nil && stream != nil {
				if cerr := stream.Close(); cerr != nil {
					logger.Debugf("call: release abandoned media: %v", cerr)
				}
			}
		case ctx.Err() != nil:
		case err != nil:
			emit(evMediaFailed{Gen: e.Gen, Err: err})
		default:
			emit(evMediaReady{Gen: e.Gen})
		}
	}()
}

func (r *Runtime) cancelAcquire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.acquiring[gen]; ok {
		cancel()
		delete(r.acquiring, gen)
	}
}

func (r *Runtime) startTimer(ctx context.Context, e effStartTimer, emit func(actor.Input)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.timers[e.Kind]; ok {
		cancel()
	}
	in := evTimer{Gen: e.Gen, Kind: e.Kind}
	r.timers[e.Kind] = r.clock.AfterFunc(e.After, func() {
		if ctx.Err() == nil {
			emit(in)
		}
	})
}

func (r *Runtime) cancelTimer(kind timerKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.timers[kind]; ok {
		cancel()
		delete(r.timers, kind)
	}
}

func (r *Runtime) work() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case <-r.wake:
		}
		for {
			r.mu.Lock()
			batch := r.pending
			r.pending = nil
			r.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, j := range batch {
				select {
				case <-r.stop:
					return
				default:
				}
				r.exec(j)
			}
		}
	}
}

func (r *Runtime) exec(j job) {
	emit := func(in actor.Input) {
		if j.ctx.Err() == nil {
			j.emit(in)
		}
	}

	switch e := j.eff.(type) {
	case effReleaseMedia:
		r.releaseMedia(e.Gen)

	case effCreatePeer:
		r.closePeer()
		gen := e.Gen
		peer, err := r.peers.NewPeer(PeerHandlers{
			OnCandidate: func(c any) { emit(evLocalCandidate{Gen: gen, Candidate: c}) },
			OnState:     func(s PeerState) { emit(evPeerState{Gen: gen, State: s}) },
		})
		if err != nil {
			emit(evNegotiationFailed{Gen: gen, Err: err})
			return
		}
		r.peer, r.peerGen = peer, gen
		if stream, ok := r.stream(gen); ok {
			for _, track := range stream.Tracks() {
				if err := peer.AddTrack(track); err != nil {
					emit(evNegotiationFailed{Gen: gen, Err: err})
					return
				}
			}
		}

	case effCreateOffer:
		peer := r.peerFor(e.Gen)
		if peer == nil {
			return
		}
		offer, err := peer.CreateOffer()
		if err != nil {
			emit(evNegotiationFailed{Gen: e.Gen, Err: err})
			return
		}
		emit(evOfferCreated{Gen: e.Gen, Offer: offer})

	case effCreateAnswer:
		peer := r.peerFor(e.Gen)
		if peer == nil {
			return
		}
		answer, err := peer.CreateAnswer()
		if err != nil {
			emit(evNegotiationFailed{Gen: e.Gen, Err: err})
			return
		}
		emit(evAnswerCreated{Gen: e.Gen, Answer: answer, At: r.clock.Now()})

	case effSetRemoteDescription:
		peer := r.peerFor(e.Gen)
		if peer == nil {
			return
		}
		if err := peer.SetRemoteDescription(e.Desc); err != nil {
			emit(evNegotiationFailed{Gen: e.Gen, Err: err})
			return
		}
		emit(evRemoteDescSet{Gen: e.Gen})

	case effAddCandidates:
		peer := r.peerFor(e.Gen)
		if peer == nil {
			return
		}
		for _, c := range e.Candidates {
			if err := peer.AddICECandidate(c); err != nil {
				logger.Warnf("call: add ICE candidate: %v", err)
			}
		}

	case effClosePeer:
		if r.peerGen == e.Gen {
			r.closePeer()
		}

	case effSetTrackEnabled:
		if stream, ok := r.stream(e.Gen); ok {
			stream.SetEnabled(e.Kind, e.Enabled)
		}

	case effEmit:
		if err := r.signaler.Emit(e.Event, e.Payload); err != nil {
			logger.Warnf("call: emit %s: %v", e.Event, err)
		}

	case effReportError:
		logger.Warnf("call: %v", e.Err)
		if r.onError != nil {
			r.onError(e.Err)
		}

	default:
		logger.Warnf("call: unknown effect %T", e)
	}
}

func (r *Runtime) peerFor(gen uint64) Peer {
	if r.peer == nil || r.peerGen != gen {
		return nil
	}
	return r.peer
}

func (r *Runtime) closePeer() {
	if r.peer == nil {
		return
	}
	if err := r.peer.Close(); err != nil {
		logger.Debugf("call: close peer: %v", err)
	}
	r.peer = nil
	r.peerGen = 0
}

func (r *Runtime) stream(gen uint64) (LocalStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stream, ok := r.streams[gen]
	return stream, ok
}

func (r *Runtime) releaseMedia(gen uint64) {
	r.mu.Lock()
	stream, ok := r.streams[gen]
	delete(r.streams, gen)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := stream.Close(); err != nil {
		logger.Debugf("call: release media: %v", err)
	}
}
