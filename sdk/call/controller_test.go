package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/actor/actortest"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/HassanDev-git/HK.Chat/sdk/realtime"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	Event   string
	Payload any
}

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string][]realtime.Handler
	sent     []sentEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]realtime.Handler)}
}

func (t *fakeTransport) On(event string, h realtime.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], h)
}

func (t *fakeTransport) Emit(event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentEvent{Event: event, Payload: payload})
	return nil
}

func (t *fakeTransport) deliver(event string, payload any) {
	t.mu.Lock()
	handlers := append([]realtime.Handler(nil), t.handlers[event]...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (t *fakeTransport) events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, s := range t.sent {
		out = append(out, s.Event)
	}
	return out
}

type fakeStream struct {
	mu      sync.Mutex
	closed  bool
	enabled map[TrackKind]bool
}

func (s *fakeStream) Tracks() []webrtc.TrackLocal { return nil }

func (s *fakeStream) SetEnabled(kind TrackKind, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[kind] = enabled
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMedia struct {
	err  error
	gate chan struct{}
	// stubborn ignores cancellation, like a device prompt that cannot be
	// withdrawn.
	stubborn bool

	mu       sync.Mutex
	streams  []*fakeStream
	canceled int
}

func (m *fakeMedia) Open(ctx context.Context, _ wire.CallType) (LocalStream, error) {
	switch {
	case m.gate != nil && m.stubborn:
		<-m.gate
	case m.gate != nil:
		select {
		case <-m.gate:
		case <-ctx.Done():
			m.mu.Lock()
			m.canceled++
			m.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{enabled: map[TrackKind]bool{TrackAudio: true, TrackVideo: true}}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *fakeMedia) canceledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canceled
}

func (m *fakeMedia) opened() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.streams...)
}

type fakePeer struct {
	handlers PeerHandlers

	mu     sync.Mutex
	ops    []string
	closed bool
}

func (p *fakePeer) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}

func (p *fakePeer) AddTrack(webrtc.TrackLocal) error { p.record("addTrack"); return nil }

func (p *fakePeer) CreateOffer() (any, error) {
	p.record("createOffer")
	return map[string]any{"type": "offer", "sdp": "local"}, nil
}

func (p *fakePeer) CreateAnswer() (any, error) {
	p.record("createAnswer")
	return map[string]any{"type": "answer", "sdp": "local"}, nil
}

func (p *fakePeer) SetRemoteDescription(desc any) error {
	m, _ := desc.(map[string]any)
	p.record(fmt.Sprintf("setRemote:%v", m["type"]))
	return nil
}

func (p *fakePeer) AddICECandidate(c any) error {
	m, _ := c.(map[string]any)
	p.record(fmt.Sprintf("add:%v", m["candidate"]))
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) snapshot() ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...), p.closed
}

type fakePeers struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakePeers) NewPeer(h PeerHandlers) (Peer, error) {
	p := &fakePeer{handlers: h}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakePeers) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

type phaseLog struct {
	mu     sync.Mutex
	phases []string
	errs   []error
}

func (l *phaseLog) hooks() Hooks {
	return Hooks{
		OnPhaseChange: func(prev, next Phase) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.phases = append(l.phases, prev.String()+"->"+next.String())
		},
		OnError: func(err error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.errs = append(l.errs, err)
		},
	}
}

func (l *phaseLog) snapshot() ([]string, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.phases...), append([]error(nil), l.errs...)
}

type harness struct {
	transport *fakeTransport
	media     *fakeMedia
	peers     *fakePeers
	clock     *actortest.FakeClock
	log       *phaseLog
	ctrl      *Controller
}

func newHarness(t *testing.T, media *fakeMedia) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(),
		media:     media,
		peers:     &fakePeers{},
		clock:     actortest.NewFakeClock(t0),
		log:       &phaseLog{},
	}
	ctrl, err := NewController(h.transport,
		WithMedia(h.media),
		WithPeerFactory(h.peers),
		WithClock(h.clock),
		WithHooks(h.log.hooks()),
		WithIDGenerator(func() string { return "call-1" }),
	)
	require.NoError(t, err)
	ctrl.Start()
	t.Cleanup(ctrl.Stop)
	h.ctrl = ctrl
	return h
}

func (h *harness) waitPhase(t *testing.T, p Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State().Phase == p }, 2*time.Second, 5*time.Millisecond,
		"want phase %s", p)
}

func TestControllerCalleeFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeMedia{})

	h.transport.deliver(wire.EventCallIncoming, map[string]any{
		"caller":   map[string]any{"id": float64(1), "display_name": "Alice", "profile_pic": nil},
		"callType": "voice",
		"offer":    map[string]any{"type": "offer", "sdp": "remote"},
	})
	h.waitPhase(t, PhaseIncoming)
	require.Equal(t, "Alice", h.ctrl.State().Remote.DisplayName)
	require.Equal(t, "call-1", h.ctrl.State().CallID)

	h.transport.deliver(wire.EventCallICECandidate, map[string]any{
		"candidate": map[string]any{"candidate": "cand-1"},
		"from":      float64(1),
	})
	h.transport.deliver(wire.EventCallICECandidate, map[string]any{
		"candidate": map[string]any{"candidate": "cand-2"},
		"from":      float64(1),
	})

	require.NoError(t, h.ctrl.Accept())
	h.waitPhase(t, PhaseConnected)

	require.Eventually(t, func() bool {
		events := h.transport.events()
		return len(events) == 1 && events[0] == wire.EventCallAccept
	}, 2*time.Second, 5*time.Millisecond)

	ops, _ := h.peers.last().snapshot()
	require.Equal(t, []string{"setRemote:offer", "add:cand-1", "add:cand-2", "createAnswer"}, ops)

	// Local candidates go straight out once the answer is sent.
	h.peers.last().handlers.OnCandidate(map[string]any{"candidate": "local-1"})
	require.Eventually(t, func() bool { return len(h.transport.events()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, wire.EventCallICECandidate, h.transport.events()[1])

	h.clock.Advance(3 * time.Second)
	require.Equal(t, 3*time.Second, h.ctrl.Duration())

	h.transport.deliver(wire.EventCallEnded, map[string]any{"userId": float64(1)})
	h.waitPhase(t, PhaseEnded)
	require.Eventually(t, func() bool {
		_, closed := h.peers.last().snapshot()
		return closed && h.media.opened()[0].isClosed()
	}, 2*time.Second, 5*time.Millisecond)
	require.Len(t, h.transport.events(), 2, "remote end is not echoed")

	require.Eventually(t, func() bool { return h.clock.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.clock.Advance(EndedSettle)
	h.waitPhase(t, PhaseIdle)

	phases, errs := h.log.snapshot()
	require.Equal(t, []string{"idle->incoming", "incoming->connected", "connected->ended", "ended->idle"}, phases)
	require.Empty(t, errs)
}

func TestControllerCallerTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeMedia{})

	require.NoError(t, h.ctrl.Initiate(bob, wire.CallTypeVideo))
	require.Eventually(t, func() bool {
		events := h.transport.events()
		return len(events) == 1 && events[0] == wire.EventCallInitiate
	}, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, h.ctrl.Initiate(carol, wire.CallTypeVoice), ErrBusy)

	require.Eventually(t, func() bool { return h.clock.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.clock.Advance(AcceptTimeout)
	h.waitPhase(t, PhaseEnded)
	require.Equal(t, EndTimeout, h.ctrl.State().EndReason)

	require.Eventually(t, func() bool {
		return len(h.transport.events()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{wire.EventCallInitiate, wire.EventCallEnd}, h.transport.events())

	require.Eventually(t, func() bool { return h.clock.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
	h.clock.Advance(EndedSettle)
	h.waitPhase(t, PhaseIdle)
	require.Equal(t, []string{wire.EventCallInitiate, wire.EventCallEnd}, h.transport.events())
}

func TestControllerBusyRejectsSecondCaller(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeMedia{})

	require.NoError(t, h.ctrl.Initiate(bob, wire.CallTypeVoice))
	h.waitPhase(t, PhaseCalling)

	h.transport.deliver(wire.EventCallIncoming, map[string]any{
		"caller":   map[string]any{"id": float64(3), "display_name": "Carol"},
		"callType": "voice",
		"offer":    map[string]any{"type": "offer", "sdp": "x"},
	})
	require.Eventually(t, func() bool {
		for _, ev := range h.transport.events() {
			if ev == wire.EventCallReject {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, PhaseCalling, h.ctrl.State().Phase)
	require.Equal(t, int64(2), h.ctrl.State().Remote.ID)
}

func TestControllerMediaFailure(t *testing.T) {
	t.Parallel()

	denied := errors.New("permission denied")
	h := newHarness(t, &fakeMedia{err: denied})

	require.NoError(t, h.ctrl.Initiate(bob, wire.CallTypeVideo))
	require.Eventually(t, func() bool {
		_, errs := h.log.snapshot()
		return len(errs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, errs := h.log.snapshot()
	require.ErrorIs(t, errs[0], denied)
	h.waitPhase(t, PhaseIdle)
	require.Empty(t, h.transport.events())
	require.Nil(t, h.peers.last())
}

func TestControllerReleasesLateMedia(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	h := newHarness(t, &fakeMedia{gate: gate, stubborn: true})

	require.NoError(t, h.ctrl.Initiate(bob, wire.CallTypeVoice))
	h.waitPhase(t, PhaseCalling)
	require.NoError(t, h.ctrl.Hangup())
	h.waitPhase(t, PhaseEnded)

	close(gate)
	require.Eventually(t, func() bool {
		streams := h.media.opened()
		return len(streams) == 1 && streams[0].isClosed()
	}, 2*time.Second, 5*time.Millisecond)
	require.Nil(t, h.peers.last(), "no peer for an abandoned call")
	require.Empty(t, h.transport.events())
}

func containsEvent(events []string, event string) bool {
	for _, ev := range events {
		if ev == event {
			return true
		}
	}
	return false
}

func TestControllerHangupWhileMediaPendingRejects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeMedia{gate: make(chan struct{})})

	h.transport.deliver(wire.EventCallIncoming, map[string]any{
		"caller":   map[string]any{"id": float64(1), "display_name": "Alice"},
		"callType": "video",
		"offer":    map[string]any{"type": "offer", "sdp": "remote"},
	})
	h.waitPhase(t, PhaseIncoming)

	require.NoError(t, h.ctrl.Accept())
	require.Eventually(t, func() bool { return h.ctrl.State().Accepting }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Hangup())
	h.waitPhase(t, PhaseIdle)

	require.Eventually(t, func() bool {
		return containsEvent(h.transport.events(), wire.EventCallReject)
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.media.canceledCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, h.media.opened())
	require.Nil(t, h.peers.last())
}

func TestControllerBusyRejectWhileMediaPending(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	h := newHarness(t, &fakeMedia{gate: gate})

	require.NoError(t, h.ctrl.Initiate(bob, wire.CallTypeVoice))
	h.waitPhase(t, PhaseCalling)

	h.transport.deliver(wire.EventCallIncoming, map[string]any{
		"caller":   map[string]any{"id": float64(3), "display_name": "Carol"},
		"callType": "voice",
		"offer":    map[string]any{"type": "offer", "sdp": "x"},
	})
	require.Eventually(t, func() bool {
		return containsEvent(h.transport.events(), wire.EventCallReject)
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, PhaseCalling, h.ctrl.State().Phase)

	// The first call still completes once its media arrives.
	close(gate)
	require.Eventually(t, func() bool {
		return containsEvent(h.transport.events(), wire.EventCallInitiate)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerRejectWithoutCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeMedia{})
	require.ErrorIs(t, h.ctrl.Accept(), ErrNoIncomingCall)
	require.ErrorIs(t, h.ctrl.Reject(), ErrNoIncomingCall)
	require.ErrorIs(t, h.ctrl.Initiate(bob, "screen"), ErrInvalidCallType)
}
