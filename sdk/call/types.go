// Package call implements one party's side of a one-to-one voice/video call:
// signaling over the relay, local media and a WebRTC peer connection.
//
// The call is a state machine. Reduce is a pure transition function over
// State; a Runtime executes the effects it returns (media, peer connection
// operations, signaling emits, timers) and reports results back as inputs
// stamped with the call generation, so results that arrive after the call
// they belong to has ended are recognized and discarded.
package call

import (
	"errors"
	"time"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// Timing constants shared with UI layers.
const (
	// AcceptTimeout is how long a caller rings before giving up.
	AcceptTimeout = 30 * time.Second
	// EndedSettle is how long the ended phase is shown before idle.
	EndedSettle = 1500 * time.Millisecond
	// RingtoneInterval is the repeat period of the incoming ringtone.
	RingtoneInterval = 2 * time.Second
	// RingbackInterval is the repeat period of the outgoing ringback tone.
	RingbackInterval = 3 * time.Second
	// ToastDismiss is the auto-dismiss delay for call notifications.
	ToastDismiss = 4 * time.Second
)

var (
	// ErrBusy is reported when a call is started while another is in progress.
	ErrBusy = errors.New("call already in progress")
	// ErrNoIncomingCall is reported when Accept or Reject find nothing ringing.
	ErrNoIncomingCall = errors.New("no incoming call")
	// ErrInvalidCallType is reported for call types other than voice/video.
	ErrInvalidCallType = errors.New("invalid call type")
)

// Phase is the externally visible call phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCalling
	PhaseIncoming
	PhaseConnected
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCalling:
		return "calling"
	case PhaseIncoming:
		return "incoming"
	case PhaseConnected:
		return "connected"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EndReason says why a call reached the ended phase.
type EndReason string

const (
	EndHangup      EndReason = "hangup"
	EndRemote      EndReason = "remote_ended"
	EndRejected    EndReason = "rejected"
	EndTimeout     EndReason = "timeout"
	EndPeerFailed  EndReason = "peer_failed"
	EndNegotiation EndReason = "negotiation_failed"
)

// State is the full call state. Only the reducer produces new values.
type State struct {
	Phase Phase
	// Generation increases with every call attempt, incoming or outgoing.
	Generation uint64
	CallID     string
	Outgoing   bool
	CallType   wire.CallType
	Remote     wire.UserSummary

	// RemoteOffer is the caller's offer while ringing on the callee side.
	RemoteOffer any
	// Accepting is set once the callee accepted and media is being acquired.
	Accepting bool
	// HaveMedia is set once local media for this generation is adopted.
	HaveMedia bool
	// SignalSent is set once call:initiate or call:accept went out; local
	// candidates gathered earlier wait in LocalCandidates.
	SignalSent      bool
	LocalCandidates []any
	// RemoteDescSet is set once the remote description is applied; remote
	// candidates received earlier wait in RemoteCandidates.
	RemoteDescSet    bool
	RemoteCandidates []any

	ConnectedAt time.Time
	Muted       bool
	VideoOff    bool
	EndReason   EndReason
}

// Duration is the time spent connected, measured to now.
func (s State) Duration(now time.Time) time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	if s.Phase != PhaseConnected {
		return 0
	}
	return now.Sub(s.ConnectedAt)
}

// Active reports whether a call occupies the line.
func (s State) Active() bool {
	return s.Phase != PhaseIdle
}

// PeerState is the subset of peer connection states the call reacts to.
type PeerState string

const (
	PeerConnecting   PeerState = "connecting"
	PeerConnected    PeerState = "connected"
	PeerDisconnected PeerState = "disconnected"
	PeerFailed       PeerState = "failed"
	PeerClosed       PeerState = "closed"
)

// TrackKind selects local tracks for enable/disable.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

type timerKind int

const (
	timerAccept timerKind = iota
	timerSettle
)
