package call

import (
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/actor"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// User commands.
type (
	cmdInitiate struct {
		actor.InputBase
		CallID   string
		Target   wire.UserSummary
		CallType wire.CallType
	}
	cmdAccept struct {
		actor.InputBase
	}
	cmdReject struct {
		actor.InputBase
	}
	cmdHangup struct {
		actor.InputBase
	}
	cmdToggleMute struct {
		actor.InputBase
	}
	cmdToggleVideo struct {
		actor.InputBase
	}
)

// Signaling events received from the relay.
type (
	evIncoming struct {
		actor.InputBase
		CallID   string
		Caller   wire.UserSummary
		CallType wire.CallType
		Offer    any
	}
	evAccepted struct {
		actor.InputBase
		From   int64
		Answer any
		At     time.Time
	}
	evRejected struct {
		actor.InputBase
		From int64
	}
	evRemoteEnded struct {
		actor.InputBase
		From int64
	}
	evRemoteCandidate struct {
		actor.InputBase
		From      int64
		Candidate any
	}
)

// Runtime results, stamped with the generation of the call that asked.
type (
	evMediaReady struct {
		actor.InputBase
		Gen uint64
	}
	evMediaFailed struct {
		actor.InputBase
		Gen uint64
		Err error
	}
	evOfferCreated struct {
		actor.InputBase
		Gen   uint64
		Offer any
	}
	evAnswerCreated struct {
		actor.InputBase
		Gen    uint64
		Answer any
		At     time.Time
	}
	evRemoteDescSet struct {
		actor.InputBase
		Gen uint64
	}
	evNegotiationFailed struct {
		actor.InputBase
		Gen uint64
		Err error
	}
	evLocalCandidate struct {
		actor.InputBase
		Gen       uint64
		Candidate any
	}
	evPeerState struct {
		actor.InputBase
		Gen   uint64
		State PeerState
	}
	evTimer struct {
		actor.InputBase
		Gen  uint64
		Kind timerKind
	}
)

// Effects executed by the runtime.
type (
	effAcquireMedia struct {
		actor.EffectBase
		Gen      uint64
		CallType wire.CallType
	}
	effReleaseMedia struct {
		actor.EffectBase
		Gen uint64
	}
	effCreatePeer struct {
		actor.EffectBase
		Gen uint64
	}
	effCreateOffer struct {
		actor.EffectBase
		Gen uint64
	}
	effCreateAnswer struct {
		actor.EffectBase
		Gen uint64
	}
	effSetRemoteDescription struct {
		actor.EffectBase
		Gen  uint64
		Desc any
	}
	effAddCandidates struct {
		actor.EffectBase
		Gen        uint64
		Candidates []any
	}
	effClosePeer struct {
		actor.EffectBase
		Gen uint64
	}
	effSetTrackEnabled struct {
		actor.EffectBase
		Gen     uint64
		Kind    TrackKind
		Enabled bool
	}
	effEmit struct {
		actor.EffectBase
		Event   string
		Payload any
	}
	effStartTimer struct {
		actor.EffectBase
		Gen   uint64
		Kind  timerKind
		After time.Duration
	}
	effCancelTimer struct {
		actor.EffectBase
		Kind timerKind
	}
	effReportError struct {
		actor.EffectBase
		Err error
	}
)
