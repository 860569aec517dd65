package call

import (
	"fmt"

	"github.com/HassanDev-git/HK.Chat/internal/actor"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// Reduce is the call state transition function. It never blocks and never
// performs I/O; everything the call needs done is returned as effects.
func Reduce(s State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdInitiate:
		return initiate(s, in)
	case cmdAccept:
		return accept(s)
	case cmdReject:
		return reject(s)
	case cmdHangup:
		return hangup(s)
	case cmdToggleMute:
		return toggleMute(s)
	case cmdToggleVideo:
		return toggleVideo(s)

	case evIncoming:
		return incoming(s, in)
	case evAccepted:
		return accepted(s, in)
	case evRejected:
		if s.Phase != PhaseCalling || in.From != s.Remote.ID {
			return s, nil
		}
		return end(s, EndRejected, false)
	case evRemoteEnded:
		if !inCall(s) || in.From != s.Remote.ID {
			return s, nil
		}
		return end(s, EndRemote, false)
	case evRemoteCandidate:
		return remoteCandidate(s, in)

	case evMediaReady:
		return mediaReady(s, in)
	case evMediaFailed:
		return mediaFailed(s, in)
	case evOfferCreated:
		return offerCreated(s, in)
	case evAnswerCreated:
		return answerCreated(s, in)
	case evRemoteDescSet:
		return remoteDescSet(s, in)
	case evNegotiationFailed:
		if !live(s, in.Gen) {
			return s, nil
		}
		next, effects := end(s, EndNegotiation, notifyRemote(s))
		return next, append(effects, effReportError{Err: fmt.Errorf("negotiation: %w", in.Err)})
	case evLocalCandidate:
		return localCandidate(s, in)
	case evPeerState:
		if !live(s, in.Gen) {
			return s, nil
		}
		switch in.State {
		case PeerFailed, PeerDisconnected, PeerClosed:
			return end(s, EndPeerFailed, notifyRemote(s))
		}
		return s, nil
	case evTimer:
		return timer(s, in)
	}
	return s, nil
}

func initiate(s State, in cmdInitiate) (State, []actor.Effect) {
	if s.Phase != PhaseIdle {
		return s, []actor.Effect{effReportError{Err: ErrBusy}}
	}
	if !in.CallType.Valid() {
		return s, []actor.Effect{effReportError{Err: ErrInvalidCallType}}
	}
	next := State{
		Phase:      PhaseCalling,
		Generation: s.Generation + 1,
		CallID:     in.CallID,
		Outgoing:   true,
		CallType:   in.CallType,
		Remote:     in.Target,
	}
	return next, []actor.Effect{effAcquireMedia{Gen: next.Generation, CallType: in.CallType}}
}

func incoming(s State, in evIncoming) (State, []actor.Effect) {
	if s.Phase != PhaseIdle {
		// Busy: the current call is left alone.
		return s, []actor.Effect{emit(wire.EventCallReject, wire.CallRejectRequest{CallerID: in.Caller.ID})}
	}
	next := State{
		Phase:       PhaseIncoming,
		Generation:  s.Generation + 1,
		CallID:      in.CallID,
		CallType:    in.CallType,
		Remote:      in.Caller,
		RemoteOffer: in.Offer,
	}
	return next, nil
}

func accept(s State) (State, []actor.Effect) {
	if s.Phase != PhaseIncoming {
		return s, []actor.Effect{effReportError{Err: ErrNoIncomingCall}}
	}
	if s.Accepting {
		return s, nil
	}
	s.Accepting = true
	return s, []actor.Effect{effAcquireMedia{Gen: s.Generation, CallType: s.CallType}}
}

func reject(s State) (State, []actor.Effect) {
	if s.Phase != PhaseIncoming {
		return s, []actor.Effect{effReportError{Err: ErrNoIncomingCall}}
	}
	effects := []actor.Effect{emit(wire.EventCallReject, wire.CallRejectRequest{CallerID: s.Remote.ID})}
	effects = append(effects, release(s)...)
	return idleAfter(s), effects
}

func hangup(s State) (State, []actor.Effect) {
	switch s.Phase {
	case PhaseIncoming:
		return reject(s)
	case PhaseCalling, PhaseConnected:
		return end(s, EndHangup, notifyRemote(s))
	}
	return s, nil
}

func toggleMute(s State) (State, []actor.Effect) {
	if !inCall(s) {
		return s, nil
	}
	s.Muted = !s.Muted
	if !s.HaveMedia {
		return s, nil
	}
	return s, []actor.Effect{effSetTrackEnabled{Gen: s.Generation, Kind: TrackAudio, Enabled: !s.Muted}}
}

func toggleVideo(s State) (State, []actor.Effect) {
	if !inCall(s) || s.CallType != wire.CallTypeVideo {
		return s, nil
	}
	s.VideoOff = !s.VideoOff
	if !s.HaveMedia {
		return s, nil
	}
	return s, []actor.Effect{effSetTrackEnabled{Gen: s.Generation, Kind: TrackVideo, Enabled: !s.VideoOff}}
}

func accepted(s State, in evAccepted) (State, []actor.Effect) {
	if s.Phase != PhaseCalling || !s.SignalSent || in.From != s.Remote.ID {
		return s, nil
	}
	s.Phase = PhaseConnected
	s.ConnectedAt = in.At
	return s, []actor.Effect{
		effCancelTimer{Kind: timerAccept},
		effSetRemoteDescription{Gen: s.Generation, Desc: in.Answer},
	}
}

func remoteCandidate(s State, in evRemoteCandidate) (State, []actor.Effect) {
	if !inCall(s) || in.From != s.Remote.ID {
		return s, nil
	}
	if s.RemoteDescSet {
		return s, []actor.Effect{effAddCandidates{Gen: s.Generation, Candidates: []any{in.Candidate}}}
	}
	s.RemoteCandidates = append(append([]any(nil), s.RemoteCandidates...), in.Candidate)
	return s, nil
}

func mediaReady(s State, in evMediaReady) (State, []actor.Effect) {
	wanted := live(s, in.Gen) && !s.HaveMedia && (s.Outgoing || s.Accepting)
	if !wanted {
		return s, []actor.Effect{effReleaseMedia{Gen: in.Gen}}
	}
	s.HaveMedia = true
	effects := []actor.Effect{effCreatePeer{Gen: s.Generation}}
	if s.Muted {
		effects = append(effects, effSetTrackEnabled{Gen: s.Generation, Kind: TrackAudio, Enabled: false})
	}
	if s.VideoOff {
		effects = append(effects, effSetTrackEnabled{Gen: s.Generation, Kind: TrackVideo, Enabled: false})
	}
	if s.Outgoing {
		effects = append(effects, effCreateOffer{Gen: s.Generation})
	} else {
		effects = append(effects, effSetRemoteDescription{Gen: s.Generation, Desc: s.RemoteOffer})
	}
	return s, effects
}

func mediaFailed(s State, in evMediaFailed) (State, []actor.Effect) {
	if !live(s, in.Gen) || s.HaveMedia {
		return s, nil
	}
	var effects []actor.Effect
	if !s.Outgoing {
		effects = append(effects, emit(wire.EventCallReject, wire.CallRejectRequest{CallerID: s.Remote.ID}))
	}
	effects = append(effects, release(s)...)
	effects = append(effects, effReportError{Err: fmt.Errorf("acquire media: %w", in.Err)})
	return idleAfter(s), effects
}

func offerCreated(s State, in evOfferCreated) (State, []actor.Effect) {
	if !live(s, in.Gen) || s.Phase != PhaseCalling || s.SignalSent {
		return s, nil
	}
	s.SignalSent = true
	effects := []actor.Effect{emit(wire.EventCallInitiate, wire.CallInitiateRequest{
		TargetUserID: s.Remote.ID,
		CallType:     s.CallType,
		Offer:        in.Offer,
	})}
	effects = append(effects, flushLocal(&s)...)
	effects = append(effects, effStartTimer{Gen: s.Generation, Kind: timerAccept, After: AcceptTimeout})
	return s, effects
}

func answerCreated(s State, in evAnswerCreated) (State, []actor.Effect) {
	if !live(s, in.Gen) || s.Phase != PhaseIncoming || s.SignalSent {
		return s, nil
	}
	s.SignalSent = true
	s.Phase = PhaseConnected
	s.ConnectedAt = in.At
	s.Accepting = false
	s.RemoteOffer = nil
	effects := []actor.Effect{emit(wire.EventCallAccept, wire.CallAcceptRequest{
		CallerID: s.Remote.ID,
		Answer:   in.Answer,
	})}
	return s, append(effects, flushLocal(&s)...)
}

func remoteDescSet(s State, in evRemoteDescSet) (State, []actor.Effect) {
	if !live(s, in.Gen) || s.RemoteDescSet {
		return s, nil
	}
	s.RemoteDescSet = true
	var effects []actor.Effect
	if len(s.RemoteCandidates) > 0 {
		effects = append(effects, effAddCandidates{Gen: s.Generation, Candidates: s.RemoteCandidates})
		s.RemoteCandidates = nil
	}
	if s.Phase == PhaseIncoming {
		effects = append(effects, effCreateAnswer{Gen: s.Generation})
	}
	return s, effects
}

func localCandidate(s State, in evLocalCandidate) (State, []actor.Effect) {
	if !live(s, in.Gen) {
		return s, nil
	}
	if !s.SignalSent {
		s.LocalCandidates = append(append([]any(nil), s.LocalCandidates...), in.Candidate)
		return s, nil
	}
	return s, []actor.Effect{emitCandidate(s, in.Candidate)}
}

func timer(s State, in evTimer) (State, []actor.Effect) {
	if in.Gen != s.Generation {
		return s, nil
	}
	switch in.Kind {
	case timerAccept:
		if s.Phase == PhaseCalling {
			return end(s, EndTimeout, true)
		}
	case timerSettle:
		if s.Phase == PhaseEnded {
			return idleAfter(s), nil
		}
	}
	return s, nil
}

// end moves an active call to the ended phase, releasing everything it holds.
// notify sends call:end to the remote party.
func end(s State, reason EndReason, notify bool) (State, []actor.Effect) {
	var effects []actor.Effect
	if notify {
		effects = append(effects, emit(wire.EventCallEnd, wire.CallEndRequest{TargetUserID: s.Remote.ID}))
	}
	effects = append(effects, effCancelTimer{Kind: timerAccept})
	effects = append(effects, release(s)...)
	effects = append(effects, effStartTimer{Gen: s.Generation, Kind: timerSettle, After: EndedSettle})

	s.Phase = PhaseEnded
	s.EndReason = reason
	s.Accepting = false
	s.HaveMedia = false
	s.RemoteOffer = nil
	s.LocalCandidates = nil
	s.RemoteCandidates = nil
	return s, effects
}

func release(s State) []actor.Effect {
	return []actor.Effect{
		effClosePeer{Gen: s.Generation},
		effReleaseMedia{Gen: s.Generation},
	}
}

func flushLocal(s *State) []actor.Effect {
	effects := make([]actor.Effect, 0, len(s.LocalCandidates))
	for _, c := range s.LocalCandidates {
		effects = append(effects, emitCandidate(*s, c))
	}
	s.LocalCandidates = nil
	return effects
}

func emitCandidate(s State, candidate any) actor.Effect {
	return emit(wire.EventCallICECandidate, wire.CallICECandidateRequest{
		TargetUserID: s.Remote.ID,
		Candidate:    candidate,
	})
}

func emit(event string, payload any) actor.Effect {
	return effEmit{Event: event, Payload: payload}
}

// idleAfter resets to idle, keeping the generation counter.
func idleAfter(s State) State {
	return State{Generation: s.Generation}
}

func inCall(s State) bool {
	return s.Phase == PhaseCalling || s.Phase == PhaseIncoming || s.Phase == PhaseConnected
}

// live reports whether a runtime result for gen still belongs to the call.
func live(s State, gen uint64) bool {
	return gen == s.Generation && inCall(s)
}

// notifyRemote reports whether the other party knows about the call: the
// caller once call:initiate went out, the callee always.
func notifyRemote(s State) bool {
	return s.SignalSent || !s.Outgoing
}
