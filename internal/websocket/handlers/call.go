package handlers

import (
	"context"
	"errors"

	"github.com/HassanDev-git/HK.Chat/internal/calls"
	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// CallInitiate rings every handle of the callee, or answers call:rejected on
// the callee's behalf when they are already in another call.
func CallInitiate(ctx context.Context, deps Deps, auth AuthContext, req wire.CallInitiateRequest) EventResult {
	if req.TargetUserID <= 0 {
		return EventResult{}
	}
	callType := req.CallType
	if !callType.Valid() {
		callType = wire.CallTypeVoice
	}

	call, err := deps.Calls().Begin(auth.UserID(), req.TargetUserID, callType)
	switch {
	case errors.Is(err, calls.ErrBusy):
		logger.Infof("Call from %d to %d refused: callee busy", auth.UserID(), req.TargetUserID)
		return emits(toUser(auth.UserID(), wire.EventCallRejected, wire.CallPeerPayload{UserID: req.TargetUserID}))
	case err != nil:
		logger.Warnf("Call from %d to %d refused: %v", auth.UserID(), req.TargetUserID, err)
		return EventResult{}
	}

	caller, err := deps.Users().UserSummary(ctx, auth.UserID())
	if err != nil {
		logger.Warnf("call:initiate: caller %d lookup failed: %v", auth.UserID(), err)
		caller = wire.UserSummary{ID: auth.UserID()}
	}

	logger.Infof("Call %s: %d ringing %d (%s)", call.ID, auth.UserID(), req.TargetUserID, callType)
	return emits(toUser(req.TargetUserID, wire.EventCallIncoming, wire.CallIncomingPayload{
		Caller:   caller,
		CallType: callType,
		Offer:    req.Offer,
	}))
}

// CallAccept forwards the callee's answer to the caller. The callee's other
// handles get call:ended so they stop ringing.
func CallAccept(ctx context.Context, deps Deps, auth AuthContext, req wire.CallAcceptRequest) EventResult {
	if req.CallerID <= 0 {
		return EventResult{}
	}
	if _, ok := deps.Calls().Accept(auth.UserID(), req.CallerID); !ok {
		logger.Debugf("call:accept from %d: no ringing call from %d on record", auth.UserID(), req.CallerID)
	}
	return emits(
		toUser(req.CallerID, wire.EventCallAccepted, wire.CallAcceptedPayload{
			UserID: auth.UserID(),
			Answer: req.Answer,
		}),
		toUserSkippingSelf(auth.UserID(), wire.EventCallEnded, wire.CallPeerPayload{UserID: req.CallerID}),
	)
}

// CallReject forwards a rejection to the caller.
func CallReject(ctx context.Context, deps Deps, auth AuthContext, req wire.CallRejectRequest) EventResult {
	if req.CallerID <= 0 {
		return EventResult{}
	}
	deps.Calls().Finish(auth.UserID(), req.CallerID)
	return emits(
		toUser(req.CallerID, wire.EventCallRejected, wire.CallPeerPayload{UserID: auth.UserID()}),
		toUserSkippingSelf(auth.UserID(), wire.EventCallEnded, wire.CallPeerPayload{UserID: req.CallerID}),
	)
}

// CallEnd forwards a hangup to the other party.
func CallEnd(ctx context.Context, deps Deps, auth AuthContext, req wire.CallEndRequest) EventResult {
	if req.TargetUserID <= 0 {
		return EventResult{}
	}
	if call, ok := deps.Calls().Finish(auth.UserID(), req.TargetUserID); ok {
		logger.Infof("Call %s ended by %d", call.ID, auth.UserID())
	}
	return emits(toUser(req.TargetUserID, wire.EventCallEnded, wire.CallPeerPayload{UserID: auth.UserID()}))
}

// CallICECandidate forwards a trickled ICE candidate to the other party.
func CallICECandidate(ctx context.Context, deps Deps, auth AuthContext, req wire.CallICECandidateRequest) EventResult {
	if req.TargetUserID <= 0 || req.Candidate == nil {
		return EventResult{}
	}
	return emits(toUser(req.TargetUserID, wire.EventCallICECandidate, wire.CallICECandidatePayload{
		Candidate: req.Candidate,
		From:      auth.UserID(),
	}))
}
