package handlers

import (
	"context"
	"testing"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	"github.com/stretchr/testify/require"
)

var testOffer = map[string]any{"type": "offer", "sdp": "v=0 offer"}

func TestCallInitiate_RingsCallee(t *testing.T) {
	deps, _, reg := newTestDeps()

	res := CallInitiate(context.Background(), deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{
		TargetUserID: 2,
		CallType:     wire.CallTypeVideo,
		Offer:        testOffer,
	})

	require.Len(t, res.Emissions(), 1)
	e := res.Emissions()[0]
	require.True(t, e.IsUser())
	require.Equal(t, int64(2), e.UserID())
	require.Equal(t, wire.EventCallIncoming, e.Event())
	p := e.Payload().(wire.CallIncomingPayload)
	require.Equal(t, int64(1), p.Caller.ID)
	require.Equal(t, "Alice", p.Caller.DisplayName)
	require.Equal(t, wire.CallTypeVideo, p.CallType)
	require.Equal(t, testOffer, p.Offer)

	c, ok := reg.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(1), c.CallerID)
}

func TestCallInitiate_BusyCalleeRejectsOnTheirBehalf(t *testing.T) {
	deps, _, _ := newTestDeps()
	ctx := context.Background()

	CallInitiate(ctx, deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2, CallType: wire.CallTypeVoice})
	res := CallInitiate(ctx, deps, NewAuthContext(3, "c1"), wire.CallInitiateRequest{TargetUserID: 2, CallType: wire.CallTypeVoice})

	require.Len(t, res.Emissions(), 1)
	e := res.Emissions()[0]
	require.Equal(t, wire.EventCallRejected, e.Event())
	require.Equal(t, int64(3), e.UserID())
	require.Equal(t, wire.CallPeerPayload{UserID: 2}, e.Payload())
}

func TestCallInitiate_UnknownTypeDefaultsToVoice(t *testing.T) {
	deps, _, _ := newTestDeps()
	res := CallInitiate(context.Background(), deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2, CallType: "hologram"})
	require.Equal(t, wire.CallTypeVoice, res.Emissions()[0].Payload().(wire.CallIncomingPayload).CallType)
}

func TestCallInitiate_SelfCallIgnored(t *testing.T) {
	deps, _, _ := newTestDeps()
	res := CallInitiate(context.Background(), deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 1})
	require.True(t, res.IsEmpty())
}

func TestCallAccept_ForwardsAnswerAndSilencesOtherTabs(t *testing.T) {
	deps, _, reg := newTestDeps()
	ctx := context.Background()
	answer := map[string]any{"type": "answer", "sdp": "v=0 answer"}

	CallInitiate(ctx, deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2, CallType: wire.CallTypeVideo, Offer: testOffer})
	res := CallAccept(ctx, deps, NewAuthContext(2, "b1"), wire.CallAcceptRequest{CallerID: 1, Answer: answer})

	require.Len(t, res.Emissions(), 2)
	toCaller := res.Emissions()[0]
	require.Equal(t, int64(1), toCaller.UserID())
	require.Equal(t, wire.EventCallAccepted, toCaller.Event())
	require.Equal(t, wire.CallAcceptedPayload{UserID: 2, Answer: answer}, toCaller.Payload())

	otherTabs := res.Emissions()[1]
	require.Equal(t, int64(2), otherTabs.UserID())
	require.True(t, otherTabs.SkipSelf())
	require.Equal(t, wire.EventCallEnded, otherTabs.Event())

	c, ok := reg.Get(1)
	require.True(t, ok)
	require.Equal(t, "active", c.Phase.String())
}

func TestCallReject_ClearsRegistry(t *testing.T) {
	deps, _, reg := newTestDeps()
	ctx := context.Background()

	CallInitiate(ctx, deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2})
	res := CallReject(ctx, deps, NewAuthContext(2, "b1"), wire.CallRejectRequest{CallerID: 1})

	require.Equal(t, wire.EventCallRejected, res.Emissions()[0].Event())
	require.Equal(t, wire.CallPeerPayload{UserID: 2}, res.Emissions()[0].Payload())
	_, ok := reg.Get(1)
	require.False(t, ok)
}

func TestCallEnd_NotifiesTarget(t *testing.T) {
	deps, _, reg := newTestDeps()
	ctx := context.Background()

	CallInitiate(ctx, deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2})
	res := CallEnd(ctx, deps, NewAuthContext(1, "a1"), wire.CallEndRequest{TargetUserID: 2})

	require.Len(t, res.Emissions(), 1)
	require.Equal(t, int64(2), res.Emissions()[0].UserID())
	require.Equal(t, wire.EventCallEnded, res.Emissions()[0].Event())
	require.Equal(t, wire.CallPeerPayload{UserID: 1}, res.Emissions()[0].Payload())
	_, ok := reg.Get(2)
	require.False(t, ok)
}

func TestCallICECandidate_TagsSender(t *testing.T) {
	deps, _, _ := newTestDeps()
	cand := map[string]any{"candidate": "candidate:1 1 udp 1 10.0.0.1 5000 typ host", "sdpMid": "0"}

	res := CallICECandidate(context.Background(), deps, NewAuthContext(2, "b1"), wire.CallICECandidateRequest{TargetUserID: 1, Candidate: cand})

	require.Equal(t, int64(1), res.Emissions()[0].UserID())
	require.Equal(t, wire.CallICECandidatePayload{Candidate: cand, From: 2}, res.Emissions()[0].Payload())

	res = CallICECandidate(context.Background(), deps, NewAuthContext(2, "b1"), wire.CallICECandidateRequest{TargetUserID: 1})
	require.True(t, res.IsEmpty())
}

func TestDisconnectEffects_LastHandleEndsCall(t *testing.T) {
	deps, tr, reg := newTestDeps()
	ctx := context.Background()

	CallInitiate(ctx, deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2})
	tr.Start(10, 1, "Alice", "a1")

	res := DisconnectEffects(ctx, deps, NewAuthContext(1, "a1"), true)

	require.Len(t, res.Emissions(), 2)
	require.Equal(t, wire.EventTypingStop, res.Emissions()[0].Event())
	require.Equal(t, int64(10), res.Emissions()[0].ChatID())
	require.Equal(t, wire.EventCallEnded, res.Emissions()[1].Event())
	require.Equal(t, int64(2), res.Emissions()[1].UserID())
	require.Equal(t, wire.CallPeerPayload{UserID: 1}, res.Emissions()[1].Payload())

	_, ok := reg.Get(2)
	require.False(t, ok)
	_, ok = tr.Current(10)
	require.False(t, ok)
}

func TestDisconnectEffects_OtherHandleKeepsCall(t *testing.T) {
	deps, _, reg := newTestDeps()
	ctx := context.Background()

	CallInitiate(ctx, deps, NewAuthContext(1, "a1"), wire.CallInitiateRequest{TargetUserID: 2})
	res := DisconnectEffects(ctx, deps, NewAuthContext(1, "a2"), false)

	require.True(t, res.IsEmpty())
	_, ok := reg.Get(1)
	require.True(t, ok)
}
