package handlers

import (
	"context"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// DisconnectEffects computes the relay side effects of a closed handle.
//
// Typing markers started from the handle are cleared and a typing:stop is sent
// to their rooms. When lastHandle is set the user is gone entirely, so any
// call they were in is dropped and the peer receives call:ended.
func DisconnectEffects(ctx context.Context, deps Deps, auth AuthContext, lastHandle bool) EventResult {
	var out []Emission

	if deps.Typing() != nil {
		for _, chatID := range deps.Typing().ClearConn(auth.SocketID()) {
			out = append(out, toRoom(chatID, wire.EventTypingStop, wire.TypingPayload{
				ChatID: chatID,
				UserID: auth.UserID(),
			}))
		}
	}

	if lastHandle && deps.Calls() != nil {
		if call, ok := deps.Calls().Drop(auth.UserID()); ok {
			peer := call.Peer(auth.UserID())
			logger.Infof("Call %s: user %d disconnected; ending call with %d", call.ID, auth.UserID(), peer)
			out = append(out, toUser(peer, wire.EventCallEnded, wire.CallPeerPayload{UserID: auth.UserID()}))
		}
	}

	return NewEventResult(nil, out)
}
