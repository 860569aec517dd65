package websocket

import (
	"context"
	"sort"

	"github.com/HassanDev-git/HK.Chat/internal/websocket/handlers"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

// route decodes a raw event argument and runs its handler.
type route func(ctx context.Context, deps handlers.Deps, auth handlers.AuthContext, raw any) (handlers.EventResult, error)

func onTypedEvent[Req any](
	handler func(context.Context, handlers.Deps, handlers.AuthContext, Req) handlers.EventResult,
) route {
	return func(ctx context.Context, deps handlers.Deps, auth handlers.AuthContext, raw any) (handlers.EventResult, error) {
		var req Req
		if err := wire.Decode(raw, &req); err != nil {
			return handlers.EventResult{}, err
		}
		return handler(ctx, deps, auth, req), nil
	}
}

// defaultRoutes is the client event table.
func defaultRoutes() map[string]route {
	return map[string]route{
		wire.EventMessageSend:      onTypedEvent(handlers.MessageSend),
		wire.EventMessageDelivered: onTypedEvent(handlers.MessageDelivered),
		wire.EventMessageRead:      onTypedEvent(handlers.MessageRead),
		wire.EventMessageDelete:    onTypedEvent(handlers.MessageDelete),
		wire.EventMessageEdit:      onTypedEvent(handlers.MessageEdit),

		wire.EventTypingStart: onTypedEvent(handlers.TypingStart),
		wire.EventTypingStop:  onTypedEvent(handlers.TypingStop),

		wire.EventChatJoin:           onTypedEvent(handlers.ChatJoin),
		wire.EventChatCreated:        onTypedEvent(handlers.ChatCreated),
		wire.EventGroupMemberAdded:   onTypedEvent(handlers.GroupMemberAdded),
		wire.EventGroupMemberRemoved: onTypedEvent(handlers.GroupMemberRemoved),
		wire.EventGroupUpdated:       onTypedEvent(handlers.GroupUpdated),
		wire.EventStatusNew:          onTypedEvent(handlers.StatusNew),
		wire.EventStatusViewed:       onTypedEvent(handlers.StatusViewed),

		wire.EventCallInitiate:     onTypedEvent(handlers.CallInitiate),
		wire.EventCallAccept:       onTypedEvent(handlers.CallAccept),
		wire.EventCallReject:       onTypedEvent(handlers.CallReject),
		wire.EventCallEnd:          onTypedEvent(handlers.CallEnd),
		wire.EventCallICECandidate: onTypedEvent(handlers.CallICECandidate),
	}
}

func routeNames(routes map[string]route) []string {
	out := make([]string, 0, len(routes))
	for name := range routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func getFirstAnyWithAck(data []any) (any, func(...any)) {
	var ack func(...any)
	if len(data) == 0 {
		return nil, nil
	}
	if cb, ok := data[len(data)-1].(func(...any)); ok {
		ack = cb
		data = data[:len(data)-1]
	} else if cb, ok := data[len(data)-1].(socket.Ack); ok {
		ack = func(args ...any) {
			cb(args, nil)
		}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, ack
	}
	return data[0], ack
}
