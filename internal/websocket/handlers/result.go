package handlers

// EmitScope describes which connections an emission targets.
type EmitScope int

const (
	emitScopeUnknown EmitScope = iota
	emitScopeRoom
	emitScopeUser
	emitScopeBroadcast
	emitScopeSelf
)

// Emission describes a single outbound event produced by a handler call.
type Emission struct {
	scope    EmitScope
	chatID   int64
	userID   int64
	event    string
	payload  any
	skipSelf bool
}

// toRoom targets every handle in the chat room except the caller's.
func toRoom(chatID int64, event string, payload any) Emission {
	return Emission{scope: emitScopeRoom, chatID: chatID, event: event, payload: payload, skipSelf: true}
}

// toUser targets every handle of the user.
func toUser(userID int64, event string, payload any) Emission {
	return Emission{scope: emitScopeUser, userID: userID, event: event, payload: payload}
}

// toUserSkippingSelf targets every handle of the user except the caller's.
func toUserSkippingSelf(userID int64, event string, payload any) Emission {
	return Emission{scope: emitScopeUser, userID: userID, event: event, payload: payload, skipSelf: true}
}

// toAllExceptSelf targets every connection except the caller's.
func toAllExceptSelf(event string, payload any) Emission {
	return Emission{scope: emitScopeBroadcast, event: event, payload: payload, skipSelf: true}
}

// toSelf targets only the caller's connection.
func toSelf(event string, payload any) Emission {
	return Emission{scope: emitScopeSelf, event: event, payload: payload}
}

// IsRoom reports whether the emission targets a chat room.
func (e Emission) IsRoom() bool { return e.scope == emitScopeRoom }

// IsUser reports whether the emission targets all handles of a user.
func (e Emission) IsUser() bool { return e.scope == emitScopeUser }

// IsBroadcast reports whether the emission targets every connection.
func (e Emission) IsBroadcast() bool { return e.scope == emitScopeBroadcast }

// IsSelf reports whether the emission targets only the caller.
func (e Emission) IsSelf() bool { return e.scope == emitScopeSelf }

// SkipSelf reports whether the caller's connection must not receive the event.
func (e Emission) SkipSelf() bool { return e.skipSelf }

// ChatID returns the target chat for room emissions.
func (e Emission) ChatID() int64 { return e.chatID }

// UserID returns the target user for user emissions.
func (e Emission) UserID() int64 { return e.userID }

// Event returns the Socket.IO event name.
func (e Emission) Event() string { return e.event }

// Payload returns the event payload.
func (e Emission) Payload() any { return e.payload }

// RoomOp is a membership command kind.
type RoomOp int

const (
	roomOpUnknown RoomOp = iota
	roomOpJoinSelf
	roomOpAddUser
	roomOpRemoveUser
)

// RoomCommand asks the room manager to change membership. Commands are applied
// before the emissions of the same result.
type RoomCommand struct {
	op     RoomOp
	chatID int64
	userID int64
}

func joinSelf(chatID int64) RoomCommand {
	return RoomCommand{op: roomOpJoinSelf, chatID: chatID}
}

func addUser(userID, chatID int64) RoomCommand {
	return RoomCommand{op: roomOpAddUser, chatID: chatID, userID: userID}
}

func removeUser(userID, chatID int64) RoomCommand {
	return RoomCommand{op: roomOpRemoveUser, chatID: chatID, userID: userID}
}

// IsJoinSelf reports whether the caller's handle joins the room.
func (c RoomCommand) IsJoinSelf() bool { return c.op == roomOpJoinSelf }

// IsAddUser reports whether every handle of UserID joins the room.
func (c RoomCommand) IsAddUser() bool { return c.op == roomOpAddUser }

// IsRemoveUser reports whether every handle of UserID leaves the room.
func (c RoomCommand) IsRemoveUser() bool { return c.op == roomOpRemoveUser }

// ChatID returns the room.
func (c RoomCommand) ChatID() int64 { return c.chatID }

// UserID returns the affected user for add/remove commands.
func (c RoomCommand) UserID() int64 { return c.userID }

// EventResult is the output of a handler invocation.
type EventResult struct {
	rooms []RoomCommand
	emits []Emission
}

// NewEventResult constructs a handler result.
func NewEventResult(rooms []RoomCommand, emits []Emission) EventResult {
	return EventResult{rooms: rooms, emits: emits}
}

// Rooms returns the membership commands, in application order.
func (r EventResult) Rooms() []RoomCommand { return r.rooms }

// Emissions returns the outbound events, in emission order.
func (r EventResult) Emissions() []Emission { return r.emits }

// IsEmpty reports whether the result does nothing.
func (r EventResult) IsEmpty() bool { return len(r.rooms) == 0 && len(r.emits) == 0 }

func emits(e ...Emission) EventResult { return EventResult{emits: e} }
