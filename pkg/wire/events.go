// Package wire defines the Socket.IO event names and payload shapes shared by
// the relay server and the Go client SDK.
//
// Field names and casing match the browser client exactly; changing a JSON tag
// here is a protocol change.
package wire

import "fmt"

// Message events.
const (
	EventMessageSend      = "message:send"
	EventMessageReceive   = "message:receive"
	EventMessageDelivered = "message:delivered"
	EventMessageRead      = "message:read"
	EventMessageDelete    = "message:delete"
	EventMessageDeleted   = "message:deleted"
	EventMessageEdit      = "message:edit"
	EventMessageEdited    = "message:edited"
)

// Typing events.
const (
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Chat, group and status events.
const (
	EventChatJoin           = "chat:join"
	EventChatCreated        = "chat:created"
	EventChatNew            = "chat:new"
	EventGroupMemberAdded   = "group:memberAdded"
	EventGroupMemberRemoved = "group:memberRemoved"
	EventGroupUpdated       = "group:updated"
	EventStatusNew          = "status:new"
	EventStatusViewed       = "status:viewed"
)

// Call signaling events.
const (
	EventCallInitiate     = "call:initiate"
	EventCallIncoming     = "call:incoming"
	EventCallAccept       = "call:accept"
	EventCallAccepted     = "call:accepted"
	EventCallReject       = "call:reject"
	EventCallRejected     = "call:rejected"
	EventCallEnd          = "call:end"
	EventCallEnded        = "call:ended"
	EventCallICECandidate = "call:ice-candidate"
)

// Presence and transport events.
const (
	EventUserOnline = "user:online"
	// EventError is emitted to a socket right before the relay refuses it.
	EventError = "error"
)

// RoomName returns the broadcast room name for a chat.
func RoomName(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}
