package wire

// SocketAuthPayload is the Socket.IO handshake `auth` object.
type SocketAuthPayload struct {
	// Token is the bearer JWT issued by the account service.
	Token string `json:"token"`
}

// ErrorPayload is sent with EventError before a socket is refused.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ChatRef carries just a chat id (chat:join, message:read, typing:*).
type ChatRef struct {
	// ChatID is the chat (and room) identifier.
	ChatID int64 `json:"chatId"`
}

// MessagePayload is used for both message:send and message:receive.
type MessagePayload struct {
	ChatID int64 `json:"chatId"`
	// Message is the persisted message object, relayed untouched.
	Message any `json:"message"`
}

// MessageDeliveredRequest is sent by a recipient device once it has a message.
type MessageDeliveredRequest struct {
	MessageID int64 `json:"messageId"`
	ChatID    int64 `json:"chatId"`
}

// MessageDeliveredPayload is relayed to the chat room.
type MessageDeliveredPayload struct {
	MessageID int64 `json:"messageId"`
	ChatID    int64 `json:"chatId"`
	// UserID is the recipient that acknowledged delivery.
	UserID int64 `json:"userId"`
}

// MessageReadPayload is relayed to the chat room when a member reads a chat.
type MessageReadPayload struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
}

// MessageDeletePayload is used for message:delete and message:deleted.
type MessageDeletePayload struct {
	MessageID int64 `json:"messageId"`
	ChatID    int64 `json:"chatId"`
}

// MessageEditPayload is used for message:edit and message:edited.
type MessageEditPayload struct {
	MessageID int64  `json:"messageId"`
	ChatID    int64  `json:"chatId"`
	Content   string `json:"content"`
}

// TypingPayload is relayed for typing:start and typing:stop.
type TypingPayload struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
	// UserName is the typer's display name; only set on typing:start.
	UserName string `json:"userName,omitempty"`
}

// ChatCreatedRequest announces a freshly created chat.
type ChatCreatedRequest struct {
	// Chat is the chat object as returned by the REST API. Its `members`
	// array (objects with an `id`) selects the recipients of chat:new.
	Chat map[string]any `json:"chat"`
}

// ChatNewPayload is delivered to every handle of every member.
type ChatNewPayload struct {
	Chat map[string]any `json:"chat"`
}

// GroupEventPayload is the free-form body of group:* events. The relay reads
// chatId and userId and forwards the whole object unchanged.
type GroupEventPayload map[string]any

// ChatID returns the chatId field, or 0 when absent.
func (p GroupEventPayload) ChatID() int64 { return Int64Field(p, "chatId") }

// UserID returns the userId field, or 0 when absent.
func (p GroupEventPayload) UserID() int64 { return Int64Field(p, "userId") }

// StatusPayload is the free-form body of status:new.
type StatusPayload map[string]any

// StatusViewedRequest is sent by a viewer.
type StatusViewedRequest struct {
	StatusID int64 `json:"statusId"`
	OwnerID  int64 `json:"ownerId"`
}

// UserSummary is the public profile subset attached to calls and status views.
type UserSummary struct {
	ID          int64   `json:"id"`
	DisplayName string  `json:"display_name"`
	ProfilePic  *string `json:"profile_pic"`
}

// StatusViewedPayload is delivered to the status owner's handles.
type StatusViewedPayload struct {
	StatusID int64       `json:"statusId"`
	Viewer   UserSummary `json:"viewer"`
}

// PresencePayload is broadcast on online/offline transitions.
type PresencePayload struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
	// LastSeen is an RFC 3339 timestamp, set only when going offline.
	LastSeen string `json:"lastSeen,omitempty"`
}
