package supportchat

import "strings"

// DefaultChannelPrefix is prepended to the user id to form the channel name.
const DefaultChannelPrefix = "support-chat"

// ChannelName returns the per-user broadcast channel for userID.
func ChannelName(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return strings.TrimSuffix(prefix, ".") + "." + userID
}

// Channel event names.
const (
	EventNewMessage        = "new-message"
	EventSessionClosed     = "session-closed"
	EventSessionDeleted    = "session-deleted"
	EventMessagesCleared   = "messages-cleared"
	EventNewSessionCreated = "new-session-created"
	EventMessageDeleted    = "message-deleted"
	EventMessagesDeleted   = "messages-deleted"
)

// ChannelEvents lists every event a subscriber binds.
var ChannelEvents = []string{
	EventNewMessage,
	EventSessionClosed,
	EventSessionDeleted,
	EventMessagesCleared,
	EventNewSessionCreated,
	EventMessageDeleted,
	EventMessagesDeleted,
}

type NewMessagePayload struct {
	Message WireMessage `json:"message"`
}

type SessionClosedPayload struct {
	Session *SessionInfo `json:"session,omitempty"`
}

type SessionDeletedPayload struct {
	ClearMessages *bool `json:"clearMessages,omitempty"`
}

type MessagesClearedPayload struct{}

type NewSessionCreatedPayload struct{}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

type MessagesDeletedPayload struct {
	MessageIDs []string `json:"messageIds"`
}
