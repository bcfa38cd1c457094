package internal

import (
	"encoding/json"

	"relaychat/internal/storage"
)

// Inbound event names accepted from clients.
const (
	EventJoin          = "join"
	EventSendMessage   = "send-message"
	EventTyping        = "typing"
	EventReactMessage  = "react-message"
	EventEditMessage   = "edit-message"
	EventDeleteMessage = "delete-message"
)

// Outbound event names delivered to clients.
const (
	EventRecentMessages  = "recent-messages"
	EventNotification    = "notification"
	EventUserList        = "user-list"
	EventReceiveMessage  = "receive-message"
	EventTypers          = "typing"
	EventMessageReaction = "message-reaction"
	EventUpdateMessage   = "update-message"
	EventRemoveMessage   = "remove-message"
)

// Envelope is the JSON frame exchanged in both directions: an event name plus
// an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Member is one roster entry as clients see it.
type Member struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

// JoinPayload attaches a connection to a room under a display name.
type JoinPayload struct {
	Room     string `json:"room"`
	UserName string `json:"userName"`
}

// OutgoingMessage is the client-authored part of a send-message event.
type OutgoingMessage struct {
	Text     string `json:"text"`
	ReplyTo  string `json:"replyTo,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// SendMessagePayload carries a new message for a room.
type SendMessagePayload struct {
	Room    string          `json:"room"`
	Message OutgoingMessage `json:"message"`
}

// TypingPayload signals keystroke-level activity in a room.
type TypingPayload struct {
	Room string `json:"room"`
}

// ReactPayload attaches a reaction to an already delivered message.
type ReactPayload struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

// EditPayload replaces the text of an already delivered message.
type EditPayload struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

// DeletePayload removes an already delivered message from client views.
type DeletePayload struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
}

// ReactionBroadcast is the outbound shape of message-reaction.
type ReactionBroadcast struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

// UpdateBroadcast is the outbound shape of update-message.
type UpdateBroadcast struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

// RemoveBroadcast is the outbound shape of remove-message.
type RemoveBroadcast struct {
	MessageID string `json:"messageId"`
}

// MessageRecord aliases the stored record so callers outside the storage
// package work with a single message type.
type MessageRecord = storage.MessageRecord

func encodeEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}
