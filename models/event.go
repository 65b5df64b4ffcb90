package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound realtime events.
const (
	EventSendMessage        = "send_message"
	EventTypingStart        = "typing_start"
	EventTypingStop         = "typing_stop"
	EventMarkRead           = "mark_read"
	EventConnectionRequest  = "connection_request"
	EventConnectionAccepted = "connection_accepted"
)

// Outbound realtime events.
const (
	EventNewMessage                     = "new_message"
	EventMessageSent                    = "message_sent"
	EventUserTyping                     = "user_typing"
	EventUserStoppedTyping              = "user_stopped_typing"
	EventMessagesRead                   = "messages_read"
	EventUserOnline                     = "user_online"
	EventUserOffline                    = "user_offline"
	EventNewConnectionRequest           = "new_connection_request"
	EventConnectionAcceptedNotification = "connection_accepted_notification"
	EventError                          = "error"
)

// Envelope is the frame exchanged on the realtime channel in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an outbound frame.
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type SendMessageEvent struct {
	RecipientID    uuid.UUID   `json:"recipient_id"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type,omitempty"`
	ConversationID *uuid.UUID  `json:"conversation_id,omitempty"`
	// ClientRef is echoed back on message_sent or error so the sender can
	// match the acknowledgment to its optimistic bubble.
	ClientRef string `json:"client_ref,omitempty"`
}

type TypingEvent struct {
	RecipientID    uuid.UUID  `json:"recipient_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

type MarkReadEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// RelayEvent carries connection-graph notifications owned by the identity
// store. Payload is forwarded untouched.
type RelayEvent struct {
	TargetUserID uuid.UUID       `json:"target_user_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type NewMessagePayload struct {
	Message        *Message  `json:"message"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ClientRef      string    `json:"client_ref,omitempty"`
}

type TypingPayload struct {
	UserID         uuid.UUID  `json:"user_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

type MessagesReadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ReaderID       uuid.UUID `json:"reader_id"`
	ReadAt         time.Time `json:"read_at"`
}

type PresencePayload struct {
	UserID   uuid.UUID  `json:"user_id"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type RelayPayload struct {
	FromUserID uuid.UUID       `json:"from_user_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Event     string `json:"event,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	ClientRef string `json:"client_ref,omitempty"`
}
