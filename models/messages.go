package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// MaxContentLength bounds message content unless configured lower.
	MaxContentLength = 2000
	// DeletedPlaceholder replaces the content of a soft-deleted message.
	DeletedPlaceholder = "This message was deleted"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

type Message struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID     `gorm:"type:uuid;not null;index:idx_message_conversation_created,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID     `gorm:"type:uuid;not null" json:"sender_id"`
	Content        string        `gorm:"type:text;not null" json:"content"`
	MessageType    MessageType   `gorm:"default:text" json:"message_type"`
	ReadBy         []ReadReceipt `gorm:"foreignKey:MessageID" json:"read_by"`
	IsDeleted      bool          `gorm:"default:false" json:"is_deleted"`
	CreatedAt      time.Time     `gorm:"index:idx_message_conversation_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BeforeCreate assigns a time-ordered id so that id breaks created_at ties.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return nil
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

func (ReadReceipt) TableName() string {
	return "message_reads"
}

func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MessageSummary is the last-message preview of a conversation.
type MessageSummary struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	SenderID  uuid.UUID `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:        m.ID,
		Content:   m.Content,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}

// SendMessageRequest is the body of a send, over REST or the realtime channel.
type SendMessageRequest struct {
	Content     string      `json:"content" conform:"trim" validate:"required"`
	MessageType MessageType `json:"message_type" validate:"omitempty,oneof=text image file"`
}

type SendMessageResponse struct {
	Message        *Message  `json:"message"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}
