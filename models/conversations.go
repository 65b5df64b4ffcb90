package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Conversation is the single pairwise chat between two users. ParticipantA is
// always the lower id so the pair index is order independent.
type Conversation struct {
	Model
	ParticipantA  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair,priority:1" json:"participant_a"`
	ParticipantB  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"participant_b"`
	LastMessageID *uuid.UUID           `gorm:"type:uuid" json:"last_message_id"`
	LastMessageAt time.Time            `gorm:"index" json:"last_message_at"`
	Unread        []ConversationUnread `gorm:"foreignKey:ConversationID" json:"-"`
}

// ConversationUnread is one participant's cached unread counter.
type ConversationUnread struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	UnreadCount    int       `gorm:"not null;default:0" json:"unread_count"`
}

// SortedPair orders two user ids the way conversations store them.
func SortedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the cached counter for userID, zero if none is loaded.
func (c *Conversation) UnreadFor(userID uuid.UUID) int {
	for _, u := range c.Unread {
		if u.UserID == userID {
			return u.UnreadCount
		}
	}
	return 0
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID            uuid.UUID           `json:"id"`
	Participant   *ParticipantSummary `json:"participant"`
	LastMessage   *MessageSummary     `json:"last_message"`
	LastMessageAt time.Time           `json:"last_message_at"`
	UnreadCount   int                 `json:"unread_count"`
}

type OpenConversationResponse struct {
	ConversationID uuid.UUID           `json:"conversation_id"`
	Participant    *ParticipantSummary `json:"participant"`
}

type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}
