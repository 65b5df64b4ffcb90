package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the slice of the identity store the chat core reads and the
// presence fields it writes.
type User struct {
	Model
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	CollegeName    string    `json:"college_name"`
	ProfilePicture string    `json:"profile_picture"`
	IsVerified     bool      `json:"is_verified" gorm:"default:false"`
	IsOnline       bool      `json:"is_online" gorm:"default:false"`
	LastSeen       time.Time `json:"last_seen"`
}

// UserConnection is one direction of an accepted connection between two users.
type UserConnection struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ConnectionID uuid.UUID `gorm:"type:uuid;primaryKey" json:"connection_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ParticipantSummary is what a client sees of the other side of a conversation.
type ParticipantSummary struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	CollegeName    string    `json:"college_name"`
	ProfilePicture string    `json:"profile_picture"`
	IsOnline       bool      `json:"is_online"`
	LastSeen       time.Time `json:"last_seen"`
}

func (u *User) Summary() ParticipantSummary {
	return ParticipantSummary{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		CollegeName:    u.CollegeName,
		ProfilePicture: u.ProfilePicture,
		IsOnline:       u.IsOnline,
		LastSeen:       u.LastSeen,
	}
}
