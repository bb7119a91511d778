package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is a direct chat message between two users. Chat itself is a
// collaborator; it is stored here only as the action that triggers pushes.
type Message struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SenderID    string    `json:"senderId" gorm:"size:128;index;not null"`
	SenderName  string    `json:"senderName" gorm:"size:100"`
	RecipientID string    `json:"recipientId" gorm:"size:128;index;not null"`
	EventID     string    `json:"eventId,omitempty" gorm:"size:128;index"`
	Content     string    `json:"content" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
}
