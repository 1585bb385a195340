// Package domain contains core domain types for the chatline application.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single direct message between two users.
// Messages are immutable once persisted; the store assigns ID and CreatedAt.
type Message struct {
	ID          uuid.UUID `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Before reports whether m sorts ahead of other in conversation order:
// creation time ascending, message ID as tiebreaker.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID.String() < other.ID.String()
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
