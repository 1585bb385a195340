// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashvetsov/chatline/internal/domain"
)

// Repository defines the interface for persisting users and messages.
// It is the durable source of truth: push delivery is best-effort, and a
// recipient that was offline recovers missed messages through ListMessages.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// ListContacts returns every user except the requester, most recently
	// seen first. This backs the contact sidebar.
	ListContacts(ctx context.Context, requesterID string) ([]domain.User, error)

	// ListMessages returns the full conversation between selfID and peerID,
	// in both directions, ordered oldest to newest (created_at, then id).
	ListMessages(ctx context.Context, selfID, peerID string) ([]domain.Message, error)

	// CreateMessage durably writes a new message, assigning its ID and
	// CreatedAt, and returns the stored record.
	CreateMessage(ctx context.Context, senderID, recipientID, body string) (domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
