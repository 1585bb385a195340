package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const writeRetryAttempts = 3

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL REFERENCES users(user_id),
		recipient_id TEXT NOT NULL REFERENCES users(user_id),
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair
		ON messages(sender_id, recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_pair_reverse
		ON messages(recipient_id, sender_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(0, lastSeen)
	user.CreatedAt = time.Unix(0, createdAt)
	user.UpdatedAt = time.Unix(0, updatedAt)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, writeRetryAttempts, func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username,
			user.LastSeenAt.UnixNano(), user.CreatedAt.UnixNano(), user.UpdatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	err := shared.RetryOnConflict(ctx, writeRetryAttempts, func() error {
		_, err := s.db.ExecContext(ctx, query, lastSeen.UnixNano(), time.Now().UnixNano(), userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// ListContacts returns every user except the requester, most recently seen first.
func (s *SQLiteStore) ListContacts(ctx context.Context, requesterID string) ([]domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id != ?
		ORDER BY last_seen_at DESC`

	rows, err := s.db.QueryContext(ctx, query, requesterID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var user domain.User
		var lastSeen, createdAt, updatedAt int64
		if err := rows.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		user.LastSeenAt = time.Unix(0, lastSeen)
		user.CreatedAt = time.Unix(0, createdAt)
		user.UpdatedAt = time.Unix(0, updatedAt)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return users, nil
}

// ListMessages returns the conversation between selfID and peerID oldest first.
// The id tiebreak keeps the order stable when two messages land on the same
// nanosecond.
func (s *SQLiteStore) ListMessages(ctx context.Context, selfID, peerID string) ([]domain.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, body, created_at
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, selfID, peerID, peerID, selfID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var rawID string
		var createdAt int64
		if err := rows.Scan(&rawID, &msg.SenderID, &msg.RecipientID, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse message id %q: %w", rawID, err)
		}
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// CreateMessage durably writes a new message and returns the stored record.
func (s *SQLiteStore) CreateMessage(ctx context.Context, senderID, recipientID, body string) (domain.Message, error) {
	id, err := uuid.NewV7() // time-ordered, so the id tiebreak follows creation order
	if err != nil {
		return domain.Message{}, fmt.Errorf("assign message id: %w", err)
	}
	msg := domain.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO messages (id, sender_id, recipient_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)`

	err = shared.RetryOnConflict(ctx, writeRetryAttempts, func() error {
		_, err := s.db.ExecContext(ctx, query,
			msg.ID.String(), msg.SenderID, msg.RecipientID, msg.Body, msg.CreatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
