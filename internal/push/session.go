// Package push provides live WebSocket delivery of newly persisted messages.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// EventNewMessage is the named push channel clients subscribe to.
const EventNewMessage = "newMessage"

// sendQueueSize bounds the per-session outbound buffer. Delivery is
// best-effort: a client that cannot drain its queue loses pushes and
// recovers through the message store on its next pull.
const sendQueueSize = 32

var (
	errSessionClosed = errors.New("session closed")
	errQueueFull     = errors.New("session send queue full")
)

// Event is the frame written to the push channel.
type Event struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// Session is one live push-channel connection bound to exactly one identity
// for its whole lifetime.
type Session interface {
	// ID is the transport-assigned session identifier.
	ID() string
	// Identity is the user this session delivers to.
	Identity() string
	// Push enqueues a message for delivery. It never blocks; it fails when
	// the session is closed or its queue is full.
	Push(msg domain.Message) error
	// Close tears the session down. Safe to call more than once.
	Close(reason string)
}

// wsSession implements Session over a WebSocket connection. Writes are
// funneled through a single writer goroutine so pushes for the same session
// go out in the order they were enqueued.
type wsSession struct {
	id       string
	identity string
	conn     *websocket.Conn
	out      chan domain.Message
	closed   chan struct{}
	once     sync.Once
}

func newWSSession(identity string, conn *websocket.Conn) *wsSession {
	return &wsSession{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		out:      make(chan domain.Message, sendQueueSize),
		closed:   make(chan struct{}),
	}
}

func (s *wsSession) ID() string       { return s.id }
func (s *wsSession) Identity() string { return s.identity }

func (s *wsSession) Push(msg domain.Message) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}
	select {
	case s.out <- msg:
		return nil
	case <-s.closed:
		return errSessionClosed
	default:
		return errQueueFull
	}
}

func (s *wsSession) Close(reason string) {
	s.once.Do(func() {
		close(s.closed)
		if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
			slog.Debug("Failed to close websocket", "error", err, "session_id", s.id)
		}
	})
}

// writeLoop drains the outbound queue onto the wire. It runs for the life
// of the connection; a write failure closes the session.
func (s *wsSession) writeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-s.out:
			data, err := json.Marshal(Event{Type: EventNewMessage, Message: msg})
			if err != nil {
				slog.Error("Failed to encode push event", "error", err, "session_id", s.id)
				continue
			}
			if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("Push write failed, closing session", "error", err, "session_id", s.id)
				s.Close("write failed")
				return
			}
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
