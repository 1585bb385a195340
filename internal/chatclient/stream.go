package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/push"
	"github.com/coder/websocket"
)

// PushStream is a live subscription to the server's push channel. Subscribe
// returns a channel of incoming messages that closes when the stream ends;
// Unsubscribe is idempotent.
type PushStream interface {
	Subscribe(ctx context.Context) (<-chan domain.Message, error)
	Unsubscribe()
}

// WebSocketStream implements PushStream over the /ws endpoint.
type WebSocketStream struct {
	baseURL string
	token   string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketStream creates a stream for the given server base URL and token.
func NewWebSocketStream(baseURL, token string) *WebSocketStream {
	return &WebSocketStream{baseURL: baseURL, token: token}
}

func (s *WebSocketStream) wsURL() string {
	url := s.baseURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + "/ws?token=" + s.token
}

// Subscribe dials the push channel and starts decoding events. Messages
// arrive on the returned channel until the connection drops or Unsubscribe
// is called, at which point the channel is closed.
func (s *WebSocketStream) Subscribe(ctx context.Context) (<-chan domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil, fmt.Errorf("already subscribed")
	}

	conn, _, err := websocket.Dial(ctx, s.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	s.conn = conn

	ch := make(chan domain.Message, 16)
	go s.readLoop(ctx, conn, ch)
	return ch, nil
}

// Unsubscribe tears the connection down. Safe to call repeatedly and
// before Subscribe.
func (s *WebSocketStream) Unsubscribe() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "unsubscribed"); err != nil {
			slog.Debug("Failed to close push stream", "error", err)
		}
	}
}

func (s *WebSocketStream) readLoop(ctx context.Context, conn *websocket.Conn, ch chan<- domain.Message) {
	defer close(ch)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				slog.Debug("Push stream read ended", "error", err)
			}
			return
		}
		var event push.Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Debug("Dropping undecodable push frame", "error", err)
			continue
		}
		if event.Type != push.EventNewMessage {
			continue
		}
		select {
		case ch <- event.Message:
		case <-ctx.Done():
			return
		}
	}
}
