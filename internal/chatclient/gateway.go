// Package chatclient implements the client side of chatline: the message
// gateway, the push subscription and the per-client conversation cache that
// reconciles pulled history with the live stream.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ashvetsov/chatline/internal/domain"
)

// Contact is one entry of the contact list.
type Contact struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	LastSeenAt int64  `json:"last_seen_at"`
}

// Gateway is the client's view of the message store: pull-based listing and
// durable message creation.
type Gateway interface {
	ListUsers(ctx context.Context) ([]Contact, error)
	ListMessages(ctx context.Context, peerID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, peerID, body string) (domain.Message, error)
}

// HTTPGateway implements Gateway against the chatline HTTP API.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPGateway creates a gateway for the given server base URL and access token.
func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ListUsers pulls the contact list.
func (g *HTTPGateway) ListUsers(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := g.doJSON(ctx, http.MethodGet, "/api/messages/users", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// ListMessages pulls the ordered conversation history with peerID.
func (g *HTTPGateway) ListMessages(ctx context.Context, peerID string) ([]domain.Message, error) {
	var messages []domain.Message
	if err := g.doJSON(ctx, http.MethodGet, "/api/messages/"+peerID, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage persists a message to peerID and returns the store-assigned record.
func (g *HTTPGateway) SendMessage(ctx context.Context, peerID, body string) (domain.Message, error) {
	payload := map[string]string{"body": body}
	var created domain.Message
	if err := g.doJSON(ctx, http.MethodPost, "/api/messages/send/"+peerID, payload, &created); err != nil {
		return domain.Message{}, err
	}
	return created, nil
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var fault struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&fault)
		if fault.Message == "" {
			fault.Message = resp.Status
		}
		if resp.StatusCode < 500 {
			return domain.ClientFaultf("%s", fault.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, fault.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GuestLogin asks the server for a fresh guest identity and returns its
// user id and access token.
func GuestLogin(ctx context.Context, baseURL, username string) (userID, token string, err error) {
	payload, _ := json.Marshal(map[string]string{"username": username})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/auth/guest", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build guest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		return "", "", fmt.Errorf("guest login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("guest login: unexpected status %s", resp.Status)
	}

	var created struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", "", fmt.Errorf("decode guest response: %w", err)
	}
	return created.UserID, created.Token, nil
}
