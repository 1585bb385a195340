package chatclient

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/identity"
)

// Cache holds one client's conversation state: the loaded history for the
// currently selected peer, the contact list, loading flags and the push
// subscription lifecycle.
//
// Pulls and pushed events both feed the same state, and their relative
// order is not guaranteed. The cache therefore de-duplicates by message id
// and drops pull results that resolve after the selection has moved on.
type Cache struct {
	gateway Gateway
	stream  PushStream

	mu                sync.Mutex
	messages          []domain.Message
	users             []Contact
	selectedPeer      string
	isLoadingUsers    bool
	isLoadingMessages bool

	// loadGen invalidates in-flight history pulls when the selection changes.
	loadGen uint64

	subscribed bool
	subCancel  context.CancelFunc
	subDone    chan struct{}
}

// NewCache creates a conversation cache over the given gateway and push stream.
func NewCache(gateway Gateway, stream PushStream) *Cache {
	return &Cache{gateway: gateway, stream: stream}
}

// SelectPeer switches the active conversation. An empty or sentinel or
// malformed identity is rejected with a ClientFault and the previous
// selection stays untouched. On acceptance the previous push filter is
// unsubscribed, the history is cleared and reloaded, and a fresh
// subscription is opened.
func (c *Cache) SelectPeer(ctx context.Context, peerID string) error {
	if err := identity.ValidateID(peerID); err != nil {
		return err
	}

	c.Unsubscribe()

	c.mu.Lock()
	c.selectedPeer = peerID
	c.messages = nil
	c.loadGen++
	c.mu.Unlock()

	if err := c.Subscribe(ctx); err != nil {
		slog.Warn("Push subscription failed, history will be pull-only", "error", err)
	}
	return c.LoadMessages(ctx, peerID)
}

// SelectedPeer returns the active peer identity, or "" when none is selected.
func (c *Cache) SelectedPeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedPeer
}

// LoadUsers pulls the contact list and replaces the cached one. The loading
// flag is released on every exit path.
func (c *Cache) LoadUsers(ctx context.Context) error {
	c.mu.Lock()
	c.isLoadingUsers = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.isLoadingUsers = false
		c.mu.Unlock()
	}()

	users, err := c.gateway.ListUsers(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.users = users
	c.mu.Unlock()
	return nil
}

// LoadMessages pulls the conversation history with peer. A result that
// resolves after the selection has changed is discarded: it must never
// overwrite the newer conversation.
func (c *Cache) LoadMessages(ctx context.Context, peerID string) error {
	if err := identity.ValidateID(peerID); err != nil {
		return err
	}

	c.mu.Lock()
	c.isLoadingMessages = true
	gen := c.loadGen
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.isLoadingMessages = false
		c.mu.Unlock()
	}()

	history, err := c.gateway.ListMessages(ctx, peerID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadGen != gen || c.selectedPeer != peerID {
		slog.Debug("Discarding stale history pull", "peer_id", peerID)
		return nil
	}
	// Pushes may have landed while the pull was in flight; merge rather
	// than replace so neither copy is lost and no id appears twice.
	c.messages = mergeMessages(history, c.messages)
	return nil
}

// Send persists body to the selected peer and appends the server-confirmed
// record. Without a valid selection it is a ClientFault and no request is
// issued; a persistence failure appends nothing.
func (c *Cache) Send(ctx context.Context, body string) (domain.Message, error) {
	c.mu.Lock()
	peerID := c.selectedPeer
	c.mu.Unlock()

	if err := identity.ValidateID(peerID); err != nil {
		return domain.Message{}, domain.ClientFaultf("Please select a user first")
	}

	msg, err := c.gateway.SendMessage(ctx, peerID, body)
	if err != nil {
		return domain.Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The selection may have moved while the request was in flight; the
	// record then belongs to a conversation we no longer display.
	if c.selectedPeer == peerID {
		c.messages = mergeMessages(c.messages, []domain.Message{msg})
	}
	return msg, nil
}

// Subscribe opens the push subscription and starts filtering incoming
// messages into the cache. Subscribing while subscribed is a no-op.
func (c *Cache) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = true
	c.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := c.stream.Subscribe(subCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.subscribed = false
		c.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.subCancel = cancel
	c.subDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for msg := range ch {
			c.applyPush(msg)
		}
	}()
	return nil
}

// Unsubscribe removes the push listener. Idempotent; it waits for the
// listener to stop so no append can race a following Subscribe.
func (c *Cache) Unsubscribe() {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return
	}
	c.subscribed = false
	cancel := c.subCancel
	done := c.subDone
	c.subCancel = nil
	c.subDone = nil
	c.mu.Unlock()

	c.stream.Unsubscribe()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// applyPush admits a pushed message if and only if it was sent by the
// currently selected peer. Anything else is discarded: the cache only
// represents the single active conversation.
func (c *Cache) applyPush(msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectedPeer == "" || msg.SenderID != c.selectedPeer {
		return
	}
	c.messages = mergeMessages(c.messages, []domain.Message{msg})
}

// Messages returns a snapshot of the active conversation.
func (c *Cache) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Users returns a snapshot of the contact list.
func (c *Cache) Users() []Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Contact, len(c.users))
	copy(out, c.users)
	return out
}

// IsLoadingUsers reports whether a contact pull is in flight.
func (c *Cache) IsLoadingUsers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isLoadingUsers
}

// IsLoadingMessages reports whether a history pull is in flight.
func (c *Cache) IsLoadingMessages() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isLoadingMessages
}

// mergeMessages combines two already-consistent message sets into one
// sequence ordered by creation time (id as tiebreak) with each id admitted
// exactly once.
func mergeMessages(a, b []domain.Message) []domain.Message {
	merged := make([]domain.Message, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, set := range [][]domain.Message{a, b} {
		for _, msg := range set {
			key := msg.ID.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, msg)
		}
	}
	// Insertion sort keeps this cheap: both inputs are already ordered and
	// the unsorted tail is almost always a single pushed message.
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].Before(merged[j-1]); j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	return merged
}
