package push

import (
	"context"
	"log/slog"

	"github.com/ashvetsov/chatline/internal/domain"
)

// Router pushes freshly persisted messages to the recipient's live sessions.
//
// Delivery is best-effort and at-most-once per session: the message store is
// the source of truth, an offline recipient catches up on its next pull, and
// a failed push to one session never affects the others. Deliver is called
// synchronously after each successful persist, and each session drains its
// queue in enqueue order, so pair-wise push order matches persistence order.
type Router struct {
	registry *Registry
}

// NewRouter creates a Router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Deliver pushes msg to every live session of its recipient. An empty live
// set is not an error — the recipient is offline. Deliver never blocks on
// client I/O; enqueue failures are logged as transient misses and dropped.
func (rt *Router) Deliver(ctx context.Context, msg domain.Message) {
	if ctx.Err() != nil {
		return
	}

	sessions := rt.registry.SessionsFor(msg.RecipientID)
	if len(sessions) == 0 {
		slog.Debug("Recipient offline, push skipped",
			"recipient_id", msg.RecipientID, "message_id", msg.ID)
		return
	}

	for _, sess := range sessions {
		if err := sess.Push(msg); err != nil {
			slog.Warn("Transient delivery miss",
				"error", err,
				"recipient_id", msg.RecipientID,
				"session_id", sess.ID(),
				"message_id", msg.ID)
		}
	}
}
