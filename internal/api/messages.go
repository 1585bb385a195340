package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// MessageHandler handles message endpoints: contact listing, conversation
// history and send. Sending persists first, then triggers push delivery
// synchronously so pair-wise push order matches persistence order.
type MessageHandler struct {
	*Handler
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(base *Handler) *MessageHandler {
	return &MessageHandler{Handler: base}
}

// RegisterRoutes registers message routes. Path identifier parameters pass
// the identifier guard before any handler logic executes.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/messages", func(r chi.Router) {
		r.Get("/users", h.GetContacts)
		r.With(identity.RequireValidID("peerID")).Get("/{peerID}", h.GetMessages)
		r.With(identity.RequireValidID("peerID")).Post("/send/{peerID}", h.SendMessage)
	})
}

// contactResponse is the wire shape of a contact entry.
type contactResponse struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	LastSeenAt int64  `json:"last_seen_at"`
}

// GetContacts returns every user the requester can message.
func (h *MessageHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	requesterID := identity.UserIDFromContext(r.Context())

	contacts, err := h.repo.ListContacts(r.Context(), requesterID)
	if err != nil {
		h.Fault(w, domain.StoreFaultErr("Failed to load users", err))
		return
	}

	JSON(w, http.StatusOK, lo.Map(contacts, func(u domain.User, _ int) contactResponse {
		return contactResponse{
			UserID:     u.UserID,
			Username:   u.Username,
			LastSeenAt: u.LastSeenAt.Unix(),
		}
	}))
}

// GetMessages returns the ordered conversation history with the peer.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	selfID := identity.UserIDFromContext(r.Context())
	peerID := chi.URLParam(r, "peerID")

	messages, err := h.repo.ListMessages(r.Context(), selfID, peerID)
	if err != nil {
		h.Fault(w, domain.StoreFaultErr("Failed to load messages", err))
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	JSON(w, http.StatusOK, messages)
}

// sendRequest is the body of POST /api/messages/send/{peerID}.
type sendRequest struct {
	Body string `json:"body" validate:"required,max=4096"`
}

// SendMessage persists a new message and triggers live delivery to the
// recipient's sessions. The response carries the store-assigned record.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := identity.UserIDFromContext(r.Context())
	recipientID := chi.URLParam(r, "peerID")

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Fault(w, domain.ClientFaultf("Invalid request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		h.Fault(w, domain.ClientFaultf("Message body is required and must be at most 4096 characters"))
		return
	}

	recipient, err := h.repo.GetUser(r.Context(), recipientID)
	if err != nil {
		h.Fault(w, domain.StoreFaultErr("Failed to send message", err))
		return
	}
	if recipient == nil {
		h.Fault(w, domain.ClientFaultf("Recipient not found"))
		return
	}

	msg, err := h.repo.CreateMessage(r.Context(), senderID, recipientID, req.Body)
	if err != nil {
		h.Fault(w, domain.StoreFaultErr("Failed to send message", err))
		return
	}

	h.router.Deliver(r.Context(), msg)
	slog.Debug("Message persisted and routed",
		"message_id", msg.ID, "sender_id", senderID, "recipient_id", recipientID)

	JSON(w, http.StatusCreated, msg)
}
