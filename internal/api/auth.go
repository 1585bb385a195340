package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AuthHandler issues guest identities. Full account management lives with
// the external identity collaborator; this endpoint only has to hand out a
// trusted requester id so the rest of the system can be exercised.
type AuthHandler struct {
	*Handler
	issuer *identity.TokenIssuer
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *Handler, issuer *identity.TokenIssuer) *AuthHandler {
	return &AuthHandler{Handler: base, issuer: issuer}
}

// RegisterRoutes registers auth routes. These are the only unauthenticated
// API routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/auth/guest", h.Guest)
}

type guestRequest struct {
	Username string `json:"username"`
}

// Guest creates a fresh identity, persists the user record and returns a
// signed token (also set as a cookie for browser clients).
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if r.Body != nil {
		// The body is optional; a missing or malformed one means no
		// username preference.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	userID := uuid.NewString()
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = deriveGuestName(userID)
	}

	now := time.Now().UTC()
	if err := h.repo.UpsertUser(r.Context(), &domain.User{
		UserID:     userID,
		Username:   username,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		h.Fault(w, domain.StoreFaultErr("Failed to create guest user", err))
		return
	}

	token, err := h.issuer.Mint(userID, username)
	if err != nil {
		h.Fault(w, fmt.Errorf("mint guest token: %w", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     identity.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})

	JSON(w, http.StatusCreated, map[string]string{
		"user_id":  userID,
		"username": username,
		"token":    token,
	})
}

func deriveGuestName(userID string) string {
	if len(userID) >= 8 {
		return "guest-" + userID[:8]
	}
	return "guest"
}
