// Package api provides HTTP handlers for the chatline API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/push"
	"github.com/ashvetsov/chatline/internal/store"
)

// Handler provides common handler utilities and shared dependencies.
type Handler struct {
	repo   store.Repository
	router *push.Router
	isDev  bool
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, router *push.Router, isDev bool) *Handler {
	return &Handler{
		repo:   repo,
		router: router,
		isDev:  isDev,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"message": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a structured JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

// Fault maps an error onto the wire: ClientFault becomes 400 with its own
// message; everything else is a server fault whose detail is only exposed
// in development mode.
func (h *Handler) Fault(w http.ResponseWriter, err error) {
	if domain.IsClientFault(err) {
		Error(w, http.StatusBadRequest, domain.FaultMessage(err, "Bad request"))
		return
	}
	slog.Error("Request failed", "error", err)
	if h.isDev {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	Error(w, http.StatusInternalServerError, "Internal server error")
}
