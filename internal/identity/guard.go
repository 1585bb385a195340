package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Upstream callers that fail to substitute a real value tend to send the
// textual form of their missing-value sentinel. These must never reach the
// store as if they were identifiers.
var sentinelIDs = map[string]struct{}{
	"undefined": {},
	"null":      {},
	"NaN":       {},
}

// ValidateID checks that a raw path- or caller-supplied identifier is
// well-formed before it is used for store access or session lookup.
// It returns a ClientFault on rejection and passes the id through unchanged
// on success.
func ValidateID(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		slog.Debug("Identifier rejected: empty", "raw", raw)
		return domain.ClientFaultf("ID parameter is required")
	}
	if _, ok := sentinelIDs[trimmed]; ok {
		slog.Debug("Identifier rejected: sentinel value", "raw", trimmed)
		return domain.ClientFaultf("Invalid ID parameter")
	}
	if _, err := uuid.Parse(trimmed); err != nil {
		slog.Debug("Identifier rejected: malformed", "raw", trimmed)
		return domain.ClientFaultf("Invalid ID format")
	}
	return nil
}

// RequireValidID returns middleware that validates the named URL parameter
// before the handler runs. Rejections are answered with 400 and a
// structured {"message": ...} body; the handler is never invoked.
func RequireValidID(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := chi.URLParam(r, param)
			if err := ValidateID(raw); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"message":"` + domain.FaultMessage(err, "Invalid ID parameter") + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
