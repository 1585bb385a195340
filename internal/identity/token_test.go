package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), time.Hour)

	token, err := issuer.Mint("user-1", "alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), -time.Minute)

	token, err := issuer.Mint("user-1", "alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := issuer.Validate(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestTokenIssuer_RejectsWrongKey(t *testing.T) {
	minter := NewTokenIssuer([]byte("key-a"), time.Hour)
	verifier := NewTokenIssuer([]byte("key-b"), time.Hour)

	token, err := minter.Mint("user-1", "alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := verifier.Validate(token); err == nil {
		t.Error("Expected token signed with a different key to be rejected")
	}
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("Handler ran without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/messages/users", nil)
	w := httptest.NewRecorder()
	Middleware(issuer)(next).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestMiddleware_InjectsIdentity(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	token, err := issuer.Mint("user-7", "bob")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	var gotID, gotName string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserIDFromContext(r.Context())
		gotName = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/messages/users", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token})
	w := httptest.NewRecorder()
	Middleware(issuer)(next).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotID != "user-7" || gotName != "bob" {
		t.Errorf("Expected identity user-7/bob, got %q/%q", gotID, gotName)
	}
}
