package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashvetsov/chatline/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestFault_ClientFault(t *testing.T) {
	h := NewHandler(nil, nil, false)
	w := httptest.NewRecorder()

	h.Fault(w, domain.ClientFaultf("Invalid ID parameter"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["message"] != "Invalid ID parameter" {
		t.Errorf("Expected caller-facing message, got %q", body["message"])
	}
}

func TestFault_StoreFaultHidesDetailInProduction(t *testing.T) {
	h := NewHandler(nil, nil, false)
	w := httptest.NewRecorder()

	h.Fault(w, domain.StoreFaultErr("Failed to load messages", errors.New("disk on fire")))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["message"] != "Internal server error" {
		t.Errorf("Expected generic message in production, got %q", body["message"])
	}
}

func TestFault_StoreFaultShowsDetailInDevelopment(t *testing.T) {
	h := NewHandler(nil, nil, true)
	w := httptest.NewRecorder()

	h.Fault(w, domain.StoreFaultErr("Failed to load messages", errors.New("disk on fire")))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["message"] == "Internal server error" {
		t.Error("Expected error detail in development mode")
	}
}
