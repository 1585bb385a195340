package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/ashvetsov/chatline/internal/identity"
	"github.com/ashvetsov/chatline/internal/push"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// fakeRepo is an in-memory store.Repository for handler tests.
type fakeRepo struct {
	mu       sync.Mutex
	users    map[string]domain.User
	messages []domain.Message

	createCalls int
	listCalls   int
	failCreate  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]domain.User)}
}

func (f *fakeRepo) addUser(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.users[id] = domain.User{UserID: id, Username: username, LastSeenAt: time.Now()}
	return id
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.UserID] = *user
	return nil
}

func (f *fakeRepo) UpdateLastSeen(context.Context, string, time.Time) error { return nil }

func (f *fakeRepo) ListContacts(_ context.Context, requesterID string) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.User
	for id, u := range f.users {
		if id != requesterID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListMessages(_ context.Context, selfID, peerID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []domain.Message
	for _, m := range f.messages {
		if (m.SenderID == selfID && m.RecipientID == peerID) ||
			(m.SenderID == peerID && m.RecipientID == selfID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, senderID, recipientID, body string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate != nil {
		return domain.Message{}, f.failCreate
	}
	id, _ := uuid.NewV7()
	msg := domain.Message{
		ID: id, SenderID: senderID, RecipientID: recipientID,
		Body: body, CreatedAt: time.Now().UTC(),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

// recordingSession implements push.Session for delivery assertions.
type recordingSession struct {
	id       string
	identity string
	mu       sync.Mutex
	pushed   []domain.Message
}

func (r *recordingSession) ID() string       { return r.id }
func (r *recordingSession) Identity() string { return r.identity }
func (r *recordingSession) Close(string)     {}
func (r *recordingSession) Push(msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, msg)
	return nil
}

type testEnv struct {
	repo     *fakeRepo
	registry *push.Registry
	router   chi.Router
}

func newTestEnv() *testEnv {
	repo := newFakeRepo()
	registry := push.NewRegistry()
	base := NewHandler(repo, push.NewRouter(registry), true)

	r := chi.NewRouter()
	NewMessageHandler(base).RegisterRoutes(r)
	return &testEnv{repo: repo, registry: registry, router: r}
}

func (e *testEnv) do(t *testing.T, method, target, asUser string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req = req.WithContext(identity.WithUser(req.Context(), asUser, "tester"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestGetMessages_InvalidPeerIDShortCircuits(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")

	for _, raw := range []string{"undefined", "null", "NaN", "%20%20", "not-a-uuid"} {
		w := env.do(t, http.MethodGet, "/api/messages/"+raw, alice, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("peer %q: expected status 400, got %d", raw, w.Code)
		}
	}
	if env.repo.listCalls != 0 {
		t.Errorf("Store was reached despite guard rejection: %d calls", env.repo.listCalls)
	}
}

func TestGetMessages_ReturnsOrderedHistory(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	bob := env.repo.addUser("bob")

	_, _ = env.repo.CreateMessage(context.Background(), alice, bob, "one")
	_, _ = env.repo.CreateMessage(context.Background(), bob, alice, "two")

	w := env.do(t, http.MethodGet, "/api/messages/"+bob, alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var history []domain.Message
	if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(history) != 2 || history[0].Body != "one" || history[1].Body != "two" {
		t.Errorf("Unexpected history: %+v", history)
	}
}

func TestGetMessages_EmptyConversationIsEmptyArray(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	bob := env.repo.addUser("bob")

	w := env.do(t, http.MethodGet, "/api/messages/"+bob, alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", got)
	}
}

func TestSendMessage_PersistsAndDelivers(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	bob := env.repo.addUser("bob")

	bobSession := &recordingSession{id: "tab-1", identity: bob}
	env.registry.Register(bobSession)

	body, _ := json.Marshal(map[string]string{"body": "hi"})
	w := env.do(t, http.MethodPost, "/api/messages/send/"+bob, alice, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created domain.Message
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode created message: %v", err)
	}
	if created.ID == uuid.Nil || created.SenderID != alice || created.RecipientID != bob {
		t.Errorf("Unexpected created message: %+v", created)
	}

	bobSession.mu.Lock()
	defer bobSession.mu.Unlock()
	if len(bobSession.pushed) != 1 || bobSession.pushed[0].ID != created.ID {
		t.Errorf("Expected exactly one push of the persisted record, got %+v", bobSession.pushed)
	}
}

func TestSendMessage_OfflineRecipientStillPersists(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	bob := env.repo.addUser("bob")

	body, _ := json.Marshal(map[string]string{"body": "hi"})
	w := env.do(t, http.MethodPost, "/api/messages/send/"+bob, alice, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	history, _ := env.repo.ListMessages(context.Background(), alice, bob)
	if len(history) != 1 {
		t.Errorf("Expected message to remain retrievable, got %+v", history)
	}
}

func TestSendMessage_EmptyBodyRejectedWithoutPersist(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	bob := env.repo.addUser("bob")

	body, _ := json.Marshal(map[string]string{"body": ""})
	w := env.do(t, http.MethodPost, "/api/messages/send/"+bob, alice, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if env.repo.createCalls != 0 {
		t.Errorf("Expected no persist attempt, got %d", env.repo.createCalls)
	}
}

func TestSendMessage_UnknownRecipientIsClientFault(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")

	body, _ := json.Marshal(map[string]string{"body": "hi"})
	w := env.do(t, http.MethodPost, "/api/messages/send/"+uuid.NewString(), alice, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestSendMessage_StoreFailureIsServerFault(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	bob := env.repo.addUser("bob")
	env.repo.failCreate = errors.New("disk on fire")

	body, _ := json.Marshal(map[string]string{"body": "hi"})
	w := env.do(t, http.MethodPost, "/api/messages/send/"+bob, alice, body)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestGetContacts_ExcludesRequester(t *testing.T) {
	env := newTestEnv()
	alice := env.repo.addUser("alice")
	env.repo.addUser("bob")
	env.repo.addUser("carol")

	w := env.do(t, http.MethodGet, "/api/messages/users", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var contacts []contactResponse
	if err := json.NewDecoder(w.Body).Decode(&contacts); err != nil {
		t.Fatalf("Failed to decode contacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("Expected 2 contacts, got %d", len(contacts))
	}
	for _, c := range contacts {
		if c.UserID == alice {
			t.Error("Requester appeared in their own contact list")
		}
	}
}
