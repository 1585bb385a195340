package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashvetsov/chatline/internal/domain"
	"github.com/google/uuid"
)

func testMessage(sender, recipient, body string) domain.Message {
	id, _ := uuid.NewV7()
	return domain.Message{
		ID:          id,
		SenderID:    sender,
		RecipientID: recipient,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestRouter_DeliversToEveryRecipientSession(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)

	b1 := newFakeSession("tab-1", "bob")
	b2 := newFakeSession("tab-2", "bob")
	bystander := newFakeSession("tab-1", "carol")
	sender := newFakeSession("tab-1", "alice")
	reg.Register(b1)
	reg.Register(b2)
	reg.Register(bystander)
	reg.Register(sender)

	msg := testMessage("alice", "bob", "hi")
	router.Deliver(context.Background(), msg)

	for _, sess := range []*fakeSession{b1, b2} {
		got := sess.pushes()
		if len(got) != 1 || got[0].ID != msg.ID {
			t.Errorf("Session %s: expected exactly one push of %s, got %v", sess.ID(), msg.ID, got)
		}
	}
	if len(bystander.pushes()) != 0 {
		t.Error("Message leaked to an identity other than the recipient")
	}
	if len(sender.pushes()) != 0 {
		t.Error("Message echoed to the sender's own session")
	}
}

func TestRouter_OfflineRecipientIsNotAnError(t *testing.T) {
	router := NewRouter(NewRegistry())

	// Must not panic or block; the store remains the source of truth.
	router.Deliver(context.Background(), testMessage("alice", "bob", "hi"))
}

func TestRouter_DeliverAfterUnregisterPushesNothing(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)

	sess := newFakeSession("tab-1", "bob")
	reg.Register(sess)
	reg.Unregister("bob", "tab-1")

	router.Deliver(context.Background(), testMessage("alice", "bob", "hi"))

	if len(sess.pushes()) != 0 {
		t.Errorf("Expected zero pushes after unregister, got %v", sess.pushes())
	}
}

func TestRouter_FailedSessionDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)

	broken := newFakeSession("tab-1", "bob")
	broken.pushErr = errors.New("connection gone")
	healthy := newFakeSession("tab-2", "bob")
	reg.Register(broken)
	reg.Register(healthy)

	msg := testMessage("alice", "bob", "hi")
	router.Deliver(context.Background(), msg)

	got := healthy.pushes()
	if len(got) != 1 || got[0].ID != msg.ID {
		t.Errorf("Healthy session missed delivery: %v", got)
	}
}

func TestRouter_PairOrderMatchesDeliverOrder(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)

	sess := newFakeSession("tab-1", "bob")
	reg.Register(sess)

	first := testMessage("alice", "bob", "one")
	second := testMessage("alice", "bob", "two")
	router.Deliver(context.Background(), first)
	router.Deliver(context.Background(), second)

	got := sess.pushes()
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("Expected pushes in persistence order, got %v", got)
	}
}
