package chat

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeStore struct {
	participants map[string][]string
}

func (f *fakeStore) ListParticipants(_ context.Context, conversationID string) ([]string, error) {
	return f.participants[conversationID], nil
}

type fakePub struct {
	ok        bool
	published [][]byte
}

func (f *fakePub) Publish(data []byte) bool {
	if f.ok {
		f.published = append(f.published, data)
	}
	return f.ok
}

func TestPushToConversationResolvesFresh(t *testing.T) {
	reg := NewRegistry()
	a := newTestClient("alice")
	b := newTestClient("bob")
	c := newTestClient("carol")
	reg.Register(a)
	reg.Register(b)
	reg.Register(c)

	store := &fakeStore{participants: map[string][]string{"c1": {"alice", "bob"}}}
	co := NewCoordinator(reg, store, &fakePub{})

	if err := co.PushToConversation(context.Background(), "c1", EventTyping, nil); err != nil {
		t.Fatal(err)
	}
	// Membership changes between the two deliveries. No caching allowed.
	store.participants["c1"] = []string{"alice", "carol"}
	if err := co.PushToConversation(context.Background(), "c1", EventTyping, nil); err != nil {
		t.Fatal(err)
	}

	if got := len(drain(a)); got != 2 {
		t.Errorf("alice: expected 2 frames, got %d", got)
	}
	if got := len(drain(b)); got != 1 {
		t.Errorf("bob left the conversation, expected 1 frame, got %d", got)
	}
	if got := len(drain(c)); got != 1 {
		t.Errorf("carol joined, expected 1 frame, got %d", got)
	}
}

func TestNotifyUserFallsBackWhenBrokerDown(t *testing.T) {
	reg := NewRegistry()
	x := newTestClient("xavier")
	reg.Register(x)
	co := NewCoordinator(reg, &fakeStore{}, &fakePub{ok: false})

	if ok := co.NotifyUser("xavier", map[string]any{"id": "n1"}); ok {
		t.Fatal("publish should have reported failure")
	}
	got := drain(x)
	if len(got) != 1 {
		t.Fatalf("expected direct-push fallback frame, got %d", len(got))
	}
	if f := decodeFrame(t, got[0]); f.Type != EventNotificationNew {
		t.Errorf("unexpected frame type %q", f.Type)
	}
}

func TestNotifyUserSkipsFallbackWhenPublished(t *testing.T) {
	reg := NewRegistry()
	x := newTestClient("xavier")
	reg.Register(x)
	pub := &fakePub{ok: true}
	co := NewCoordinator(reg, &fakeStore{}, pub)

	if ok := co.NotifyUser("xavier", map[string]any{"id": "n1"}); !ok {
		t.Fatal("publish should have succeeded")
	}
	if got := drain(x); len(got) != 0 {
		t.Errorf("no direct push expected when the durable path worked, got %d frames", len(got))
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.published))
	}
	var ev Event
	if err := json.Unmarshal(pub.published[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventNotificationNew || ev.UserID != "xavier" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestBroadcastMessageNewTakesBothPaths(t *testing.T) {
	reg := NewRegistry()
	a := newTestClient("alice")
	reg.Register(a)
	store := &fakeStore{participants: map[string][]string{"c1": {"alice"}}}
	pub := &fakePub{ok: true}
	co := NewCoordinator(reg, store, pub)

	ok, err := co.BroadcastMessageNew(context.Background(), "c1", map[string]any{"message": map[string]any{"id": "m1"}})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("durable publish should have succeeded")
	}
	if got := len(drain(a)); got != 1 {
		t.Errorf("expected direct push to the local participant, got %d frames", got)
	}
	var ev Event
	if err := json.Unmarshal(pub.published[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventMessageNew || ev.ConversationID != "c1" {
		t.Errorf("unexpected published event %+v", ev)
	}
}

func TestDispatchRelayed(t *testing.T) {
	reg := NewRegistry()
	a := newTestClient("alice")
	x := newTestClient("xavier")
	reg.Register(a)
	reg.Register(x)
	store := &fakeStore{participants: map[string][]string{"c1": {"alice"}}}
	co := NewCoordinator(reg, store, &fakePub{})

	if err := co.DispatchRelayed(Event{Type: EventMessageNew, ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if got := len(drain(a)); got != 1 {
		t.Errorf("relayed message:new should reach the conversation, got %d frames", got)
	}

	if err := co.DispatchRelayed(Event{Type: EventNotificationNew, UserID: "xavier"}); err != nil {
		t.Fatal(err)
	}
	if got := len(drain(x)); got != 1 {
		t.Errorf("relayed notification:new should reach the target user, got %d frames", got)
	}

	// Unknown types are acknowledged and dropped.
	if err := co.DispatchRelayed(Event{Type: "unknown:event"}); err != nil {
		t.Errorf("unknown event type should not error: %v", err)
	}
}

func TestStartRelayConsumerPoisonHandling(t *testing.T) {
	reg := NewRegistry()
	a := newTestClient("alice")
	reg.Register(a)
	store := &fakeStore{participants: map[string][]string{"c1": {"alice"}}}
	co := NewCoordinator(reg, store, &fakePub{})

	src := &fakeSource{}
	if err := StartRelayConsumer(src, co); err != nil {
		t.Fatal(err)
	}

	good, _ := json.Marshal(Event{Type: EventMessageNew, ConversationID: "c1"})
	if err := src.handler(good); err != nil {
		t.Fatalf("valid event should be handled: %v", err)
	}
	if got := len(drain(a)); got != 1 {
		t.Errorf("expected delivery from consumed event, got %d frames", got)
	}

	if err := src.handler([]byte("not json")); err == nil {
		t.Error("poison message should surface an error so the relay can drop it")
	}
}

type fakeSource struct {
	handler func([]byte) error
}

func (f *fakeSource) Consume(h func([]byte) error) error {
	f.handler = h
	return nil
}
