package chat

import (
	"context"
	"encoding/json"

	"PGateway/logger"

	"github.com/pkg/errors"
)

// Event types replicated through the broker (at-least-once).
const (
	EventMessageNew      = "message:new"
	EventMessageDeleted  = "message:deleted"
	EventNotificationNew = "notification:new"
)

// Ephemeral event types, direct push only.
const (
	EventTyping              = "typing"
	EventMessageStatus       = "message:status"
	EventConversationRead    = "conversation:read"
	EventParticipantsChanged = "conversation:participants"
)

// Event is the broker message body: the type, its target (a user or a
// conversation) and an opaque payload.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// ParticipantStore resolves the audience of a conversation. Always
// queried fresh at delivery time; membership can change between publish
// and delivery, so nothing here is cached.
type ParticipantStore interface {
	ListParticipants(ctx context.Context, conversationID string) ([]string, error)
}

// DurablePublisher is the broker side of dual-path delivery. Publish
// reports success as a bool and never blocks on a dead broker.
type DurablePublisher interface {
	Publish(data []byte) bool
}

// Coordinator decides, per event class, whether an event goes out as a
// direct registry push, a durable broker publish, or both.
type Coordinator struct {
	reg   *Registry
	store ParticipantStore
	pub   DurablePublisher
}

func NewCoordinator(reg *Registry, store ParticipantStore, pub DurablePublisher) *Coordinator {
	return &Coordinator{reg: reg, store: store, pub: pub}
}

// PushDirect delivers to one user's local connections. Fire-and-forget.
func (co *Coordinator) PushDirect(userID, typ string, payload any) {
	co.reg.Send(userID, typ, payload)
}

// PushDirectMany delivers to an explicit user set, deduplicated.
func (co *Coordinator) PushDirectMany(userIDs []string, typ string, payload any) {
	co.reg.SendToMany(userIDs, typ, payload)
}

// PushToConversation resolves the participants of the conversation and
// pushes to each of them, sender included.
func (co *Coordinator) PushToConversation(ctx context.Context, conversationID, typ string, payload any) error {
	participants, err := co.store.ListParticipants(ctx, conversationID)
	if err != nil {
		return errors.Wrapf(err, "list participants conv=%s", conversationID)
	}
	co.reg.SendToMany(participants, typ, payload)
	return nil
}

// PublishDurable serializes the event onto the broker queue. False means
// the broker path is unavailable right now; the caller owns the fallback.
func (co *Coordinator) PublishDurable(ev Event) bool {
	if co.pub == nil {
		return false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("[Fanout] encode event type=%s err=%v", ev.Type, err)
		return false
	}
	return co.pub.Publish(data)
}

// BroadcastTyping pushes a typing indicator to all participants of the
// conversation, the sender included; suppression is a client concern.
func (co *Coordinator) BroadcastTyping(ctx context.Context, conversationID, senderID string, isTyping bool) error {
	return co.PushToConversation(ctx, conversationID, EventTyping, map[string]any{
		"conversationId": conversationID,
		"userId":         senderID,
		"isTyping":       isTyping,
	})
}

// BroadcastCallSignal relays an opaque call:* payload to the
// conversation, stamped with the authenticated sender.
func (co *Coordinator) BroadcastCallSignal(ctx context.Context, conversationID, typ string, payload map[string]any) error {
	return co.PushToConversation(ctx, conversationID, typ, payload)
}

// BroadcastMessageNew takes both delivery paths: an immediate push to
// locally connected participants and a durable publish for everyone
// else. Both may reach the same client; dedup by message id is on the
// client. Returns whether the durable path accepted the event.
func (co *Coordinator) BroadcastMessageNew(ctx context.Context, conversationID string, payload any) (bool, error) {
	if err := co.PushToConversation(ctx, conversationID, EventMessageNew, payload); err != nil {
		return false, err
	}
	raw, err := toRaw(payload)
	if err != nil {
		return false, err
	}
	ok := co.PublishDurable(Event{Type: EventMessageNew, ConversationID: conversationID, Payload: raw})
	return ok, nil
}

// BroadcastMessageDeleted mirrors BroadcastMessageNew for deletions.
func (co *Coordinator) BroadcastMessageDeleted(ctx context.Context, conversationID, messageID string) (bool, error) {
	payload := map[string]any{"conversationId": conversationID, "messageId": messageID}
	if err := co.PushToConversation(ctx, conversationID, EventMessageDeleted, payload); err != nil {
		return false, err
	}
	raw, err := toRaw(map[string]any{"messageId": messageID})
	if err != nil {
		return false, err
	}
	ok := co.PublishDurable(Event{Type: EventMessageDeleted, ConversationID: conversationID, Payload: raw})
	return ok, nil
}

// BroadcastMessageStatus pushes a delivery/read receipt. Ephemeral.
func (co *Coordinator) BroadcastMessageStatus(ctx context.Context, conversationID, messageID, userID, status string) error {
	return co.PushToConversation(ctx, conversationID, EventMessageStatus, map[string]any{
		"messageId": messageID,
		"status":    status,
		"userId":    userID,
	})
}

// BroadcastConversationRead pushes a whole-conversation read marker. Ephemeral.
func (co *Coordinator) BroadcastConversationRead(ctx context.Context, conversationID, userID string) error {
	return co.PushToConversation(ctx, conversationID, EventConversationRead, map[string]any{
		"userId": userID,
	})
}

// BroadcastParticipantsChanged announces membership changes. Ephemeral;
// resolved against the store after the change, so new members hear it too.
func (co *Coordinator) BroadcastParticipantsChanged(ctx context.Context, conversationID string, payload any) error {
	return co.PushToConversation(ctx, conversationID, EventParticipantsChanged, payload)
}

// NotifyUser targets one user with a durable notification. When the
// broker path is down the event falls back to an immediate local push,
// so the only loss case is broker down AND user not connected here.
func (co *Coordinator) NotifyUser(userID string, payload any) bool {
	raw, err := toRaw(payload)
	if err != nil {
		logger.Errorf("[Fanout] encode notification user=%s err=%v", userID, err)
		return false
	}
	ok := co.PublishDurable(Event{Type: EventNotificationNew, UserID: userID, Payload: raw})
	if !ok {
		co.reg.Send(userID, EventNotificationNew, raw)
	}
	return ok
}

func toRaw(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	return data, nil
}
