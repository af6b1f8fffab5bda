package chat

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// EventSource is the consuming side of the broker relay. The handler
// result drives ack/termination: nil acknowledges, an error drops the
// message without requeue.
type EventSource interface {
	Consume(handler func(data []byte) error) error
}

// StartRelayConsumer subscribes the coordinator to relayed events, so
// events published by any producer (this process included) re-enter the
// local registry.
func StartRelayConsumer(src EventSource, co *Coordinator) error {
	return src.Consume(func(data []byte) error {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return errors.Wrap(err, "decode relayed event")
		}
		return co.DispatchRelayed(ev)
	})
}

// DispatchRelayed re-delivers one consumed event through the registry.
// Unknown event types are acknowledged and dropped.
func (co *Coordinator) DispatchRelayed(ev Event) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	switch ev.Type {
	case EventMessageNew, EventMessageDeleted:
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		return co.PushToConversation(ctx, ev.ConversationID, ev.Type, payload)
	case EventNotificationNew:
		co.reg.Send(ev.UserID, ev.Type, payload)
		return nil
	default:
		return nil
	}
}
