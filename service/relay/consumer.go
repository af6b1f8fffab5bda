package relay

import (
	"time"

	"PGateway/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

const (
	consumeAckWait       = 30 * time.Second
	consumeMaxAckPending = 1024
)

// Consume attaches the single durable consumer of this process to the
// queue. Handler success acknowledges the message; handler failure
// terminates it — a poison message is dropped rather than retried
// forever. Connection attempts go through the same breaker as Publish.
func (r *Relay) Consume(handler func(data []byte) error) error {
	r.mu.Lock()
	active := r.sub != nil
	r.mu.Unlock()
	if active {
		return errors.New("relay consumer already active")
	}

	_, err := r.cb.Execute(func() (interface{}, error) {
		js, err := r.link()
		if err != nil {
			return nil, err
		}
		sub, err := js.Subscribe(r.cfg.Subject, func(m *nats.Msg) {
			data := append([]byte(nil), m.Data...)
			if herr := handler(data); herr != nil {
				logger.Errorf("[Relay] drop poison message: %v", herr)
				// Term, not Nak: a Nak would requeue and loop forever.
				_ = m.Term()
				return
			}
			_ = m.Ack()
		},
			nats.Durable(r.cfg.Durable),
			nats.ManualAck(),
			nats.AckWait(consumeAckWait),
			nats.MaxAckPending(consumeMaxAckPending),
		)
		if err != nil {
			r.dropLink()
			return nil, errors.Wrap(err, "subscribe")
		}
		r.mu.Lock()
		r.sub = sub
		r.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return errors.New("relay cooling down")
		}
		return err
	}
	logger.Infof("[Relay] consumer started subject=%s durable=%s", r.cfg.Subject, r.cfg.Durable)
	return nil
}
