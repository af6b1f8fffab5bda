package relay

import (
	"sync"
	"time"

	"PGateway/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// LinkState is the process-wide broker link state.
type LinkState int

const (
	Disconnected LinkState = iota
	Connected
	CoolingDown
)

func (s LinkState) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case CoolingDown:
		return "COOLING_DOWN"
	default:
		return "DISCONNECTED"
	}
}

type Config struct {
	URL      string
	Name     string        // client name reported to the broker
	Stream   string        // durable stream backing the queue
	Subject  string        // the single well-known queue subject
	Durable  string        // durable consumer name
	Cooldown time.Duration // breaker open window after a failure
}

func (c *Config) norm() {
	if c.Name == "" {
		c.Name = "chat-gateway"
	}
	if c.Stream == "" {
		c.Stream = "CHAT_EVENTS"
	}
	if c.Subject == "" {
		c.Subject = "chat.events"
	}
	if c.Durable == "" {
		c.Durable = "chat-gateway"
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
}

// Relay owns the single broker link of the process. The link is lazily
// established; every connect/publish runs through a circuit breaker that
// trips on the first failure and stays open for the cooldown window, so
// a dead broker costs callers nothing but a bool check.
type Relay struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker

	mu  sync.Mutex
	nc  *nats.Conn
	js  nats.JetStreamContext
	sub *nats.Subscription
}

func New(cfg Config) *Relay {
	cfg.norm()
	r := &Relay{cfg: cfg}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Infof("[Relay] breaker %s: %s -> %s", name, from, to)
		},
	})
	return r
}

// State derives the link state from the breaker and the underlying
// connection.
func (r *Relay) State() LinkState {
	if r.cb.State() == gobreaker.StateOpen {
		return CoolingDown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nc != nil && r.nc.IsConnected() {
		return Connected
	}
	return Disconnected
}

// Publish enqueues one persistent message onto the durable queue.
// Returns false, never an error: disconnected, cooling down, or an I/O
// failure all look the same to the caller, which must have a fallback.
func (r *Relay) Publish(data []byte) bool {
	_, err := r.cb.Execute(func() (interface{}, error) {
		js, err := r.link()
		if err != nil {
			return nil, err
		}
		if _, err := js.Publish(r.cfg.Subject, data); err != nil {
			r.dropLink()
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Errorf("[Relay] publish failed: %v", err)
		}
		return false
	}
	return true
}

// Close drains the subscription and the connection.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		_ = r.sub.Drain()
		r.sub = nil
	}
	if r.nc != nil {
		r.nc.Close()
		r.nc = nil
		r.js = nil
	}
}

// link returns a live JetStream context, dialing lazily.
func (r *Relay) link() (nats.JetStreamContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.js != nil && r.nc != nil && r.nc.IsConnected() {
		return r.js, nil
	}
	if r.nc != nil {
		r.nc.Close()
		r.nc, r.js = nil, nil
	}

	nc, err := nats.Connect(r.cfg.URL,
		nats.Name(r.cfg.Name),
		nats.Timeout(3*time.Second),
		nats.MaxReconnects(0), // reconnection policy belongs to the breaker
	)
	if err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "open jetstream")
	}
	if err := ensureStream(js, r.cfg); err != nil {
		nc.Close()
		return nil, err
	}

	r.nc, r.js = nc, js
	logger.Infof("[Relay] broker connected url=%s stream=%s", r.cfg.URL, r.cfg.Stream)
	return r.js, nil
}

func (r *Relay) dropLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nc != nil {
		r.nc.Close()
	}
	r.nc, r.js, r.sub = nil, nil, nil
}

// ensureStream declares the durable file-backed stream behind the queue.
// Work-queue retention: a message survives restarts until acknowledged.
func ensureStream(js nats.JetStreamContext, cfg Config) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return errors.Wrap(err, "stream info")
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return errors.Wrap(err, "declare stream")
	}
	return nil
}
