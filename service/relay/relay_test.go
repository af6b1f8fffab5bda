package relay

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// The dial target is a port nothing listens on, so the first attempt
// fails fast and arms the breaker.
func newDeadRelay(cooldown time.Duration) *Relay {
	return New(Config{URL: "nats://127.0.0.1:1", Cooldown: cooldown})
}

func TestPublishFailureArmsCooldown(t *testing.T) {
	r := newDeadRelay(30 * time.Second)

	if r.State() != Disconnected {
		t.Fatalf("fresh relay should be DISCONNECTED, got %s", r.State())
	}
	if ok := r.Publish([]byte(`{}`)); ok {
		t.Fatal("publish against a dead broker must report false")
	}
	if r.State() != CoolingDown {
		t.Fatalf("expected COOLING_DOWN after failure, got %s", r.State())
	}
}

func TestPublishShortCircuitsWhileCoolingDown(t *testing.T) {
	r := newDeadRelay(30 * time.Second)
	_ = r.Publish([]byte(`{}`)) // arm

	start := time.Now()
	if ok := r.Publish([]byte(`{}`)); ok {
		t.Fatal("publish during cooldown must report false")
	}
	// Short-circuit means no dial attempt: far under the 3s dial timeout.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cooldown publish took %v, should not touch the network", elapsed)
	}
}

func TestCooldownExpiryAllowsRetry(t *testing.T) {
	r := newDeadRelay(100 * time.Millisecond)
	_ = r.Publish([]byte(`{}`)) // arm

	if r.State() != CoolingDown {
		t.Fatalf("expected COOLING_DOWN, got %s", r.State())
	}
	time.Sleep(150 * time.Millisecond)
	if r.State() == CoolingDown {
		t.Fatal("cooldown should have expired")
	}
	// The retry is permitted to attempt the network again (and fail,
	// re-arming the cooldown).
	if ok := r.Publish([]byte(`{}`)); ok {
		t.Fatal("broker is still dead, publish must report false")
	}
	if r.State() != CoolingDown {
		t.Fatalf("failed retry should re-arm the cooldown, got %s", r.State())
	}
}

func TestConsumeRejectsSecondConsumer(t *testing.T) {
	r := newDeadRelay(30 * time.Second)
	r.mu.Lock()
	r.sub = &nats.Subscription{}
	r.mu.Unlock()

	if err := r.Consume(func([]byte) error { return nil }); err == nil {
		t.Fatal("only one outstanding consumer is allowed per process")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "nats://localhost:4222"}
	cfg.norm()
	if cfg.Stream != "CHAT_EVENTS" || cfg.Subject != "chat.events" {
		t.Errorf("unexpected queue naming: %+v", cfg)
	}
	if cfg.Cooldown != 30*time.Second {
		t.Errorf("default cooldown should be 30s, got %v", cfg.Cooldown)
	}
}
