package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const presenceTTL = 2 * time.Hour

// Presence mirrors registry membership into redis: user -> gateway id
// with a TTL. The in-process fan-out never reads it; it exists so a
// future cross-instance router can find which gateway holds a user.
type Presence struct {
	rdb       *redis.Client
	gatewayID string
}

func NewPresence(redisURL, gatewayID string) (*Presence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Presence{rdb: rdb, gatewayID: gatewayID}, nil
}

// presence key: chat:presence:<user>; value: gateway id.
func presenceKey(user string) string { return "chat:presence:" + user }

// Online marks the user present on this gateway and renews the TTL.
func (p *Presence) Online(ctx context.Context, userID string) error {
	return p.rdb.Set(ctx, presenceKey(userID), p.gatewayID, presenceTTL).Err()
}

// Offline removes the presence key once the user's last local connection
// is gone.
func (p *Presence) Offline(ctx context.Context, userID string) error {
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

// Lookup reports whether the user is online anywhere, and on which
// gateway.
func (p *Presence) Lookup(ctx context.Context, userID string) (gatewayID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (p *Presence) Close() error {
	return p.rdb.Close()
}
