// Package session tracks logged-in EPP sessions. A session maps an opaque
// id handed to the registrar at login to the registrar that owns it, with
// an idle TTL that every resolved request refreshes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefix for sessions.
const sessionKeyPrefix = "epp:session:"

// Gauge is the subset of prometheus.Gauge the stores report through.
type Gauge interface {
	Set(float64)
	Inc()
	Dec()
}

// Redis is the production session store. Sessions are shared across
// instances and expire server-side through the key TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	gauge  Gauge
}

// RedisOption configures a Redis session store.
type RedisOption func(*Redis)

// WithRedisGauge reports session opens and closes to the given gauge. The
// gauge is best-effort: sessions that lapse by TTL are not decremented.
func WithRedisGauge(g Gauge) RedisOption {
	return func(r *Redis) { r.gauge = g }
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: ttl}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) Create(ctx context.Context, registrarID string) (string, error) {
	id := uuid.NewString()
	if err := r.client.Set(ctx, sessionKeyPrefix+id, registrarID, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if r.gauge != nil {
		r.gauge.Inc()
	}
	return id, nil
}

// Resolve maps a session id to its registrar, refreshing the idle TTL on a
// hit. Returns false for unknown or expired sessions.
func (r *Redis) Resolve(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}
	registrarID, err := r.client.GetEx(ctx, sessionKeyPrefix+sessionID, r.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve session: %w", err)
	}
	return registrarID, true, nil
}

func (r *Redis) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	deleted, err := r.client.Del(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	if deleted > 0 && r.gauge != nil {
		r.gauge.Dec()
	}
	return nil
}
