package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
)

// RedisStore keeps the session under a single key so that several client
// processes on the same workstation share one login.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps the key until cleared.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "crm:session:current"
	}
	return &RedisStore{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    logger.With("session_store").With("backend", "redis"),
	}
}

// Save stores s with a TTL bounded by its expiry. A session that has already
// expired removes any previous record and is refused with ErrExpired.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}

	ttl := r.ttl
	if !s.ExpiresAt.IsZero() {
		until := time.Until(s.ExpiresAt)
		if until <= 0 {
			if err := r.Clear(ctx); err != nil {
				return err
			}
			return ErrExpired
		}
		if ttl == 0 || until < ttl {
			ttl = until
		}
	}

	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to save: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	val, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to load: %w", err)
	}

	s := decode(val)
	if s == nil {
		r.log.Debug("discarding malformed session", "key", r.key)
		if err := r.client.Del(ctx, r.key).Err(); err != nil {
			r.log.Warn("failed to remove malformed session", "error", err)
		}
		return nil, nil
	}
	return s, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("session: failed to clear: %w", err)
	}
	return nil
}
