package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisNamespace = "portal:otp"
	// Redis keeps entries a little past their expiry so a late verify still sees the expired
	// entry and deletes it itself.
	redisGrace = time.Minute
)

// RedisStore keeps pending entries in Redis so several portal instances share them.
type RedisStore struct {
	client redis.UniversalClient
	nowF   func() time.Time
}

// NewRedisStore returns a Store over client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, nowF: time.Now}
}

// NewRedisClient returns a single-node client for addr.
func NewRedisClient(addr, password string) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

func (s *RedisStore) key(k string) string {
	return redisNamespace + ":" + k
}

// Put stores e under key with a TTL derived from its expiry.
func (s *RedisStore) Put(ctx context.Context, key string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ttl := e.ExpiresAt.Sub(s.nowF()) + redisGrace
	if ttl <= 0 {
		ttl = redisGrace
	}
	if err := s.client.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("otp: redis set: %w", err)
	}
	return nil
}

// Get returns the entry under key.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("otp: redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("otp: decode entry: %w", err)
	}
	return e, true, nil
}

// Delete removes the entry under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("otp: redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
