package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore provides shared idempotency enforcement for
// multi-instance deployments. Entries expire via Redis TTL; failures
// degrade to a cache miss rather than blocking traffic.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisIdempotencyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisIdempotencyStore) key(k string) string {
	return "idempotency:" + k
}

func (s *RedisIdempotencyStore) Check(ctx context.Context, key string) (*CachedResponse, bool) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("idempotency check failed, treating as miss", "error", err)
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.logger.Warn("corrupt idempotency entry, treating as miss", "error", err)
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, statusCode int, headers http.Header, body []byte) {
	raw, err := json.Marshal(&CachedResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
		CachedAt:   time.Now(),
	})
	if err != nil {
		s.logger.Warn("failed to marshal idempotency entry", "error", err)
		return
	}
	if err := s.client.Set(ctx, s.key(key), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to store idempotency entry", "error", err)
	}
}
