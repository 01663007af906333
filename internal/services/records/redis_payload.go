package records

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/metrics"
)

// RedisPayloadStore keeps each payload as a plain string key.
type RedisPayloadStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPayloadStore stores payloads under prefix+recordID.
func NewRedisPayloadStore(client redis.UniversalClient, prefix string) *RedisPayloadStore {
	return &RedisPayloadStore{client: client, prefix: prefix}
}

// Name returns "redis".
func (s *RedisPayloadStore) Name() string {
	return "redis"
}

// Get reads one payload. A missing key is not an error.
func (s *RedisPayloadStore) Get(ctx context.Context, recordID string) (string, bool, error) {
	start := time.Now()
	value, err := s.client.Get(ctx, s.prefix+recordID).Result()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.RecordUpstream("redis", "get", "miss", time.Since(start).Seconds())
		return "", false, nil
	case err != nil:
		metrics.RecordUpstream("redis", "get", "error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, apperr.Upstream("Failed to read payload", http.StatusBadGateway, err.Error())
	}
	metrics.RecordUpstream("redis", "get", "ok", time.Since(start).Seconds())
	return value, true, nil
}

// Put overwrites the payload with no expiry.
func (s *RedisPayloadStore) Put(ctx context.Context, recordID, value string) error {
	start := time.Now()
	if err := s.client.Set(ctx, s.prefix+recordID, value, 0).Err(); err != nil {
		metrics.RecordUpstream("redis", "set", "error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Upstream("Failed to write payload", http.StatusBadGateway, err.Error())
	}
	metrics.RecordUpstream("redis", "set", "ok", time.Since(start).Seconds())
	return nil
}

var _ PayloadStore = (*RedisPayloadStore)(nil)
