package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
	redisclient "github.com/embedkit/relay/internal/infra/redis"
)

const redisKeyPrefix = "respcache:"

// RedisStore keeps the response cache in Redis so multiple relay instances
// share it. Backend errors degrade to cache misses.
type RedisStore struct {
	client *redisclient.Client
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type redisEntry struct {
	RequestID  string            `json:"request_id"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redisclient.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*domain.Response, bool) {
	raw, found, err := s.client.GetBytes(ctx, redisKeyPrefix+key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "error", err)
		s.misses.Add(1)
		return nil, false
	}
	if !found {
		s.misses.Add(1)
		return nil, false
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.logger.Warn("cache entry corrupt, treating as miss", "error", err)
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return &domain.Response{
		RequestID:  e.RequestID,
		StatusCode: e.StatusCode,
		Headers:    e.Headers,
		Body:       e.Body,
	}, true
}

func (s *RedisStore) Set(ctx context.Context, key string, resp *domain.Response, ttl time.Duration) {
	if ttl <= 0 || resp == nil {
		return
	}
	raw, err := json.Marshal(redisEntry{
		RequestID:  resp.RequestID,
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	})
	if err != nil {
		s.logger.Warn("cache entry marshal failed, dropping", "error", err)
		return
	}
	if err := s.client.SetBytes(ctx, redisKeyPrefix+key, raw, ttl); err != nil {
		s.logger.Warn("cache write failed, dropping", "error", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Delete(ctx, redisKeyPrefix+key); err != nil {
		s.logger.Warn("cache delete failed", "error", err)
	}
}

func (s *RedisStore) Clear(ctx context.Context, pattern string) int {
	removed, err := s.client.DeleteByPrefix(ctx, redisKeyPrefix+pattern)
	if err != nil {
		s.logger.Warn("cache clear failed", "error", err)
	}
	s.evictions.Add(int64(removed))
	return removed
}

func (s *RedisStore) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
}

// Close is a no-op; the underlying Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
