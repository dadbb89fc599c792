package intention

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "intention:v1:"

// RedisStore is a Store backed by a shared Redis instance, for deployments
// where multiple processes should share one response cache. Expiry is
// enforced redis-side via key TTLs; consistency is whatever the Redis
// deployment provides. Backend failures degrade to cache misses.
type RedisStore struct {
	client *redis.Client
	logger Logger
}

// NewRedisStore wraps an existing redis client as a cache store.
func NewRedisStore(client *redis.Client, logger Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func redisKey(fp Fingerprint) string {
	return redisKeyPrefix + string(fp)
}

// Get fetches and decodes the entry for fp. Decode failures and transport
// errors count as misses.
func (s *RedisStore) Get(ctx context.Context, fp Fingerprint) (*CacheEntry, bool) {
	raw, err := s.client.Get(ctx, redisKey(fp)).Result()
	switch {
	case err == redis.Nil:
		return nil, false
	case err != nil:
		if s.logger != nil {
			s.logger.Warn("redis cache get failed", "fingerprint", string(fp), "error", err.Error())
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		if s.logger != nil {
			s.logger.Warn("redis cache entry corrupt", "fingerprint", string(fp), "error", err.Error())
		}
		s.client.Del(ctx, redisKey(fp))
		return nil, false
	}

	// Redis TTL should have evicted this already; treat clock skew as a miss.
	if time.Now().After(entry.ExpiresAt) {
		s.client.Del(ctx, redisKey(fp))
		return nil, false
	}

	return &entry, true
}

// Put stores the entry under fp with a redis-side TTL.
func (s *RedisStore) Put(ctx context.Context, fp Fingerprint, entry *CacheEntry, ttl time.Duration) {
	now := time.Now()
	entry.Fingerprint = fp
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	raw, err := json.Marshal(entry)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("redis cache entry marshal failed", "fingerprint", string(fp), "error", err.Error())
		}
		return
	}

	if err := s.client.Set(ctx, redisKey(fp), raw, ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("redis cache set failed", "fingerprint", string(fp), "error", err.Error())
	}
}

// Invalidate removes the entry for fp.
func (s *RedisStore) Invalidate(ctx context.Context, fp Fingerprint) {
	if err := s.client.Del(ctx, redisKey(fp)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("redis cache delete failed", "fingerprint", string(fp), "error", err.Error())
	}
}

// InvalidatePrefix removes every entry whose fingerprint starts with prefix,
// scanning incrementally to avoid blocking the server.
func (s *RedisStore) InvalidatePrefix(ctx context.Context, prefix string) {
	s.deleteByPattern(ctx, redisKeyPrefix+prefix+"*")
}

// Clear removes all entries owned by this store.
func (s *RedisStore) Clear(ctx context.Context) {
	s.deleteByPattern(ctx, redisKeyPrefix+"*")
}

func (s *RedisStore) deleteByPattern(ctx context.Context, pattern string) {
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil && s.logger != nil {
			s.logger.Warn("redis cache delete failed", "key", iter.Val(), "error", err.Error())
		}
	}
	if err := iter.Err(); err != nil && s.logger != nil {
		s.logger.Warn("redis cache scan failed", "pattern", pattern, "error", err.Error())
	}
}
