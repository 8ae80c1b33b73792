package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang/snappy"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store memoizes serialized responses. It is best effort: failures surface
// as misses and are never returned to callers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

const defaultMemoryEntries = 10_000

type memoryStore struct {
	items Cache[string, []byte]
}

func NewMemoryStore() Store {
	return &memoryStore{items: NewBoundedTTLCache[string, []byte](defaultMemoryEntries)}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	return s.items.Get(key)
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.items.Set(key, value, ttl)
}

type redisStore struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

// NewRedisStore stores snappy-compressed values under prefix+key.
func NewRedisStore(client *redis.Client, prefix string, log *zap.Logger) Store {
	return &redisStore{client: client, prefix: prefix, log: log.Named("cache.redis")}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	value, err := snappy.Decode(nil, raw)
	if err != nil {
		s.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, true
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := s.client.Set(ctx, s.prefix+key, snappy.Encode(nil, value), ttl).Err(); err != nil {
		s.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

type noopStore struct{}

func NewNoopStore() Store { return noopStore{} }

func (noopStore) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (noopStore) Set(context.Context, string, []byte, time.Duration) {}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}
