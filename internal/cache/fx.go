package cache

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewStore),
)

// NewStore selects the response cache backend from configuration. A zero
// TTL disables caching regardless of the backend.
func NewStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Store {
	log = log.Named("cache")
	if cfg.Cache.TTL <= 0 {
		log.Info("response cache disabled", zap.String("reason", "ttl"))
		return NewNoopStore()
	}

	switch cfg.Cache.Implementation {
	case config.CacheNone:
		log.Info("response cache disabled")
		return NewNoopStore()
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     strings.TrimSpace(cfg.Cache.RedisAddr),
			Password: strings.TrimSpace(cfg.Cache.RedisPassword),
			DB:       cfg.Cache.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("redis cache unreachable, requests will miss", zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		log.Info("response cache backed by redis", zap.String("addr", cfg.Cache.RedisAddr))
		return NewRedisStore(client, normalizePrefix(cfg.Cache.KeyPrefix), log)
	default:
		log.Info("response cache in memory", zap.Duration("ttl", cfg.Cache.TTL))
		return NewMemoryStore()
	}
}
