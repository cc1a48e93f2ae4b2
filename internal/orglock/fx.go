package orglock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/greenroom/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return client.Close()
			},
		})
	}

	return client
}

// NewLocker prefers redis when a client is configured and falls back to
// in-process serialization otherwise.
func NewLocker(p Params) Locker {
	if p.Redis != nil {
		p.Log.Named("orglock").Info("using redis org lock")
		return NewRedisLocker(p.Redis)
	}
	p.Log.Named("orglock").Info("using in-process org lock")
	return NewLocalLocker()
}

var Module = fx.Module("orglock",
	fx.Provide(
		NewRedisClient,
		NewLocker,
	),
)
