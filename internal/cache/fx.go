package cache

import (
	"github.com/smallbiznis/greenroom/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(
		provideConfig,
		NewAuthzResolverCache,
		func(c AuthzResolverCache) Invalidator { return c },
	),
)

func provideConfig(cfg config.Config) Config {
	return Config{
		SlotTTL: cfg.AuthzSlotTTL,
		RoleTTL: cfg.AuthzRoleTTL,
	}
}
