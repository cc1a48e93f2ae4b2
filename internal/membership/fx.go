package membership

import (
	"github.com/smallbiznis/greenroom/internal/membership/repository"
	"github.com/smallbiznis/greenroom/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
