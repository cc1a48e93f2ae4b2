package migration

import (
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	"github.com/smallbiznis/greenroom/internal/cache"
	"github.com/smallbiznis/greenroom/internal/config"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	organizationdomain "github.com/smallbiznis/greenroom/internal/organization/domain"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"github.com/smallbiznis/greenroom/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Roles       *config.RolesConfigHolder
	Invalidator cache.Invalidator `optional:"true"`
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if p.Cfg.DBType == "postgres" {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Dev and test databases skip versioned migrations.
			if err := p.DB.AutoMigrate(
				&organizationdomain.Organization{},
				&organizationdomain.OrganizationInvite{},
				&roledomain.RoleTemplate{},
				&roledomain.OrgRole{},
				&roledomain.OrgRoleOverride{},
				&membershipdomain.Membership{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		if err := seed.SyncTemplates(p.DB, p.Roles.Get()); err != nil {
			return err
		}
		p.Roles.Subscribe(func(updated config.RolesConfig) {
			if err := seed.SyncTemplates(p.DB, updated); err != nil {
				p.Log.Warn("template reseed failed", zap.Error(err))
				return
			}
			if p.Invalidator != nil {
				p.Invalidator.InvalidateAll()
			}
			p.Log.Info("slot templates reloaded")
		})

		if p.Cfg.DefaultOrgID != 0 {
			return seed.EnsureMainOrgWithID(p.DB, p.Cfg.DefaultOrgID, p.Cfg.DefaultOrgName)
		}
		return seed.EnsureMainOrg(p.DB, p.Cfg.DefaultOrgName)
	}),
)
