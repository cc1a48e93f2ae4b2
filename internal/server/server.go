package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/greenroom/internal/audit"
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	"github.com/smallbiznis/greenroom/internal/authorization"
	"github.com/smallbiznis/greenroom/internal/cache"
	"github.com/smallbiznis/greenroom/internal/config"
	"github.com/smallbiznis/greenroom/internal/membership"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	"github.com/smallbiznis/greenroom/internal/observability"
	obsmiddleware "github.com/smallbiznis/greenroom/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/greenroom/internal/observability/metrics"
	obstracing "github.com/smallbiznis/greenroom/internal/observability/tracing"
	"github.com/smallbiznis/greenroom/internal/organization"
	organizationdomain "github.com/smallbiznis/greenroom/internal/organization/domain"
	"github.com/smallbiznis/greenroom/internal/orglock"
	"github.com/smallbiznis/greenroom/internal/permission"
	"github.com/smallbiznis/greenroom/internal/role"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	orglock.Module,
	authorization.Module,
	audit.Module,
	role.Module,
	membership.Module,
	organization.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	roleSvc         roledomain.Service
	membershipSvc   membershipdomain.Service
	organizationSvc organizationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	RoleSvc         roledomain.Service
	MembershipSvc   membershipdomain.Service
	OrganizationSvc organizationdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		roleSvc:         p.RoleSvc,
		membershipSvc:   p.MembershipSvc,
		organizationSvc: p.OrganizationSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.POST("/orgs", s.CreateOrganization)
	api.GET("/user/orgs", s.ListUserOrganizations)
	api.POST("/invites/accept", s.AcceptInvite)

	org := api.Group("/orgs/:org_id", s.OrgContext())

	org.GET("", s.RequireMember(), s.GetOrganization)
	org.GET("/me", s.GetMyRole)
	org.GET("/permissions/check", s.CheckPermission)

	// -------- Roles --------
	org.GET("/roles", s.RequireMember(), s.ListRoles)
	org.GET("/roles/:slot", s.RequireMember(), s.GetRole)
	org.PUT("/roles/:slot", s.RequirePermission(permission.RolesManage), s.UpsertRole)

	// -------- Members --------
	// Slot changes and removals carry their own actor checks inside the
	// mutation guard, so those routes only need an authenticated member.
	org.GET("/members", s.RequireMember(), s.ListMembers)
	org.POST("/members", s.RequirePermission(permission.MembersManage), s.AddMember)
	org.PATCH("/members/:user_id/slot", s.ChangeMemberSlot)
	org.DELETE("/members/:user_id", s.RemoveMember)

	// -------- Invites --------
	org.POST("/invites", s.InviteMembers)
	org.DELETE("/invites/:invite_id", s.RevokeInvite)

	// -------- Audit --------
	org.GET("/audit-logs", s.RequirePermission(permission.AuditView), s.ListAuditLogs)
}
