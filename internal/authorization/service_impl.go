package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	"github.com/smallbiznis/greenroom/internal/cache"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	obsmetrics "github.com/smallbiznis/greenroom/internal/observability/metrics"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	RoleSvc       roledomain.Service
	MembershipSvc membershipdomain.Service
	Cache         cache.AuthzResolverCache
	Metrics       *obsmetrics.Metrics `optional:"true"`
	AuditSvc      auditdomain.Service `optional:"true"`
}

type service struct {
	log           *zap.Logger
	roleSvc       roledomain.Service
	membershipSvc membershipdomain.Service
	cache         cache.AuthzResolverCache
	metrics       *obsmetrics.Metrics
	auditSvc      auditdomain.Service
}

func NewService(p Params) Service {
	return &service{
		log:           p.Log.Named("authorization.service"),
		roleSvc:       p.RoleSvc,
		membershipSvc: p.MembershipSvc,
		cache:         p.Cache,
		metrics:       p.Metrics,
		auditSvc:      p.AuditSvc,
	}
}

func (s *service) HasPermission(ctx context.Context, userID, orgID snowflake.ID, key permission.Key) (bool, error) {
	if !key.Valid() {
		// Fail closed: an unknown key is a denial, never a grant.
		s.log.Warn("permission check with key outside catalog",
			zap.String("key", key.String()),
			zap.String("org_id", orgID.String()),
		)
		s.metrics.RecordPermissionCheck(ctx, false)
		return false, roledomain.ErrInvalidKey
	}

	slot, err := s.UserSlot(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			s.metrics.RecordPermissionCheck(ctx, false)
			return false, nil
		}
		return false, err
	}

	role, err := s.EffectiveRole(ctx, orgID, slot)
	if err != nil {
		return false, err
	}

	allowed := role.Has(key)
	s.metrics.RecordPermissionCheck(ctx, allowed)
	if !allowed {
		s.auditDenied(ctx, userID, orgID, key)
	}
	return allowed, nil
}

func (s *service) Authorize(ctx context.Context, userID, orgID snowflake.ID, key permission.Key) error {
	allowed, err := s.HasPermission(ctx, userID, orgID, key)
	if err != nil && !errors.Is(err, roledomain.ErrInvalidKey) {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *service) EffectiveRole(ctx context.Context, orgID snowflake.ID, slot int) (*roledomain.EffectiveRole, error) {
	if cached, ok := s.cache.GetEffectiveRole(orgID, slot); ok {
		s.metrics.RecordCacheLookup(ctx, "effective_role", true)
		return &cached, nil
	}
	s.metrics.RecordCacheLookup(ctx, "effective_role", false)

	role, err := s.roleSvc.Resolve(ctx, orgID, slot)
	if err != nil {
		return nil, err
	}
	s.cache.SetEffectiveRole(orgID, slot, *role)
	return role, nil
}

func (s *service) UserSlot(ctx context.Context, userID, orgID snowflake.ID) (int, error) {
	if cached, ok := s.cache.GetUserSlot(userID, orgID); ok {
		s.metrics.RecordCacheLookup(ctx, "user_slot", true)
		if cached == cache.NoMembership {
			return 0, ErrNoMembership
		}
		return cached, nil
	}
	s.metrics.RecordCacheLookup(ctx, "user_slot", false)

	slot, err := s.membershipSvc.GetSlot(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNotMember) {
			// Negative lookups are cached too, so a burst of checks for
			// a non-member does not hammer the store.
			s.cache.SetUserSlot(userID, orgID, cache.NoMembership)
			return 0, ErrNoMembership
		}
		return 0, err
	}
	s.cache.SetUserSlot(userID, orgID, slot)
	return slot, nil
}

func (s *service) auditDenied(ctx context.Context, userID, orgID snowflake.ID, key permission.Key) {
	if s.auditSvc == nil {
		return
	}
	actorID := userID.String()
	targetID := key.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, "user", &actorID, "authorization.denied", "permission", &targetID, map[string]any{
		"key": key.String(),
	})
}
