package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	"github.com/smallbiznis/greenroom/internal/cache"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	obsmetrics "github.com/smallbiznis/greenroom/internal/observability/metrics"
	"github.com/smallbiznis/greenroom/internal/orglock"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        membershipdomain.Repository
	RoleSvc     roledomain.Service
	Locker      orglock.Locker
	Invalidator cache.Invalidator   `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        membershipdomain.Repository
	roleSvc     roledomain.Service
	locker      orglock.Locker
	invalidator cache.Invalidator
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics
}

// storeTimeout bounds every store round trip so an un-deadlined caller
// cannot hang on a stalled database. An earlier caller deadline wins.
const storeTimeout = 3 * time.Second

func NewService(p Params) membershipdomain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("membership.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		roleSvc:     p.RoleSvc,
		locker:      p.Locker,
		invalidator: p.Invalidator,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *service) GetSlot(ctx context.Context, userID, orgID snowflake.ID) (int, error) {
	if userID == 0 {
		return 0, membershipdomain.ErrInvalidUser
	}
	if orgID == 0 {
		return 0, roledomain.ErrInvalidOrganization
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	membership, err := s.repo.Get(ctx, orgID, userID)
	if err != nil {
		return 0, storeErr(err)
	}
	if membership == nil {
		return 0, membershipdomain.ErrNotMember
	}
	return membership.Slot, nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]membershipdomain.Membership, error) {
	if orgID == 0 {
		return nil, roledomain.ErrInvalidOrganization
	}
	memberships, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, storeErr(err)
	}
	return memberships, nil
}

func (s *service) AddMember(ctx context.Context, orgID, userID snowflake.ID, slot int) (*membershipdomain.Membership, error) {
	if orgID == 0 {
		return nil, roledomain.ErrInvalidOrganization
	}
	if userID == 0 {
		return nil, membershipdomain.ErrInvalidUser
	}
	if !roledomain.ValidSlot(slot) {
		return nil, roledomain.ErrInvalidSlot
	}
	// Slot 1 exists from provisioning onward and is never granted here.
	if slot == roledomain.AdminSlot {
		return nil, membershipdomain.ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	destination, err := s.roleSvc.Resolve(ctx, orgID, slot)
	if err != nil {
		return nil, err
	}
	if !destination.IsActive {
		return nil, roledomain.ErrRoleInactive
	}

	existing, err := s.repo.Get(ctx, orgID, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if existing != nil {
		return nil, membershipdomain.ErrMemberExists
	}

	now := time.Now().UTC()
	membership := membershipdomain.Membership{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Slot:      slot,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, membership); err != nil {
		return nil, storeErr(err)
	}

	// A negative slot lookup for this user may still be cached.
	s.invalidateOrg(orgID)
	s.metrics.RecordMembershipMutation(ctx, "member_added")
	s.audit(ctx, orgID, userID, "membership.created", map[string]any{
		"slot": slot,
	})
	return &membership, nil
}

func (s *service) invalidateOrg(orgID snowflake.ID) {
	if s.invalidator != nil {
		s.invalidator.InvalidateOrg(orgID)
	}
}

func (s *service) audit(ctx context.Context, orgID, targetUserID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := targetUserID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "user", nil, action, "membership", &targetID, metadata); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
