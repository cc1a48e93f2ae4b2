package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// The mutation guard. Every check here runs before the store mutation is
// committed, under a per-organization lock, so concurrent demotions
// cannot each observe a manager count above one and jointly leave the
// organization without anyone holding settings:manage.

func (s *service) ChangeSlot(ctx context.Context, req membershipdomain.ChangeSlotRequest) (*membershipdomain.Membership, error) {
	if req.OrgID == 0 {
		return nil, roledomain.ErrInvalidOrganization
	}
	if req.ActorID == 0 || req.TargetUserID == 0 {
		return nil, membershipdomain.ErrInvalidUser
	}
	if !roledomain.ValidSlot(req.NewSlot) {
		return nil, roledomain.ErrInvalidSlot
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, req.OrgID)
	if err != nil {
		return nil, roledomain.ErrUnavailable
	}
	defer release()

	var updated *membershipdomain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		actor, target, err := s.loadParties(ctx, repo, req.OrgID, req.ActorID, req.TargetUserID)
		if err != nil {
			return err
		}

		// Slot 1 can only be touched, or granted, by slot 1.
		if target.Slot == roledomain.AdminSlot && actor.Slot != roledomain.AdminSlot {
			return membershipdomain.ErrForbidden
		}
		if req.NewSlot == roledomain.AdminSlot && actor.Slot != roledomain.AdminSlot {
			return membershipdomain.ErrForbidden
		}

		if req.NewSlot == target.Slot {
			updated = target
			return nil
		}

		resolved := newResolveMemo(s.roleSvc, req.OrgID)

		destination, err := resolved.role(ctx, req.NewSlot)
		if err != nil {
			return err
		}
		if req.NewSlot != roledomain.AdminSlot && !destination.IsActive {
			return roledomain.ErrRoleInactive
		}

		current, err := resolved.role(ctx, target.Slot)
		if err != nil {
			return err
		}
		if current.Has(permission.SettingsManage) && !destination.Has(permission.SettingsManage) {
			if req.ActorID == req.TargetUserID && !req.Confirm {
				return membershipdomain.ErrConfirmationRequired
			}
			managers, err := s.countManagers(ctx, repo, req.OrgID, resolved)
			if err != nil {
				return err
			}
			if managers <= 1 {
				return membershipdomain.ErrLastManager
			}
		}

		now := time.Now().UTC()
		if err := repo.UpdateSlot(ctx, target.ID, req.NewSlot, now); err != nil {
			return err
		}
		changed := *target
		changed.Slot = req.NewSlot
		changed.UpdatedAt = now
		updated = &changed
		return nil
	})
	if err != nil {
		s.recordGuardBlock(ctx, err)
		return nil, storeErr(err)
	}

	s.invalidateOrg(req.OrgID)
	s.metrics.RecordMembershipMutation(ctx, "slot_changed")
	s.audit(ctx, req.OrgID, req.TargetUserID, "membership.slot_changed", map[string]any{
		"actor_id": req.ActorID.String(),
		"new_slot": req.NewSlot,
	})
	s.log.Info("membership slot changed",
		zap.String("org_id", req.OrgID.String()),
		zap.String("target_user_id", req.TargetUserID.String()),
		zap.Int("new_slot", req.NewSlot),
	)
	return updated, nil
}

func (s *service) RemoveMembership(ctx context.Context, req membershipdomain.RemoveMembershipRequest) error {
	if req.OrgID == 0 {
		return roledomain.ErrInvalidOrganization
	}
	if req.ActorID == 0 || req.TargetUserID == 0 {
		return membershipdomain.ErrInvalidUser
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, req.OrgID)
	if err != nil {
		return roledomain.ErrUnavailable
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		actor, target, err := s.loadParties(ctx, repo, req.OrgID, req.ActorID, req.TargetUserID)
		if err != nil {
			return err
		}

		if target.Slot == roledomain.AdminSlot && actor.Slot != roledomain.AdminSlot {
			return membershipdomain.ErrForbidden
		}

		resolved := newResolveMemo(s.roleSvc, req.OrgID)
		current, err := resolved.role(ctx, target.Slot)
		if err != nil {
			return err
		}
		if current.Has(permission.SettingsManage) {
			if req.ActorID == req.TargetUserID && !req.Confirm {
				return membershipdomain.ErrConfirmationRequired
			}
			managers, err := s.countManagers(ctx, repo, req.OrgID, resolved)
			if err != nil {
				return err
			}
			if managers <= 1 {
				return membershipdomain.ErrLastManager
			}
		}

		return repo.Delete(ctx, target.ID)
	})
	if err != nil {
		s.recordGuardBlock(ctx, err)
		return storeErr(err)
	}

	s.invalidateOrg(req.OrgID)
	s.metrics.RecordMembershipMutation(ctx, "removed")
	s.audit(ctx, req.OrgID, req.TargetUserID, "membership.removed", map[string]any{
		"actor_id": req.ActorID.String(),
	})
	s.log.Info("membership removed",
		zap.String("org_id", req.OrgID.String()),
		zap.String("target_user_id", req.TargetUserID.String()),
	)
	return nil
}

// recordGuardBlock counts refusals that came from the guard itself, as
// opposed to store failures.
func (s *service) recordGuardBlock(ctx context.Context, err error) {
	var reason string
	switch {
	case errors.Is(err, membershipdomain.ErrLastManager):
		reason = "last_manager"
	case errors.Is(err, membershipdomain.ErrConfirmationRequired):
		reason = "confirmation_required"
	case errors.Is(err, membershipdomain.ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, roledomain.ErrRoleInactive):
		reason = "role_inactive"
	default:
		return
	}
	s.metrics.RecordGuardBlock(ctx, reason)
}

// loadParties fetches the actor and target memberships and applies the
// precondition shared by both guarded operations: the actor must hold
// settings:manage in the organization.
func (s *service) loadParties(ctx context.Context, repo membershipdomain.Repository, orgID, actorID, targetUserID snowflake.ID) (*membershipdomain.Membership, *membershipdomain.Membership, error) {
	actor, err := repo.Get(ctx, orgID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if actor == nil {
		return nil, nil, membershipdomain.ErrForbidden
	}

	actorRole, err := s.roleSvc.Resolve(ctx, orgID, actor.Slot)
	if err != nil {
		return nil, nil, err
	}
	if !actorRole.Has(permission.SettingsManage) {
		return nil, nil, membershipdomain.ErrForbidden
	}

	target, err := repo.Get(ctx, orgID, targetUserID)
	if err != nil {
		return nil, nil, err
	}
	if target == nil {
		return nil, nil, membershipdomain.ErrNotMember
	}
	return actor, target, nil
}

// countManagers counts the people, not the roles, whose effective
// permissions include settings:manage. Resolution is memoized per distinct
// slot so cost tracks configured slots rather than roster size.
func (s *service) countManagers(ctx context.Context, repo membershipdomain.Repository, orgID snowflake.ID, resolved *resolveMemo) (int, error) {
	memberships, err := repo.List(ctx, orgID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, membership := range memberships {
		role, err := resolved.role(ctx, membership.Slot)
		if err != nil {
			return 0, err
		}
		if role.Has(permission.SettingsManage) {
			count++
		}
	}
	return count, nil
}

// resolveMemo caches Resolve calls for the duration of one guard
// evaluation, keeping the snapshot consistent within the evaluation.
type resolveMemo struct {
	svc   roledomain.Service
	orgID snowflake.ID
	roles map[int]*roledomain.EffectiveRole
}

func newResolveMemo(svc roledomain.Service, orgID snowflake.ID) *resolveMemo {
	return &resolveMemo{
		svc:   svc,
		orgID: orgID,
		roles: make(map[int]*roledomain.EffectiveRole),
	}
}

func (m *resolveMemo) role(ctx context.Context, slot int) (*roledomain.EffectiveRole, error) {
	if role, ok := m.roles[slot]; ok {
		return role, nil
	}
	role, err := m.svc.Resolve(ctx, m.orgID, slot)
	if err != nil {
		return nil, err
	}
	m.roles[slot] = role
	return role, nil
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return roledomain.ErrUnavailable
	}
	return err
}
