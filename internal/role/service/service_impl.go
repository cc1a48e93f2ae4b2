package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	"github.com/smallbiznis/greenroom/internal/cache"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLabelLength = 64

// storeTimeout bounds every store round trip so an un-deadlined caller
// cannot hang on a stalled database. An earlier caller deadline wins.
const storeTimeout = 3 * time.Second

// AdminLabel is the default display label of slot 1.
const AdminLabel = "Administrator"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        roledomain.Repository
	Invalidator cache.Invalidator   `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        roledomain.Repository
	invalidator cache.Invalidator
	auditSvc    auditdomain.Service
}

func NewService(p Params) roledomain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("role.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		invalidator: p.Invalidator,
		auditSvc:    p.AuditSvc,
	}
}

func (s *service) Resolve(ctx context.Context, orgID snowflake.ID, slot int) (*roledomain.EffectiveRole, error) {
	if orgID == 0 {
		return nil, roledomain.ErrInvalidOrganization
	}
	if !roledomain.ValidSlot(slot) {
		return nil, roledomain.ErrInvalidSlot
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if slot == roledomain.AdminSlot {
		return s.resolveAdmin(ctx, orgID)
	}

	template := permission.Set{}
	if tmpl, err := s.repo.GetTemplate(ctx, slot); err != nil {
		// A missing or unreadable template row must not deny-of-service
		// the whole permission surface, but a timed-out store must stay
		// distinguishable from an empty template.
		if unavailable(err) {
			return nil, storeErr(err)
		}
		s.log.Warn("template read failed, using empty template",
			zap.Int("slot", slot),
			zap.Error(err),
		)
	} else if tmpl != nil {
		template = tmpl.PermissionSet()
	}

	orgRole, err := s.repo.GetOrgRole(ctx, orgID, slot)
	if err != nil {
		return nil, storeErr(err)
	}
	if orgRole == nil {
		// Unconfigured slots are inactive and grant nothing.
		return &roledomain.EffectiveRole{
			Slot:        slot,
			Label:       roledomain.SyntheticLabel(slot),
			IsActive:    false,
			Permissions: permission.Set{},
		}, nil
	}

	effective := permission.Set{}
	if orgRole.IsActive {
		effective = MergePermissions(template, overrideValues(orgRole.Overrides))
	}

	return &roledomain.EffectiveRole{
		Slot:        slot,
		Label:       orgRole.Label,
		IsActive:    orgRole.IsActive,
		Permissions: effective,
	}, nil
}

// resolveAdmin returns the hard-coded slot 1 role: always active, full
// catalog, stored overrides and the active flag ignored. Only the stored
// label is honored, best effort.
func (s *service) resolveAdmin(ctx context.Context, orgID snowflake.ID) (*roledomain.EffectiveRole, error) {
	label := AdminLabel
	if orgRole, err := s.repo.GetOrgRole(ctx, orgID, roledomain.AdminSlot); err == nil && orgRole != nil {
		if trimmed := strings.TrimSpace(orgRole.Label); trimmed != "" {
			label = trimmed
		}
	}
	return &roledomain.EffectiveRole{
		Slot:        roledomain.AdminSlot,
		Label:       label,
		IsActive:    true,
		Permissions: permission.FullSet(),
	}, nil
}

func (s *service) ListActiveRoles(ctx context.Context, orgID snowflake.ID) ([]roledomain.EffectiveRole, error) {
	if orgID == 0 {
		return nil, roledomain.ErrInvalidOrganization
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	admin, err := s.Resolve(ctx, orgID, roledomain.AdminSlot)
	if err != nil {
		return nil, err
	}
	roles := []roledomain.EffectiveRole{*admin}

	orgRoles, err := s.repo.ListOrgRoles(ctx, orgID)
	if err != nil {
		return nil, storeErr(err)
	}
	for _, orgRole := range orgRoles {
		if orgRole.Slot == roledomain.AdminSlot || !orgRole.IsActive {
			continue
		}
		resolved, err := s.Resolve(ctx, orgID, orgRole.Slot)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *resolved)
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].Slot < roles[j].Slot })
	return roles, nil
}

func (s *service) UpsertOrgRole(ctx context.Context, orgID snowflake.ID, slot int, req roledomain.UpsertOrgRoleRequest) error {
	if orgID == 0 {
		return roledomain.ErrInvalidOrganization
	}
	if !roledomain.ValidSlot(slot) {
		return roledomain.ErrInvalidSlot
	}
	if slot == roledomain.AdminSlot {
		return roledomain.ErrAdminSlotImmutable
	}

	var label *string
	if req.Label != nil {
		trimmed := strings.TrimSpace(*req.Label)
		if trimmed == "" || len(trimmed) > maxLabelLength {
			return roledomain.ErrInvalidLabel
		}
		label = &trimmed
	}

	// Unknown keys are dropped here rather than at read time so the store
	// never carries entries outside the catalog. Duplicates collapse to
	// the last write.
	var overrides []roledomain.Override
	if req.Overrides != nil {
		overrides = make([]roledomain.Override, 0, len(req.Overrides))
		for _, override := range req.Overrides {
			if !override.Key.Valid() {
				s.log.Warn("dropping override outside permission catalog",
					zap.String("key", override.Key.String()),
					zap.Int("slot", slot),
				)
				continue
			}
			overrides = append(overrides, override)
		}
		overrides = dedupeOverrides(overrides)
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := time.Now().UTC()
	var roleID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		orgRole, err := repo.GetOrgRole(ctx, orgID, slot)
		if err != nil {
			return err
		}
		if orgRole == nil {
			// Lazy creation on first configuration touch.
			orgRole = &roledomain.OrgRole{
				ID:        s.genID.Generate(),
				OrgID:     orgID,
				Slot:      slot,
				Label:     roledomain.SyntheticLabel(slot),
				IsActive:  false,
				CreatedAt: now,
			}
		}

		if label != nil {
			orgRole.Label = *label
		}
		if req.IsActive != nil {
			orgRole.IsActive = *req.IsActive
		}
		orgRole.UpdatedAt = now

		if err := repo.SaveOrgRole(ctx, *orgRole); err != nil {
			return err
		}
		roleID = orgRole.ID

		if overrides == nil {
			return nil
		}
		rows := make([]roledomain.OrgRoleOverride, 0, len(overrides))
		for _, override := range overrides {
			rows = append(rows, roledomain.OrgRoleOverride{
				ID:        s.genID.Generate(),
				OrgRoleID: orgRole.ID,
				Key:       override.Key.String(),
				Allowed:   override.Allowed,
				CreatedAt: now,
			})
		}
		return repo.ReplaceOverrides(ctx, orgRole.ID, rows)
	})
	if err != nil {
		return storeErr(err)
	}

	// Stale windows longer than the TTL are a correctness bug: invalidate
	// after the commit succeeds, before reporting success.
	if s.invalidator != nil {
		s.invalidator.InvalidateOrg(orgID)
	}

	if s.auditSvc != nil {
		metadata := map[string]any{"slot": slot}
		if label != nil {
			metadata["label"] = *label
		}
		if req.IsActive != nil {
			metadata["is_active"] = *req.IsActive
		}
		if overrides != nil {
			metadata["override_count"] = len(overrides)
		}
		targetID := roleID.String()
		if err := s.auditSvc.AuditLog(ctx, &orgID, "user", nil, "role.updated", "role", &targetID, metadata); err != nil {
			s.log.Warn("audit log write failed", zap.String("action", "role.updated"), zap.Error(err))
		}
	}
	return nil
}

func overrideValues(rows []roledomain.OrgRoleOverride) []roledomain.Override {
	out := make([]roledomain.Override, 0, len(rows))
	for _, row := range rows {
		out = append(out, roledomain.Override{
			Key:     permission.Key(row.Key),
			Allowed: row.Allowed,
		})
	}
	return out
}

func unavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if unavailable(err) {
		return roledomain.ErrUnavailable
	}
	return err
}
