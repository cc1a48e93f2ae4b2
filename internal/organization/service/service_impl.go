package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	"github.com/smallbiznis/greenroom/internal/organization/domain"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inviteTTL = 7 * 24 * time.Hour

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	MembershipSvc membershipdomain.Service
	RoleSvc       roledomain.Service
	AuditSvc      auditdomain.Service `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	membershipSvc membershipdomain.Service
	roleSvc       roledomain.Service
	auditSvc      auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("organization.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		membershipSvc: p.MembershipSvc,
		roleSvc:       p.RoleSvc,
		auditSvc:      p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:        orgID,
		Name:      name,
		Slug:      slug.Make(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		// The founder is seated in slot 1 directly. This is the only
		// path that creates an administrator membership.
		founder := membershipdomain.Membership{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			Slot:      roledomain.AdminSlot,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&founder).Error
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, userID, "organization.created", map[string]any{
		"name": name,
		"slug": org.Slug,
	})
	s.log.Info("organization created",
		zap.String("org_id", orgID.String()),
		zap.String("slug", org.Slug),
	)

	return &domain.OrganizationResponse{
		ID:   orgID.String(),
		Name: name,
		Slug: org.Slug,
	}, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	orgID, err := parseOrgID(id)
	if err != nil {
		return nil, err
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, nil
	}

	return &domain.OrganizationResponse{
		ID:   org.ID.String(),
		Name: org.Name,
		Slug: org.Slug,
	}, nil
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slot:      item.Slot,
			CreatedAt: item.CreatedAt,
		})
	}

	return resp, nil
}

func (s *service) InviteMembers(ctx context.Context, actorID snowflake.ID, orgID string, invites []domain.InviteRequest) ([]domain.InviteResponse, error) {
	id, err := parseOrgID(orgID)
	if err != nil {
		return nil, err
	}
	if actorID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if len(invites) == 0 {
		return nil, domain.ErrInvalidInvite
	}

	if err := s.requirePermission(ctx, actorID, id, permission.MembersManage); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := make([]domain.OrganizationInvite, 0, len(invites))
	for _, invite := range invites {
		email := strings.ToLower(strings.TrimSpace(invite.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, domain.ErrInvalidEmail
		}
		if invite.Slot <= roledomain.AdminSlot || invite.Slot > roledomain.MaxSlot {
			return nil, roledomain.ErrInvalidSlot
		}
		rows = append(rows, domain.OrganizationInvite{
			ID:        s.genID.Generate(),
			OrgID:     id,
			Email:     email,
			Slot:      invite.Slot,
			Token:     uuid.NewString(),
			Status:    domain.InviteStatusPending,
			ExpiresAt: now.Add(inviteTTL),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.repo.CreateInvites(ctx, rows); err != nil {
		return nil, err
	}

	resp := make([]domain.InviteResponse, 0, len(rows))
	for _, row := range rows {
		s.audit(ctx, id, actorID, "invite.created", map[string]any{
			"email": row.Email,
			"slot":  row.Slot,
		})
		resp = append(resp, domain.InviteResponse{
			ID:        row.ID.String(),
			Email:     row.Email,
			Slot:      row.Slot,
			Status:    row.Status,
			ExpiresAt: row.ExpiresAt,
		})
	}

	return resp, nil
}

func (s *service) AcceptInvite(ctx context.Context, userID snowflake.ID, token string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	invite, err := s.repo.GetInviteByToken(ctx, token)
	if err != nil {
		return err
	}
	if invite == nil || invite.Status != domain.InviteStatusPending {
		return domain.ErrInvalidInvite
	}
	if time.Now().UTC().After(invite.ExpiresAt) {
		if err := s.repo.UpdateInviteStatus(ctx, invite.ID, domain.InviteStatusExpired); err != nil {
			s.log.Warn("invite expiry update failed", zap.Error(err))
		}
		return domain.ErrInviteExpired
	}

	if _, err := s.membershipSvc.AddMember(ctx, invite.OrgID, userID, invite.Slot); err != nil {
		if errors.Is(err, membershipdomain.ErrMemberExists) {
			// Seat already taken by this user; the invite is spent
			// either way.
			return s.repo.UpdateInviteStatus(ctx, invite.ID, domain.InviteStatusAccepted)
		}
		return err
	}

	if err := s.repo.UpdateInviteStatus(ctx, invite.ID, domain.InviteStatusAccepted); err != nil {
		return err
	}

	s.audit(ctx, invite.OrgID, userID, "invite.accepted", map[string]any{
		"email": invite.Email,
		"slot":  invite.Slot,
	})
	return nil
}

func (s *service) RevokeInvite(ctx context.Context, actorID snowflake.ID, orgID string, inviteID string) error {
	id, err := parseOrgID(orgID)
	if err != nil {
		return err
	}
	if actorID == 0 {
		return domain.ErrInvalidUser
	}
	parsedInviteID, err := snowflake.ParseString(strings.TrimSpace(inviteID))
	if err != nil {
		return domain.ErrInvalidInvite
	}

	if err := s.requirePermission(ctx, actorID, id, permission.MembersManage); err != nil {
		return err
	}

	invite, err := s.repo.GetInvite(ctx, parsedInviteID)
	if err != nil {
		return err
	}
	if invite == nil || invite.OrgID != id || invite.Status != domain.InviteStatusPending {
		return domain.ErrInvalidInvite
	}

	if err := s.repo.UpdateInviteStatus(ctx, invite.ID, domain.InviteStatusRevoked); err != nil {
		return err
	}

	s.audit(ctx, id, actorID, "invite.revoked", map[string]any{
		"email": invite.Email,
		"slot":  invite.Slot,
	})
	return nil
}

func (s *service) requirePermission(ctx context.Context, actorID, orgID snowflake.ID, key permission.Key) error {
	slot, err := s.membershipSvc.GetSlot(ctx, actorID, orgID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNotMember) {
			return domain.ErrForbidden
		}
		return err
	}

	role, err := s.roleSvc.Resolve(ctx, orgID, slot)
	if err != nil {
		return err
	}
	if !role.Has(key) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *service) audit(ctx context.Context, orgID, actorID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actor := actorID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "user", &actor, action, "organization", nil, metadata); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func parseOrgID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidOrganization
	}
	return id, nil
}
