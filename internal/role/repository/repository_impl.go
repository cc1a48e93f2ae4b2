package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) roledomain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) roledomain.Repository {
	return &repository{db: tx}
}

func (r *repository) GetTemplate(ctx context.Context, slot int) (*roledomain.RoleTemplate, error) {
	var template roledomain.RoleTemplate
	err := r.db.WithContext(ctx).First(&template, "slot = ?", slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *repository) UpsertTemplate(ctx context.Context, template roledomain.RoleTemplate) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"permissions", "updated_at"}),
	}).Create(&template).Error
}

func (r *repository) GetOrgRole(ctx context.Context, orgID snowflake.ID, slot int) (*roledomain.OrgRole, error) {
	var orgRole roledomain.OrgRole
	err := r.db.WithContext(ctx).
		Preload("Overrides").
		First(&orgRole, "org_id = ? AND slot = ?", orgID, slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &orgRole, nil
}

func (r *repository) ListOrgRoles(ctx context.Context, orgID snowflake.ID) ([]roledomain.OrgRole, error) {
	var orgRoles []roledomain.OrgRole
	err := r.db.WithContext(ctx).
		Preload("Overrides").
		Where("org_id = ?", orgID).
		Order("slot ASC").
		Find(&orgRoles).Error
	if err != nil {
		return nil, err
	}
	return orgRoles, nil
}

func (r *repository) SaveOrgRole(ctx context.Context, role roledomain.OrgRole) error {
	role.Overrides = nil
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "is_active", "updated_at"}),
	}).Create(&role).Error
}

func (r *repository) ReplaceOverrides(ctx context.Context, orgRoleID snowflake.ID, overrides []roledomain.OrgRoleOverride) error {
	if err := r.db.WithContext(ctx).Exec(
		`DELETE FROM org_role_overrides WHERE org_role_id = ?`,
		orgRoleID,
	).Error; err != nil {
		return err
	}
	if len(overrides) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&overrides).Error
}
