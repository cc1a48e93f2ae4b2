package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) membershipdomain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) membershipdomain.Repository {
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, orgID, userID snowflake.ID) (*membershipdomain.Membership, error) {
	var membership membershipdomain.Membership
	err := r.db.WithContext(ctx).
		First(&membership, "org_id = ? AND user_id = ?", orgID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID) ([]membershipdomain.Membership, error) {
	var memberships []membershipdomain.Membership
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *repository) Create(ctx context.Context, membership membershipdomain.Membership) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, slot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		membership.ID,
		membership.OrgID,
		membership.UserID,
		membership.Slot,
		membership.CreatedAt,
		membership.UpdatedAt,
	).Error
}

func (r *repository) UpdateSlot(ctx context.Context, id snowflake.ID, slot int, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organization_members SET slot = ?, updated_at = ? WHERE id = ?`,
		slot,
		at,
		id,
	).Error
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE id = ?`,
		id,
	).Error
}
