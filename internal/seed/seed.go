package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/config"
	organizationdomain "github.com/smallbiznis/greenroom/internal/organization/domain"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	rolerepository "github.com/smallbiznis/greenroom/internal/role/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
)

// SyncTemplates upserts the global slot templates from the roles
// config. Keys outside the permission catalog are dropped. Slot 1 never
// receives a row; it resolves to the full catalog unconditionally.
func SyncTemplates(db *gorm.DB, cfg config.RolesConfig) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()

	rows := make([]roledomain.RoleTemplate, 0, len(cfg.Templates))
	for _, tpl := range cfg.Templates {
		if tpl.Slot <= roledomain.AdminSlot || tpl.Slot > roledomain.MaxSlot {
			continue
		}
		keys := make([]string, 0, len(tpl.Permissions))
		seen := make(map[string]struct{}, len(tpl.Permissions))
		for _, raw := range tpl.Permissions {
			key, err := permission.Parse(raw)
			if err != nil {
				continue
			}
			if _, dup := seen[string(key)]; dup {
				continue
			}
			seen[string(key)] = struct{}{}
			keys = append(keys, string(key))
		}
		rows = append(rows, roledomain.RoleTemplate{
			Slot:        tpl.Slot,
			Permissions: datatypes.JSONSlice[string](keys),
			UpdatedAt:   now,
		})
	}

	repo := rolerepository.NewRepository(db)
	for _, row := range rows {
		if err := repo.UpsertTemplate(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// EnsureMainOrg seeds the default organization for startup bootstrap.
func EnsureMainOrg(db *gorm.DB, name string) error {
	return ensureOrg(db, nil, name)
}

// EnsureMainOrgWithID seeds the default organization under a fixed ID so
// self-hosted deployments keep stable references.
func EnsureMainOrgWithID(db *gorm.DB, orgID int64, name string) error {
	id := snowflake.ID(orgID)
	return ensureOrg(db, &id, name)
}

func ensureOrg(db *gorm.DB, orgID *snowflake.ID, name string) error {
	if name == "" {
		name = defaultOrgName
	}
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org organizationdomain.Organization
		err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		id := node.Generate()
		if orgID != nil && *orgID != 0 {
			id = *orgID
		}
		now := time.Now().UTC()
		org = organizationdomain.Organization{
			ID:        id,
			Name:      name,
			Slug:      defaultOrgSlug,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&org).Error
	})
}
