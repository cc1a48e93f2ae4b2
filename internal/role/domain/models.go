// Package domain contains persistence models and contracts for slot roles.
package domain

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/permission"
	"gorm.io/datatypes"
)

// Slot bounds. Slot 1 is the permanent organization administrator.
const (
	MinSlot   = 1
	MaxSlot   = 10
	AdminSlot = 1
)

// ValidSlot reports whether slot falls inside the configured range.
func ValidSlot(slot int) bool {
	return slot >= MinSlot && slot <= MaxSlot
}

// RoleTemplate is the global default permission set for a slot,
// independent of any organization.
type RoleTemplate struct {
	Slot        int                        `gorm:"primaryKey" json:"slot"`
	Permissions datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"permissions"`
	UpdatedAt   time.Time                  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RoleTemplate) TableName() string { return "role_templates" }

// PermissionSet returns the template permissions restricted to the catalog.
func (t RoleTemplate) PermissionSet() permission.Set {
	set := make(permission.Set, len(t.Permissions))
	for _, raw := range t.Permissions {
		if key, err := permission.Parse(raw); err == nil {
			set.Add(key)
		}
	}
	return set
}

// OrgRole is an organization's configuration of one slot: a display label,
// an active flag and explicit per-key overrides on top of the template.
type OrgRole struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_org_roles_org_slot,priority:1" json:"org_id"`
	Slot      int               `gorm:"not null;uniqueIndex:ux_org_roles_org_slot,priority:2" json:"slot"`
	Label     string            `gorm:"type:text;not null" json:"label"`
	IsActive  bool              `gorm:"not null;default:false" json:"is_active"`
	Overrides []OrgRoleOverride `gorm:"foreignKey:OrgRoleID" json:"overrides"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OrgRole) TableName() string { return "org_roles" }

// OrgRoleOverride adds a permission the template lacks or revokes one it
// grants. At most one row per key survives a write.
type OrgRoleOverride struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgRoleID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_role_overrides_role_key,priority:1" json:"org_role_id"`
	Key       string       `gorm:"type:text;not null;uniqueIndex:ux_org_role_overrides_role_key,priority:2" json:"key"`
	Allowed   bool         `gorm:"not null" json:"allowed"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrgRoleOverride) TableName() string { return "org_role_overrides" }

// Override is the value form of an override used by the merge.
type Override struct {
	Key     permission.Key `json:"key"`
	Allowed bool           `json:"allowed"`
}

// EffectiveRole is the merged, active-gated permission set for one
// (organization, slot) pair. Derived, never persisted.
type EffectiveRole struct {
	Slot        int            `json:"slot"`
	Label       string         `json:"label"`
	IsActive    bool           `json:"is_active"`
	Permissions permission.Set `json:"-"`
}

// Has reports whether the effective role grants key.
func (r EffectiveRole) Has(key permission.Key) bool {
	return r.Permissions.Has(key)
}

// SyntheticLabel is the display label for a slot an organization never
// configured.
func SyntheticLabel(slot int) string {
	return "Role " + strconv.Itoa(slot)
}
