package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable store behind templates and org roles. A nil
// result with nil error means the row does not exist; the resolver treats
// both absences as defined defaults, not failures.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetTemplate(ctx context.Context, slot int) (*RoleTemplate, error)
	UpsertTemplate(ctx context.Context, template RoleTemplate) error

	GetOrgRole(ctx context.Context, orgID snowflake.ID, slot int) (*OrgRole, error)
	ListOrgRoles(ctx context.Context, orgID snowflake.ID) ([]OrgRole, error)
	SaveOrgRole(ctx context.Context, role OrgRole) error
	ReplaceOverrides(ctx context.Context, orgRoleID snowflake.ID, overrides []OrgRoleOverride) error
}
