package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service resolves effective roles and gates organization role writes.
type Service interface {
	// Resolve computes the effective role for (orgID, slot). Pure given
	// current store state.
	Resolve(ctx context.Context, orgID snowflake.ID, slot int) (*EffectiveRole, error)
	// ListActiveRoles returns the effective roles of every active slot.
	ListActiveRoles(ctx context.Context, orgID snowflake.ID) ([]EffectiveRole, error)
	// UpsertOrgRole creates or updates an organization's slot
	// configuration and invalidates cached resolutions for the org.
	UpsertOrgRole(ctx context.Context, orgID snowflake.ID, slot int, req UpsertOrgRoleRequest) error
}

// UpsertOrgRoleRequest carries the mutable fields of an OrgRole. Nil
// pointers leave the stored value untouched; a nil Overrides slice keeps
// existing overrides, an empty one clears them.
type UpsertOrgRoleRequest struct {
	Label     *string
	IsActive  *bool
	Overrides []Override
}

var (
	ErrInvalidSlot         = errors.New("invalid_slot")
	ErrInvalidKey          = errors.New("invalid_permission_key")
	ErrInvalidLabel        = errors.New("invalid_label")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrRoleInactive        = errors.New("role_inactive")
	ErrAdminSlotImmutable  = errors.New("admin_slot_immutable")
	ErrUnavailable         = errors.New("store_unavailable")
)
