package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service gates every membership mutation behind the organization-wide
// safety rails and answers slot lookups.
type Service interface {
	// GetSlot returns the slot userID holds in orgID, or ErrNotMember.
	GetSlot(ctx context.Context, userID, orgID snowflake.ID) (int, error)
	// ListMembers returns the organization roster.
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]Membership, error)
	// AddMember creates a membership in a non-administrator, active slot.
	// Slot 1 memberships are only created by organization provisioning.
	AddMember(ctx context.Context, orgID, userID snowflake.ID, slot int) (*Membership, error)
	// ChangeSlot moves the target to a new slot after the guard checks
	// pass. No store mutation occurs on a guard failure.
	ChangeSlot(ctx context.Context, req ChangeSlotRequest) (*Membership, error)
	// RemoveMembership deletes the target's membership after the guard
	// checks pass.
	RemoveMembership(ctx context.Context, req RemoveMembershipRequest) error
}

type ChangeSlotRequest struct {
	ActorID      snowflake.ID
	TargetUserID snowflake.ID
	OrgID        snowflake.ID
	NewSlot      int
	// Confirm acknowledges a self-demotion that strips the actor's own
	// settings:manage permission.
	Confirm bool
}

type RemoveMembershipRequest struct {
	ActorID      snowflake.ID
	TargetUserID snowflake.ID
	OrgID        snowflake.ID
	Confirm      bool
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrNotMember            = errors.New("not_a_member")
	ErrMemberExists         = errors.New("member_exists")
	ErrForbidden            = errors.New("forbidden")
	ErrLastManager          = errors.New("last_manager")
	ErrConfirmationRequired = errors.New("confirmation_required")
)
