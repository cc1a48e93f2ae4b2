// Package authorization is the engine boundary route handlers consume:
// permission checks for an identified (user, organization) caller, backed
// by the effective role resolver through the resolution cache.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
)

type Service interface {
	// HasPermission reports whether userID holds key in orgID. Unknown
	// keys fail closed; a store outage surfaces as ErrUnavailable so it
	// stays distinguishable from a true denial.
	HasPermission(ctx context.Context, userID, orgID snowflake.ID, key permission.Key) (bool, error)
	// Authorize is HasPermission collapsed to the error plane for
	// middleware use: nil when granted, ErrForbidden when not.
	Authorize(ctx context.Context, userID, orgID snowflake.ID, key permission.Key) error
	// EffectiveRole resolves (orgID, slot) through the cache.
	EffectiveRole(ctx context.Context, orgID snowflake.ID, slot int) (*roledomain.EffectiveRole, error)
	// UserSlot resolves the caller's slot through the cache, or
	// ErrNoMembership.
	UserSlot(ctx context.Context, userID, orgID snowflake.ID) (int, error)
}

var (
	ErrForbidden    = errors.New("forbidden")
	ErrNoMembership = errors.New("no_membership")
)
