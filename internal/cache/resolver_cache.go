package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/clock"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
)

const (
	defaultRoleTTL = 15 * time.Second
	defaultSlotTTL = 15 * time.Second
)

// NoMembership is the cached slot sentinel for a user with no membership
// in the organization, so repeated negative lookups do not thrash the
// store.
const NoMembership = 0

// Config bounds entry staleness. Zero values fall back to the defaults.
type Config struct {
	SlotTTL time.Duration
	RoleTTL time.Duration
}

// Invalidator is the write-path handle to the resolver cache.
type Invalidator interface {
	InvalidateOrg(orgID snowflake.ID)
	InvalidateAll()
}

// AuthzResolverCache stores hot-path authorization lookups: the slot a
// user holds in an organization and the effective role of an
// (organization, slot) pair.
type AuthzResolverCache interface {
	Invalidator

	GetUserSlot(userID, orgID snowflake.ID) (int, bool)
	SetUserSlot(userID, orgID snowflake.ID, slot int)
	GetEffectiveRole(orgID snowflake.ID, slot int) (roledomain.EffectiveRole, bool)
	SetEffectiveRole(orgID snowflake.ID, slot int, role roledomain.EffectiveRole)
}

type slotKey struct {
	userID snowflake.ID
	orgID  snowflake.ID
}

type roleKey struct {
	orgID snowflake.ID
	slot  int
}

type authzResolverCache struct {
	slots   Cache[slotKey, int]
	roles   Cache[roleKey, roledomain.EffectiveRole]
	slotTTL time.Duration
	roleTTL time.Duration
}

// NewAuthzResolverCache returns an in-memory cache bounded by short TTLs.
// Explicit invalidation, not the TTL, is the consistency mechanism; the
// TTL only bounds staleness between invalidations under concurrent
// writers.
func NewAuthzResolverCache(clk clock.Clock, cfg Config) AuthzResolverCache {
	slotTTL := cfg.SlotTTL
	if slotTTL <= 0 {
		slotTTL = defaultSlotTTL
	}
	roleTTL := cfg.RoleTTL
	if roleTTL <= 0 {
		roleTTL = defaultRoleTTL
	}
	return &authzResolverCache{
		slots:   NewTTLCache[slotKey, int](clk),
		roles:   NewTTLCache[roleKey, roledomain.EffectiveRole](clk),
		slotTTL: slotTTL,
		roleTTL: roleTTL,
	}
}

func (c *authzResolverCache) GetUserSlot(userID, orgID snowflake.ID) (int, bool) {
	return c.slots.Get(slotKey{userID: userID, orgID: orgID})
}

func (c *authzResolverCache) SetUserSlot(userID, orgID snowflake.ID, slot int) {
	if userID == 0 || orgID == 0 {
		return
	}
	c.slots.Set(slotKey{userID: userID, orgID: orgID}, slot, c.slotTTL)
}

func (c *authzResolverCache) GetEffectiveRole(orgID snowflake.ID, slot int) (roledomain.EffectiveRole, bool) {
	return c.roles.Get(roleKey{orgID: orgID, slot: slot})
}

func (c *authzResolverCache) SetEffectiveRole(orgID snowflake.ID, slot int, role roledomain.EffectiveRole) {
	if orgID == 0 {
		return
	}
	c.roles.Set(roleKey{orgID: orgID, slot: slot}, role, c.roleTTL)
}

func (c *authzResolverCache) InvalidateOrg(orgID snowflake.ID) {
	if orgID == 0 {
		return
	}
	c.slots.ExpireMatching(func(key slotKey) bool { return key.orgID == orgID })
	c.roles.ExpireMatching(func(key roleKey) bool { return key.orgID == orgID })
}

func (c *authzResolverCache) InvalidateAll() {
	c.slots.Flush()
	c.roles.Flush()
}
