package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/clock"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"github.com/stretchr/testify/assert"
)

func testRole(slot int) roledomain.EffectiveRole {
	return roledomain.EffectiveRole{
		Slot:        slot,
		Label:       roledomain.SyntheticLabel(slot),
		IsActive:    true,
		Permissions: permission.NewSet(permission.BookingView),
	}
}

func TestResolverCacheTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewAuthzResolverCache(clk, Config{SlotTTL: 10 * time.Second, RoleTTL: 30 * time.Second})

	user := snowflake.ID(7)
	org := snowflake.ID(42)

	c.SetUserSlot(user, org, 3)
	c.SetEffectiveRole(org, 3, testRole(3))

	slot, ok := c.GetUserSlot(user, org)
	assert.True(t, ok)
	assert.Equal(t, 3, slot)

	clk.Advance(11 * time.Second)
	_, ok = c.GetUserSlot(user, org)
	assert.False(t, ok)

	// The role TTL is longer, so the role entry is still live.
	role, ok := c.GetEffectiveRole(org, 3)
	assert.True(t, ok)
	assert.Equal(t, 3, role.Slot)

	clk.Advance(20 * time.Second)
	_, ok = c.GetEffectiveRole(org, 3)
	assert.False(t, ok)
}

func TestResolverCacheNoMembershipSentinel(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewAuthzResolverCache(clk, Config{})

	c.SetUserSlot(snowflake.ID(7), snowflake.ID(42), NoMembership)

	slot, ok := c.GetUserSlot(snowflake.ID(7), snowflake.ID(42))
	assert.True(t, ok)
	assert.Equal(t, NoMembership, slot)
}

func TestResolverCacheInvalidateOrg(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewAuthzResolverCache(clk, Config{})

	orgA := snowflake.ID(1)
	orgB := snowflake.ID(2)
	user := snowflake.ID(7)

	c.SetUserSlot(user, orgA, 2)
	c.SetUserSlot(user, orgB, 4)
	c.SetEffectiveRole(orgA, 2, testRole(2))
	c.SetEffectiveRole(orgB, 4, testRole(4))

	c.InvalidateOrg(orgA)

	_, ok := c.GetUserSlot(user, orgA)
	assert.False(t, ok)
	_, ok = c.GetEffectiveRole(orgA, 2)
	assert.False(t, ok)

	// The other organization is untouched.
	slot, ok := c.GetUserSlot(user, orgB)
	assert.True(t, ok)
	assert.Equal(t, 4, slot)
	_, ok = c.GetEffectiveRole(orgB, 4)
	assert.True(t, ok)
}

func TestResolverCacheInvalidateAll(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewAuthzResolverCache(clk, Config{})

	c.SetUserSlot(snowflake.ID(7), snowflake.ID(1), 2)
	c.SetEffectiveRole(snowflake.ID(1), 2, testRole(2))

	c.InvalidateAll()

	_, ok := c.GetUserSlot(snowflake.ID(7), snowflake.ID(1))
	assert.False(t, ok)
	_, ok = c.GetEffectiveRole(snowflake.ID(1), 2)
	assert.False(t, ok)
}

func TestResolverCacheIgnoresZeroIDs(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewAuthzResolverCache(clk, Config{})

	c.SetUserSlot(0, snowflake.ID(1), 2)
	c.SetEffectiveRole(0, 2, testRole(2))

	_, ok := c.GetUserSlot(0, snowflake.ID(1))
	assert.False(t, ok)
	_, ok = c.GetEffectiveRole(0, 2)
	assert.False(t, ok)
}
