package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/greenroom/internal/cache"
	"github.com/smallbiznis/greenroom/internal/clock"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"github.com/smallbiznis/greenroom/internal/role/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var roleTestSeq atomic.Int64

func setupRoleService(t *testing.T) (*gorm.DB, roledomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:roletest%d?mode=memory&cache=shared", roleTestSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&roledomain.RoleTemplate{},
		&roledomain.OrgRole{},
		&roledomain.OrgRoleOverride{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.NewRepository(db),
	})
	return db, svc, node
}

func seedTemplate(t *testing.T, db *gorm.DB, slot int, keys ...string) {
	t.Helper()
	require.NoError(t, db.Create(&roledomain.RoleTemplate{
		Slot:        slot,
		Permissions: datatypes.JSONSlice[string](keys),
	}).Error)
}

func TestResolveAdminSlot(t *testing.T) {
	_, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)

	role, err := svc.Resolve(context.Background(), orgID, roledomain.AdminSlot)
	require.NoError(t, err)

	assert.True(t, role.IsActive)
	assert.Equal(t, AdminLabel, role.Label)
	for _, key := range permission.All() {
		assert.True(t, role.Has(key), key.String())
	}
}

func TestResolveAdminSlotIgnoresStoredConfiguration(t *testing.T) {
	db, svc, node := setupRoleService(t)
	orgID := snowflake.ID(100)

	// A row for slot 1 can exist from old data. Its deny overrides and
	// inactive flag must not leak into resolution.
	orgRole := roledomain.OrgRole{
		ID:       node.Generate(),
		OrgID:    orgID,
		Slot:     roledomain.AdminSlot,
		Label:    "Owner",
		IsActive: false,
	}
	require.NoError(t, db.Create(&orgRole).Error)
	require.NoError(t, db.Create(&roledomain.OrgRoleOverride{
		ID:        node.Generate(),
		OrgRoleID: orgRole.ID,
		Key:       permission.SettingsManage.String(),
		Allowed:   false,
	}).Error)

	role, err := svc.Resolve(context.Background(), orgID, roledomain.AdminSlot)
	require.NoError(t, err)

	assert.True(t, role.IsActive)
	assert.Equal(t, "Owner", role.Label)
	assert.True(t, role.Has(permission.SettingsManage))
}

func TestResolveUnconfiguredSlot(t *testing.T) {
	db, svc, _ := setupRoleService(t)
	seedTemplate(t, db, 4, permission.BookingView.String())

	role, err := svc.Resolve(context.Background(), snowflake.ID(100), 4)
	require.NoError(t, err)

	assert.False(t, role.IsActive)
	assert.Equal(t, roledomain.SyntheticLabel(4), role.Label)
	assert.Empty(t, role.Permissions)
}

func TestResolveMergesTemplateAndOverrides(t *testing.T) {
	db, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)
	seedTemplate(t, db, 2, permission.BookingView.String(), permission.MembersView.String())

	active := true
	label := "Shift Lead"
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 2, roledomain.UpsertOrgRoleRequest{
		Label:    &label,
		IsActive: &active,
		Overrides: []roledomain.Override{
			{Key: permission.SettingsManage, Allowed: true},
			{Key: permission.MembersView, Allowed: false},
		},
	}))

	role, err := svc.Resolve(context.Background(), orgID, 2)
	require.NoError(t, err)

	assert.True(t, role.IsActive)
	assert.Equal(t, "Shift Lead", role.Label)
	assert.True(t, role.Has(permission.BookingView))
	assert.True(t, role.Has(permission.SettingsManage))
	assert.False(t, role.Has(permission.MembersView))
}

func TestResolveInactiveSlotGrantsNothing(t *testing.T) {
	db, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)
	seedTemplate(t, db, 3, permission.BookingView.String())

	active := true
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 3, roledomain.UpsertOrgRoleRequest{
		IsActive: &active,
		Overrides: []roledomain.Override{
			{Key: permission.AuditView, Allowed: true},
		},
	}))
	inactive := false
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 3, roledomain.UpsertOrgRoleRequest{
		IsActive: &inactive,
	}))

	role, err := svc.Resolve(context.Background(), orgID, 3)
	require.NoError(t, err)
	assert.False(t, role.IsActive)
	assert.Empty(t, role.Permissions)
}

func TestResolveMissingTemplateIsEmptyNotFatal(t *testing.T) {
	_, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)

	active := true
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 6, roledomain.UpsertOrgRoleRequest{
		IsActive: &active,
		Overrides: []roledomain.Override{
			{Key: permission.DirectoryPublic, Allowed: true},
		},
	}))

	role, err := svc.Resolve(context.Background(), orgID, 6)
	require.NoError(t, err)
	assert.True(t, role.Has(permission.DirectoryPublic))
	assert.Len(t, role.Permissions, 1)
}

func TestResolveValidation(t *testing.T) {
	_, svc, _ := setupRoleService(t)

	_, err := svc.Resolve(context.Background(), 0, 2)
	assert.ErrorIs(t, err, roledomain.ErrInvalidOrganization)

	_, err = svc.Resolve(context.Background(), snowflake.ID(100), 0)
	assert.ErrorIs(t, err, roledomain.ErrInvalidSlot)

	_, err = svc.Resolve(context.Background(), snowflake.ID(100), 11)
	assert.ErrorIs(t, err, roledomain.ErrInvalidSlot)
}

func TestUpsertOrgRoleGuards(t *testing.T) {
	_, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)

	err := svc.UpsertOrgRole(context.Background(), orgID, roledomain.AdminSlot, roledomain.UpsertOrgRoleRequest{})
	assert.ErrorIs(t, err, roledomain.ErrAdminSlotImmutable)

	long := make([]byte, maxLabelLength+1)
	for i := range long {
		long[i] = 'a'
	}
	label := string(long)
	err = svc.UpsertOrgRole(context.Background(), orgID, 2, roledomain.UpsertOrgRoleRequest{Label: &label})
	assert.ErrorIs(t, err, roledomain.ErrInvalidLabel)

	blank := "   "
	err = svc.UpsertOrgRole(context.Background(), orgID, 2, roledomain.UpsertOrgRoleRequest{Label: &blank})
	assert.ErrorIs(t, err, roledomain.ErrInvalidLabel)
}

func TestUpsertOrgRoleNilOverridesKeepExisting(t *testing.T) {
	_, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)

	active := true
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 5, roledomain.UpsertOrgRoleRequest{
		IsActive: &active,
		Overrides: []roledomain.Override{
			{Key: permission.BookingView, Allowed: true},
		},
	}))

	label := "Front Desk"
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 5, roledomain.UpsertOrgRoleRequest{
		Label: &label,
	}))

	role, err := svc.Resolve(context.Background(), orgID, 5)
	require.NoError(t, err)
	assert.Equal(t, "Front Desk", role.Label)
	assert.True(t, role.Has(permission.BookingView))

	// An explicit empty slice clears them.
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 5, roledomain.UpsertOrgRoleRequest{
		Overrides: []roledomain.Override{},
	}))
	role, err = svc.Resolve(context.Background(), orgID, 5)
	require.NoError(t, err)
	assert.False(t, role.Has(permission.BookingView))
}

func TestListActiveRoles(t *testing.T) {
	db, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)
	seedTemplate(t, db, 2, permission.SettingsManage.String())
	seedTemplate(t, db, 3, permission.BookingView.String())

	active := true
	inactive := false
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 3, roledomain.UpsertOrgRoleRequest{IsActive: &active}))
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 2, roledomain.UpsertOrgRoleRequest{IsActive: &active}))
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 7, roledomain.UpsertOrgRoleRequest{IsActive: &inactive}))

	roles, err := svc.ListActiveRoles(context.Background(), orgID)
	require.NoError(t, err)

	slots := make([]int, 0, len(roles))
	for _, role := range roles {
		slots = append(slots, role.Slot)
	}
	// Slot 1 is always present, inactive slot 7 is not.
	assert.Equal(t, []int{1, 2, 3}, slots)
}

func TestUpsertOrgRoleIdempotent(t *testing.T) {
	db, svc, _ := setupRoleService(t)
	orgID := snowflake.ID(100)
	seedTemplate(t, db, 3, permission.BookingView.String())

	label := "Front Desk"
	active := true
	req := roledomain.UpsertOrgRoleRequest{
		Label:    &label,
		IsActive: &active,
		Overrides: []roledomain.Override{
			{Key: permission.MembersView, Allowed: true},
			{Key: permission.BookingView, Allowed: false},
		},
	}

	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 3, req))
	first, err := svc.Resolve(context.Background(), orgID, 3)
	require.NoError(t, err)

	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 3, req))
	second, err := svc.Resolve(context.Background(), orgID, 3)
	require.NoError(t, err)

	assert.Equal(t, first.Label, second.Label)
	assert.Equal(t, first.IsActive, second.IsActive)
	assert.Equal(t, first.Permissions.Strings(), second.Permissions.Strings())

	var count int64
	require.NoError(t, db.Model(&roledomain.OrgRole{}).Where("org_id = ? AND slot = ?", orgID, 3).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertOrgRoleInvalidatesOrg(t *testing.T) {
	dsn := fmt.Sprintf("file:roletest%d?mode=memory&cache=shared", roleTestSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&roledomain.RoleTemplate{},
		&roledomain.OrgRole{},
		&roledomain.OrgRoleOverride{},
	))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	resolverCache := cache.NewAuthzResolverCache(clock.NewFakeClock(time.Now()), cache.Config{})
	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.NewRepository(db),
		Invalidator: resolverCache,
	})

	orgID := snowflake.ID(100)
	resolverCache.SetEffectiveRole(orgID, 3, roledomain.EffectiveRole{
		Slot:     3,
		Label:    "Stale",
		IsActive: true,
	})
	resolverCache.SetEffectiveRole(snowflake.ID(200), 3, roledomain.EffectiveRole{Slot: 3})

	active := true
	require.NoError(t, svc.UpsertOrgRole(context.Background(), orgID, 3, roledomain.UpsertOrgRoleRequest{IsActive: &active}))

	_, hit := resolverCache.GetEffectiveRole(orgID, 3)
	assert.False(t, hit, "write must evict the org's cached roles")

	// Other organizations keep their entries.
	_, hit = resolverCache.GetEffectiveRole(snowflake.ID(200), 3)
	assert.True(t, hit)
}

// deadlineCheckRepo records whether store calls arrive with a deadline
// attached.
type deadlineCheckRepo struct {
	roledomain.Repository
	sawDeadline bool
}

func (r *deadlineCheckRepo) WithTx(tx *gorm.DB) roledomain.Repository { return r }

func (r *deadlineCheckRepo) GetTemplate(ctx context.Context, slot int) (*roledomain.RoleTemplate, error) {
	_, r.sawDeadline = ctx.Deadline()
	return nil, nil
}

func (r *deadlineCheckRepo) GetOrgRole(ctx context.Context, orgID snowflake.ID, slot int) (*roledomain.OrgRole, error) {
	_, r.sawDeadline = ctx.Deadline()
	return nil, nil
}

func (r *deadlineCheckRepo) SaveOrgRole(ctx context.Context, role roledomain.OrgRole) error {
	_, r.sawDeadline = ctx.Deadline()
	return nil
}

func TestStoreCallsCarryDeadline(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := &deadlineCheckRepo{}
	svc := NewService(Params{
		DB:    nil,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
	})

	_, err = svc.Resolve(context.Background(), snowflake.ID(100), 3)
	require.NoError(t, err)
	assert.True(t, repo.sawDeadline)
}
