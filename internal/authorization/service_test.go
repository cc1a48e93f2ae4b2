package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/cache"
	"github.com/smallbiznis/greenroom/internal/clock"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// -- Mocks --

type roleSvcMock struct {
	mock.Mock
}

func (m *roleSvcMock) Resolve(ctx context.Context, orgID snowflake.ID, slot int) (*roledomain.EffectiveRole, error) {
	args := m.Called(ctx, orgID, slot)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.(*roledomain.EffectiveRole), args.Error(1)
}

func (m *roleSvcMock) ListActiveRoles(ctx context.Context, orgID snowflake.ID) ([]roledomain.EffectiveRole, error) {
	return nil, nil
}

func (m *roleSvcMock) UpsertOrgRole(ctx context.Context, orgID snowflake.ID, slot int, req roledomain.UpsertOrgRoleRequest) error {
	return nil
}

type membershipSvcMock struct {
	mock.Mock
}

func (m *membershipSvcMock) GetSlot(ctx context.Context, userID, orgID snowflake.ID) (int, error) {
	args := m.Called(ctx, userID, orgID)
	return args.Int(0), args.Error(1)
}

func (m *membershipSvcMock) ListMembers(ctx context.Context, orgID snowflake.ID) ([]membershipdomain.Membership, error) {
	return nil, nil
}

func (m *membershipSvcMock) AddMember(ctx context.Context, orgID, userID snowflake.ID, slot int) (*membershipdomain.Membership, error) {
	return nil, nil
}

func (m *membershipSvcMock) ChangeSlot(ctx context.Context, req membershipdomain.ChangeSlotRequest) (*membershipdomain.Membership, error) {
	return nil, nil
}

func (m *membershipSvcMock) RemoveMembership(ctx context.Context, req membershipdomain.RemoveMembershipRequest) error {
	return nil
}

// -- Tests --

func managerRole() *roledomain.EffectiveRole {
	return &roledomain.EffectiveRole{
		Slot:        2,
		Label:       "Manager",
		IsActive:    true,
		Permissions: permission.NewSet(permission.SettingsManage, permission.MembersManage),
	}
}

func setupAuthz(t *testing.T) (Service, *roleSvcMock, *membershipSvcMock, *clock.FakeClock) {
	t.Helper()

	roleSvc := &roleSvcMock{}
	membershipSvc := &membershipSvcMock{}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		Log:           zap.NewNop(),
		RoleSvc:       roleSvc,
		MembershipSvc: membershipSvc,
		Cache:         cache.NewAuthzResolverCache(clk, cache.Config{SlotTTL: 15 * time.Second, RoleTTL: 15 * time.Second}),
	})
	return svc, roleSvc, membershipSvc, clk
}

func TestHasPermissionGrantAndDeny(t *testing.T) {
	svc, roleSvc, membershipSvc, _ := setupAuthz(t)
	user := snowflake.ID(7)
	org := snowflake.ID(42)

	membershipSvc.On("GetSlot", mock.Anything, user, org).Return(2, nil).Once()
	roleSvc.On("Resolve", mock.Anything, org, 2).Return(managerRole(), nil).Once()

	allowed, err := svc.HasPermission(context.Background(), user, org, permission.SettingsManage)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Second check is served from the cache: no further store reads.
	allowed, err = svc.HasPermission(context.Background(), user, org, permission.AuditView)
	require.NoError(t, err)
	assert.False(t, allowed)

	membershipSvc.AssertNumberOfCalls(t, "GetSlot", 1)
	roleSvc.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestHasPermissionUnknownKeyFailsClosed(t *testing.T) {
	svc, _, _, _ := setupAuthz(t)

	allowed, err := svc.HasPermission(context.Background(), snowflake.ID(7), snowflake.ID(42), permission.Key("billing:manage"))
	assert.ErrorIs(t, err, roledomain.ErrInvalidKey)
	assert.False(t, allowed)

	// Authorize collapses the same case to a denial.
	err = svc.Authorize(context.Background(), snowflake.ID(7), snowflake.ID(42), permission.Key("billing:manage"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestHasPermissionNonMember(t *testing.T) {
	svc, _, membershipSvc, _ := setupAuthz(t)
	user := snowflake.ID(7)
	org := snowflake.ID(42)

	membershipSvc.On("GetSlot", mock.Anything, user, org).Return(0, membershipdomain.ErrNotMember).Once()

	allowed, err := svc.HasPermission(context.Background(), user, org, permission.BookingView)
	require.NoError(t, err)
	assert.False(t, allowed)

	// The negative lookup is cached.
	allowed, err = svc.HasPermission(context.Background(), user, org, permission.BookingView)
	require.NoError(t, err)
	assert.False(t, allowed)
	membershipSvc.AssertNumberOfCalls(t, "GetSlot", 1)

	_, err = svc.UserSlot(context.Background(), user, org)
	assert.ErrorIs(t, err, ErrNoMembership)
}

func TestCacheExpiryTriggersReresolve(t *testing.T) {
	svc, roleSvc, membershipSvc, clk := setupAuthz(t)
	user := snowflake.ID(7)
	org := snowflake.ID(42)

	membershipSvc.On("GetSlot", mock.Anything, user, org).Return(2, nil).Twice()
	roleSvc.On("Resolve", mock.Anything, org, 2).Return(managerRole(), nil).Twice()

	_, err := svc.HasPermission(context.Background(), user, org, permission.SettingsManage)
	require.NoError(t, err)

	clk.Advance(16 * time.Second)

	_, err = svc.HasPermission(context.Background(), user, org, permission.SettingsManage)
	require.NoError(t, err)

	membershipSvc.AssertExpectations(t)
	roleSvc.AssertExpectations(t)
}

func TestStoreOutageSurfacesAsUnavailable(t *testing.T) {
	svc, roleSvc, membershipSvc, _ := setupAuthz(t)
	user := snowflake.ID(7)
	org := snowflake.ID(42)

	membershipSvc.On("GetSlot", mock.Anything, user, org).Return(2, nil)
	roleSvc.On("Resolve", mock.Anything, org, 2).Return(nil, roledomain.ErrUnavailable)

	_, err := svc.HasPermission(context.Background(), user, org, permission.BookingView)
	assert.ErrorIs(t, err, roledomain.ErrUnavailable)

	// An outage must not be conflated with a denial.
	err = svc.Authorize(context.Background(), user, org, permission.BookingView)
	assert.ErrorIs(t, err, roledomain.ErrUnavailable)
}
