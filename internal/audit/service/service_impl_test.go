package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/greenroom/internal/audit/domain"
	"github.com/smallbiznis/greenroom/internal/audit/repository"
	"github.com/smallbiznis/greenroom/internal/orgcontext"
	"github.com/smallbiznis/greenroom/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var auditTestSeq atomic.Int64

func setupAuditService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:audittest%d?mode=memory&cache=shared", auditTestSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, db
}

func orgCtx(orgID snowflake.ID) context.Context {
	return orgcontext.WithOrgID(context.Background(), int64(orgID))
}

func TestAuditLogMasksSensitiveMetadata(t *testing.T) {
	svc, db := setupAuditService(t)
	orgID := snowflake.ID(100)

	actorID := "7"
	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "user", &actorID, "invite.created", "organization", nil, map[string]any{
		"email": "sam@example.com",
		"slot":  3,
	}))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "invite.created", entry.Action)
	assert.Equal(t, "****.com", entry.Metadata["email"])
	assert.NotContains(t, fmt.Sprint(entry.Metadata["email"]), "sam@")
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := setupAuditService(t)
	orgID := snowflake.ID(100)

	err := svc.AuditLog(context.Background(), &orgID, "user", nil, "  ", "organization", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListScopedToOrgInContext(t *testing.T) {
	svc, _ := setupAuditService(t)
	orgA := snowflake.ID(1)
	orgB := snowflake.ID(2)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(context.Background(), &orgA, "user", nil, "membership.slot_changed", "membership", nil, nil))
	}
	require.NoError(t, svc.AuditLog(context.Background(), &orgB, "user", nil, "membership.removed", "membership", nil, nil))

	resp, err := svc.List(orgCtx(orgA), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 3)
	for _, entry := range resp.AuditLogs {
		assert.Equal(t, orgA, entry.OrgID)
	}

	// Without an org in context the list is refused.
	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, db := setupAuditService(t)
	orgID := snowflake.ID(1)

	base := time.Now().UTC().Truncate(time.Minute).Add(-time.Hour)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&auditdomain.AuditLog{
			ID:         node.Generate(),
			OrgID:      orgID,
			ActorType:  "user",
			Action:     "membership.slot_changed",
			TargetType: "membership",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, db.Create(&auditdomain.AuditLog{
		ID:         node.Generate(),
		OrgID:      orgID,
		ActorType:  "user",
		Action:     "invite.created",
		TargetType: "organization",
		CreatedAt:  base.Add(10 * time.Minute),
	}).Error)

	resp, err := svc.List(orgCtx(orgID), auditdomain.ListAuditLogRequest{Action: "membership.slot_changed"})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 5)

	resp, err = svc.List(orgCtx(orgID), auditdomain.ListAuditLogRequest{
		Pagination: paginationWithSize(2),
	})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
	assert.True(t, resp.HasMore)
	require.NotEmpty(t, resp.NextPageToken)

	next, err := svc.List(orgCtx(orgID), auditdomain.ListAuditLogRequest{
		Pagination: paginationWithToken(resp.NextPageToken, 2),
	})
	require.NoError(t, err)
	assert.Len(t, next.AuditLogs, 2)
	// No overlap between pages.
	for _, a := range resp.AuditLogs {
		for _, b := range next.AuditLogs {
			assert.NotEqual(t, a.ID, b.ID)
		}
	}
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := setupAuditService(t)
	orgID := snowflake.ID(1)

	start := time.Now().UTC()
	end := start.Add(-time.Hour)
	_, err := svc.List(orgCtx(orgID), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	_, err = svc.List(orgCtx(orgID), auditdomain.ListAuditLogRequest{
		Pagination: paginationWithToken("not-base64!", 10),
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func paginationWithSize(size int) pagination.Pagination {
	return pagination.Pagination{PageSize: size}
}

func paginationWithToken(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}
