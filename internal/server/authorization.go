package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/greenroom/internal/permission"
)

// CheckPermission answers "does the caller hold this key here" without
// mutating anything. Unknown keys and missing memberships both come back
// as allowed=false rather than an error.
func (s *Server) CheckPermission(c *gin.Context) {
	userID, orgID, err := requestIdentity(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	raw := strings.TrimSpace(c.Query("key"))
	if raw == "" {
		AbortWithError(c, newValidationError("key", "invalid_permission_key", "key is required"))
		return
	}

	key, err := permission.Parse(raw)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"key": raw, "allowed": false})
		return
	}

	allowed, err := s.authzSvc.HasPermission(c.Request.Context(), userID, orgID, key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"key": string(key), "allowed": allowed})
}

// GetMyRole returns the caller's slot and effective role in the active
// organization.
func (s *Server) GetMyRole(c *gin.Context) {
	userID, orgID, err := requestIdentity(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slot, err := s.authzSvc.UserSlot(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	role, err := s.authzSvc.EffectiveRole(c.Request.Context(), orgID, slot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slot": slot,
		"role": newEffectiveRoleResponse(*role),
	})
}
