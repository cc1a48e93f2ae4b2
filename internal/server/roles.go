package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
)

type effectiveRoleResponse struct {
	Slot        int      `json:"slot"`
	Label       string   `json:"label"`
	IsActive    bool     `json:"is_active"`
	Permissions []string `json:"permissions"`
}

func newEffectiveRoleResponse(role roledomain.EffectiveRole) effectiveRoleResponse {
	return effectiveRoleResponse{
		Slot:        role.Slot,
		Label:       role.Label,
		IsActive:    role.IsActive,
		Permissions: role.Permissions.Strings(),
	}
}

func (s *Server) ListRoles(c *gin.Context) {
	orgID, err := currentOrgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	roles, err := s.roleSvc.ListActiveRoles(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]effectiveRoleResponse, 0, len(roles))
	for _, role := range roles {
		data = append(data, newEffectiveRoleResponse(role))
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) GetRole(c *gin.Context) {
	orgID, err := currentOrgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slot, err := parseSlotParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	role, err := s.roleSvc.Resolve(c.Request.Context(), orgID, slot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEffectiveRoleResponse(*role))
}

type upsertRoleRequest struct {
	Label     *string              `json:"label"`
	IsActive  *bool                `json:"is_active"`
	Overrides []upsertRoleOverride `json:"overrides"`
}

type upsertRoleOverride struct {
	Key     string `json:"key"`
	Allowed bool   `json:"allowed"`
}

func (s *Server) UpsertRole(c *gin.Context) {
	orgID, err := currentOrgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	slot, err := parseSlotParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req upsertRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var overrides []roledomain.Override
	if req.Overrides != nil {
		overrides = make([]roledomain.Override, 0, len(req.Overrides))
		for _, entry := range req.Overrides {
			key, err := permission.Parse(entry.Key)
			if err != nil {
				AbortWithError(c, newValidationError("overrides", "invalid_permission_key", "unknown permission key"))
				return
			}
			overrides = append(overrides, roledomain.Override{Key: key, Allowed: entry.Allowed})
		}
	}

	if err := s.roleSvc.UpsertOrgRole(c.Request.Context(), orgID, slot, roledomain.UpsertOrgRoleRequest{
		Label:     req.Label,
		IsActive:  req.IsActive,
		Overrides: overrides,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	role, err := s.roleSvc.Resolve(c.Request.Context(), orgID, slot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEffectiveRoleResponse(*role))
}

func parseSlotParam(c *gin.Context) (int, error) {
	slot, err := strconv.Atoi(strings.TrimSpace(c.Param("slot")))
	if err != nil || !roledomain.ValidSlot(slot) {
		return 0, newValidationError("slot", "invalid_slot", "slot must be between 1 and 10")
	}
	return slot, nil
}
