package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/greenroom/internal/membership/domain"
)

func (s *Server) ListMembers(c *gin.Context) {
	orgID, err := currentOrgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.membershipSvc.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Slot   int    `json:"slot"`
}

func (s *Server) AddMember(c *gin.Context) {
	orgID, err := currentOrgID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user id"))
		return
	}

	member, err := s.membershipSvc.AddMember(c.Request.Context(), orgID, userID, req.Slot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

type changeMemberSlotRequest struct {
	Slot    int  `json:"slot"`
	Confirm bool `json:"confirm"`
}

func (s *Server) ChangeMemberSlot(c *gin.Context) {
	actorID, orgID, err := requestIdentity(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID, err := parseUserParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req changeMemberSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.membershipSvc.ChangeSlot(c.Request.Context(), membershipdomain.ChangeSlotRequest{
		ActorID:      actorID,
		TargetUserID: targetID,
		OrgID:        orgID,
		NewSlot:      req.Slot,
		Confirm:      req.Confirm,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, member)
}

func (s *Server) RemoveMember(c *gin.Context) {
	actorID, orgID, err := requestIdentity(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID, err := parseUserParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	confirm, err := parseOptionalBool(c.Query("confirm"))
	if err != nil {
		AbortWithError(c, newValidationError("confirm", "invalid_confirm", "confirm must be a boolean"))
		return
	}

	if err := s.membershipSvc.RemoveMembership(c.Request.Context(), membershipdomain.RemoveMembershipRequest{
		ActorID:      actorID,
		TargetUserID: targetID,
		OrgID:        orgID,
		Confirm:      confirm != nil && *confirm,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func parseUserParam(c *gin.Context) (snowflake.ID, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(c.Param("user_id")))
	if err != nil || userID == 0 {
		return 0, newValidationError("user_id", "invalid_user", "invalid user id")
	}
	return userID, nil
}
