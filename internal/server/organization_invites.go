package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/greenroom/internal/organization/domain"
)

type inviteMembersRequest struct {
	Invites []inviteMemberEntry `json:"invites"`
}

type inviteMemberEntry struct {
	Email string `json:"email"`
	Slot  int    `json:"slot"`
}

func (s *Server) InviteMembers(c *gin.Context) {
	userID, orgID, err := requestIdentity(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req inviteMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Invites) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	invites := make([]organizationdomain.InviteRequest, 0, len(req.Invites))
	for _, entry := range req.Invites {
		invites = append(invites, organizationdomain.InviteRequest{
			Email: strings.TrimSpace(entry.Email),
			Slot:  entry.Slot,
		})
	}

	resp, err := s.organizationSvc.InviteMembers(c.Request.Context(), userID, orgID.String(), invites)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

func (s *Server) AcceptInvite(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req acceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.organizationSvc.AcceptInvite(c.Request.Context(), userID, strings.TrimSpace(req.Token)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) RevokeInvite(c *gin.Context) {
	userID, orgID, err := requestIdentity(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inviteID := strings.TrimSpace(c.Param("invite_id"))
	if inviteID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.organizationSvc.RevokeInvite(c.Request.Context(), userID, orgID.String(), inviteID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
