package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create provisions a tenant and seats the creator in slot 1.
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListResponseItem, error)
	// InviteMembers issues invites into slots 2..10 on behalf of an
	// actor holding members:manage.
	InviteMembers(ctx context.Context, actorID snowflake.ID, orgID string, invites []InviteRequest) ([]InviteResponse, error)
	// AcceptInvite redeems a pending invite token and seats the user.
	AcceptInvite(ctx context.Context, userID snowflake.ID, token string) error
	// RevokeInvite cancels a pending invite.
	RevokeInvite(ctx context.Context, actorID snowflake.ID, orgID string, inviteID string) error
}

type CreateOrganizationRequest struct {
	Name string
}

type InviteRequest struct {
	Email string
	Slot  int
}

type InviteResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Slot      int       `json:"slot"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type OrganizationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type OrganizationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slot      int       `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidInvite       = errors.New("invalid_invite")
	ErrInviteExpired       = errors.New("invite_expired")
	ErrForbidden           = errors.New("forbidden")
)
