// Package member is the typed facade for the member collection.
package member

import (
	"log/slog"
	"time"

	"github.com/talentbase/go-dataclient/serviceclient"
)

// BasePath is the member collection root.
const BasePath = "/api/v1/members"

// Member is a member record as the server returns it. Deletes are soft;
// DeletedAt is set instead of the record disappearing.
type Member struct {
	ID             string     `json:"id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Login          string     `json:"login"`
	Email          string     `json:"email"`
	Title          string     `json:"title,omitempty"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	Followers      int        `json:"followers"`
	Following      int        `json:"following"`
	OrganizationID string     `json:"organization_id"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Input is the create/update payload. Validation runs client-side before any
// request is issued.
type Input struct {
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"required,max=100"`
	Login          string `json:"login" validate:"required,min=2,max=64"`
	Email          string `json:"email" validate:"required,email"`
	Title          string `json:"title,omitempty" validate:"max=200"`
	AvatarURL      string `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Followers      int    `json:"followers" validate:"min=0"`
	Following      int    `json:"following" validate:"min=0"`
	OrganizationID string `json:"organization_id" validate:"required"`
}

// Client is the member facade.
type Client struct {
	*serviceclient.Resource[Member, Input]
}

// NewClient binds the facade to the shared transport.
func NewClient(t serviceclient.Transport, log *slog.Logger) *Client {
	return &Client{Resource: serviceclient.NewResource[Member, Input](t, BasePath, log)}
}
