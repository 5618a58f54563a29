// Package feedback is the typed facade for the feedback collection.
package feedback

import (
	"log/slog"
	"time"

	"github.com/talentbase/go-dataclient/serviceclient"
)

// BasePath is the feedback collection root.
const BasePath = "/api/v1/feedback"

// Feedback is a feedback record as the server returns it. Deletes are soft;
// DeletedAt is set instead of the record disappearing.
type Feedback struct {
	ID             string     `json:"id"`
	Feedback       string     `json:"feedback"`
	Rating         int        `json:"rating,omitempty"`
	Category       string     `json:"category,omitempty"`
	AuthorID       string     `json:"author_id,omitempty"`
	OrganizationID string     `json:"organization_id"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Input is the create/update payload. Validation runs client-side before any
// request is issued.
type Input struct {
	Feedback       string `json:"feedback" validate:"required,min=1,max=5000"`
	Rating         int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Category       string `json:"category,omitempty" validate:"omitempty,oneof=praise issue suggestion other"`
	OrganizationID string `json:"organization_id" validate:"required"`
}

// Client is the feedback facade.
type Client struct {
	*serviceclient.Resource[Feedback, Input]
}

// NewClient binds the facade to the shared transport.
func NewClient(t serviceclient.Transport, log *slog.Logger) *Client {
	return &Client{Resource: serviceclient.NewResource[Feedback, Input](t, BasePath, log)}
}
