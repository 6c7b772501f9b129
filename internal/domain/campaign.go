package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

//go:generate mockgen -destination mocks/mock_campaign_repository.go -package mocks github.com/Notifuse/outreach/internal/domain CampaignRepository

// Campaign is an outbound send to the contacts matching Criteria.
// IsActive only gates new enqueues, items already queued are delivered regardless.
type Campaign struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Subject             string          `json:"subject"`
	FromEmail           string          `json:"from_email"`
	ReplyTo             string          `json:"reply_to,omitempty"`
	HTMLContent         string          `json:"html_content"`
	TextContent         string          `json:"text_content,omitempty"`
	Criteria            SegmentCriteria `json:"criteria"`
	IsActive            bool            `json:"is_active"`
	TargetDurationHours *float64        `json:"target_duration_hours,omitempty"`
	Metrics             *WarmupMetrics  `json:"metrics,omitempty"`
	TotalContacts       int             `json:"total_contacts"`
	EnqueuedContacts    int             `json:"enqueued_contacts"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Validate checks the fields required before a campaign can enqueue
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name is required")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return NewValidationError("subject is required")
	}
	if strings.TrimSpace(c.HTMLContent) == "" && strings.TrimSpace(c.TextContent) == "" {
		return NewValidationError("html or text content is required")
	}
	if !govalidator.IsEmail(c.FromEmail) {
		return NewValidationError(fmt.Sprintf("invalid from_email: %q", c.FromEmail))
	}
	if c.ReplyTo != "" && !govalidator.IsEmail(c.ReplyTo) {
		return NewValidationError(fmt.Sprintf("invalid reply_to: %q", c.ReplyTo))
	}
	if c.TargetDurationHours != nil && *c.TargetDurationHours <= 0 {
		return NewValidationError("target_duration_hours must be positive")
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Criteria.Validate()
}

// Validate accepts a nil receiver, metrics are optional
func (m *WarmupMetrics) Validate() error {
	if m == nil {
		return nil
	}
	if m.OpenRate < 0 || m.OpenRate > 1 {
		return NewValidationError("open_rate must be between 0 and 1")
	}
	if m.BounceRate < 0 || m.BounceRate > 1 {
		return NewValidationError("bounce_rate must be between 0 and 1")
	}
	if m.EngagementScore < MinEngagementScore || m.EngagementScore > MaxEngagementScore {
		return NewValidationError("engagement_score must be between 0 and 10")
	}
	return nil
}

// CampaignRepository persists campaigns
type CampaignRepository interface {
	Create(ctx context.Context, campaign *Campaign) error
	GetByID(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, activeOnly bool) ([]*Campaign, error)
	Update(ctx context.Context, campaign *Campaign) error
}
