package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

//go:generate mockgen -destination mocks/mock_contact_repository.go -package mocks github.com/Notifuse/outreach/internal/domain ContactRepository

// ContactStatus is the verification/consent state of a contact
type ContactStatus string

const (
	ContactStatusPending         ContactStatus = "pending"
	ContactStatusVerifying       ContactStatus = "verifying"
	ContactStatusVerified        ContactStatus = "verified"
	ContactStatusVerifiedGeneric ContactStatus = "verified_generic"
	ContactStatusBounced         ContactStatus = "bounced"
	ContactStatusUnsubscribed    ContactStatus = "unsubscribed"
	ContactStatusInvalid         ContactStatus = "invalid"
)

// Validate checks if the contact status is known
func (s ContactStatus) Validate() error {
	switch s {
	case ContactStatusPending, ContactStatusVerifying, ContactStatusVerified, ContactStatusVerifiedGeneric,
		ContactStatusBounced, ContactStatusUnsubscribed, ContactStatusInvalid:
		return nil
	}
	return fmt.Errorf("invalid contact status: %s", s)
}

const (
	MinEngagementScore = 0
	MaxEngagementScore = 10
)

// Contact is read from the contact store. Only LastSentAt is ever written back.
type Contact struct {
	ID              string                 `json:"id"`
	Email           string                 `json:"email"`
	Status          ContactStatus          `json:"status"`
	EngagementScore int                    `json:"engagement_score"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
	LastSentAt      *time.Time             `json:"last_sent_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// IsEligible reports whether the contact is a valid send target
func (c *Contact) IsEligible() bool {
	if strings.TrimSpace(c.Email) == "" {
		return false
	}
	return c.Status == ContactStatusVerified || c.Status == ContactStatusVerifiedGeneric
}

// ClampEngagementScore keeps the score within [0,10]
func ClampEngagementScore(score int) int {
	if score < MinEngagementScore {
		return MinEngagementScore
	}
	if score > MaxEngagementScore {
		return MaxEngagementScore
	}
	return score
}

// Document returns the JSON view segment rules are evaluated against: the attribute
// map merged with the top-level fields. Top-level fields win on key collisions.
func (c *Contact) Document() ([]byte, error) {
	doc := make(map[string]interface{}, len(c.Attributes)+5)
	for k, v := range c.Attributes {
		doc[k] = v
	}
	doc["id"] = c.ID
	doc["email"] = c.Email
	doc["status"] = string(c.Status)
	doc["engagementScore"] = ClampEngagementScore(c.EngagementScore)
	if c.LastSentAt != nil {
		doc["lastSentAt"] = c.LastSentAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(doc)
}

// RecipientDomain returns the lowercase part after the last '@', or "" when there is none
func RecipientDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// ContactFilter narrows ListEligible
type ContactFilter struct {
	Limit  int
	Offset int
}

// ContactRepository is the contact store contract
type ContactRepository interface {
	// GetByIDs returns the contacts that exist among ids, in no particular order
	GetByIDs(ctx context.Context, ids []string) ([]*Contact, error)

	// ListEligible pages through verified contacts with a non-empty email
	ListEligible(ctx context.Context, filter ContactFilter) ([]*Contact, error)

	// UpdateLastSentAt stamps contacts after a confirmed send
	UpdateLastSentAt(ctx context.Context, ids []string, sentAt time.Time) error
}
