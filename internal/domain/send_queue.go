package domain

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -destination mocks/mock_send_queue_repository.go -package mocks github.com/Notifuse/outreach/internal/domain SendQueueRepository

// QueueItemStatus represents the status of a queued batch
type QueueItemStatus string

const (
	QueueItemStatusPending    QueueItemStatus = "pending"
	QueueItemStatusProcessing QueueItemStatus = "processing"
	QueueItemStatusCompleted  QueueItemStatus = "completed"
	QueueItemStatusFailed     QueueItemStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s QueueItemStatus) IsTerminal() bool {
	return s == QueueItemStatusCompleted || s == QueueItemStatusFailed
}

// QueueItemStats are the per-recipient outcomes recorded on completion
type QueueItemStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// QueueItem is one scheduled batch of recipients for a campaign
type QueueItem struct {
	ID          string          `json:"id"`
	CampaignID  string          `json:"campaign_id"`
	ContactIDs  []string        `json:"contact_ids"`
	Subject     string          `json:"subject"`
	FromEmail   string          `json:"from_email"`
	ReplyTo     string          `json:"reply_to,omitempty"`
	HTMLContent string          `json:"html_content"`
	TextContent string          `json:"text_content,omitempty"`
	RunAfter    time.Time       `json:"run_after"`
	Status      QueueItemStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	Stats       *QueueItemStats `json:"stats,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`

	// Lease held by the claiming worker while processing
	LeaseOwner     *string    `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks the invariants of an item about to be enqueued
func (q *QueueItem) Validate(maxBatchSize int) error {
	if q.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(q.ContactIDs) == 0 {
		return fmt.Errorf("queue item %s has no recipients", q.ID)
	}
	if maxBatchSize > 0 && len(q.ContactIDs) > maxBatchSize {
		return fmt.Errorf("queue item %s has %d recipients, max is %d", q.ID, len(q.ContactIDs), maxBatchSize)
	}
	if q.Status != QueueItemStatusPending {
		return fmt.Errorf("queue item %s must be enqueued as pending, got %s", q.ID, q.Status)
	}
	if q.Attempts != 0 {
		return fmt.Errorf("queue item %s must be enqueued with zero attempts", q.ID)
	}
	return nil
}

// QueueStats counts items per status
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Sent       int64 `json:"sent"`
	SendFailed int64 `json:"send_failed"`
}

// ReapResult summarizes a lease reaper pass
type ReapResult struct {
	Requeued int64 `json:"requeued"`
	Failed   int64 `json:"failed"`
}

// SendQueueRepository is the persistent queue of scheduled batches.
// Transitions are pending -> processing -> {completed | pending | failed}.
type SendQueueRepository interface {
	// Enqueue inserts pending items, all or nothing
	Enqueue(ctx context.Context, items []*QueueItem) error

	// ClaimDue claims up to limit due pending items, earliest run_after first.
	// Each claim is its own transaction; items taken by a concurrent caller are skipped.
	ClaimDue(ctx context.Context, limit int, owner string) ([]*QueueItem, error)

	// CompleteItem marks a claimed item completed. Returns ErrLeaseLost if owner no longer holds it.
	CompleteItem(ctx context.Context, id, owner string, stats QueueItemStats) error

	// FailItem records a failure for a claimed item and returns the resulting status:
	// failed once attempts reaches the max, otherwise pending with a delayed run_after.
	FailItem(ctx context.Context, id, owner string, attempts int, errMsg string) (QueueItemStatus, error)

	// ReapExpired resolves processing items whose lease expired
	ReapExpired(ctx context.Context, limit int) (*ReapResult, error)

	GetByID(ctx context.Context, id string) (*QueueItem, error)

	// GetStats counts items, optionally for one campaign ("" for all)
	GetStats(ctx context.Context, campaignID string) (*QueueStats, error)

	// EnqueuedContactIDs returns every contact already queued for the campaign in any status
	EnqueuedContactIDs(ctx context.Context, campaignID string) ([]string, error)

	// DeletePendingByCampaign removes items not yet claimed for the campaign
	DeletePendingByCampaign(ctx context.Context, campaignID string) (int64, error)
}

// EnqueueRequest is the input of the enqueue operation
type EnqueueRequest struct {
	CampaignID string     `json:"campaign_id"`
	Contacts   []*Contact `json:"contacts"`
	Subject    string     `json:"subject"`
	HTMLBody   string     `json:"html_body"`
	TextBody   string     `json:"text_body,omitempty"`
	FromEmail  string     `json:"from_email"`
	ReplyTo    string     `json:"reply_to,omitempty"`
	MaxPerRun  int        `json:"max_per_run,omitempty"`
}

// EnqueueResult is the output of the enqueue operation
type EnqueueResult struct {
	EnqueuedBatches int `json:"enqueued_batches"`
	TotalContacts   int `json:"total_contacts"`
}

// DeliveryResult summarizes one delivery worker invocation
type DeliveryResult struct {
	Claimed  int `json:"claimed"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Deferred int `json:"deferred"`
}
