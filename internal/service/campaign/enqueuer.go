package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
	"github.com/Notifuse/outreach/pkg/tracing"
)

// Enqueuer slices a contact pool into small batches staggered in time and writes
// them to the send queue in a single all-or-nothing insert.
type Enqueuer struct {
	queue  domain.SendQueueRepository
	clock  TimeProvider
	config *Config
	logger logger.Logger
	newID  func() string
}

func NewEnqueuer(queue domain.SendQueueRepository, clock TimeProvider, config *Config, log logger.Logger) *Enqueuer {
	if config == nil {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = NewRealTimeProvider()
	}
	return &Enqueuer{
		queue:  queue,
		clock:  clock,
		config: config,
		logger: log,
		newID:  func() string { return uuid.New().String() },
	}
}

// Enqueue validates the request, caps the pool at MaxPerRun and schedules batch k
// at now + k*BatchSpacing.
func (e *Enqueuer) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	ctx, span := tracing.StartServiceSpan(ctx, "Enqueuer", "Enqueue")
	defer span.End()

	contactIDs, err := validateEnqueueRequest(req)
	if err != nil {
		tracing.AddAttribute(ctx, "validation_error", err.Error())
		return nil, err
	}

	policy := e.config.Policy
	maxPerRun := req.MaxPerRun
	if maxPerRun <= 0 {
		maxPerRun = policy.DefaultMaxPerEnqueue
	}
	if len(contactIDs) > maxPerRun {
		contactIDs = contactIDs[:maxPerRun]
	}

	sliceSize := BatchSliceSize(len(contactIDs), policy.TargetBatchCount, policy.MaxBatchSize)
	now := e.clock.Now()

	items := make([]*domain.QueueItem, 0, (len(contactIDs)+sliceSize-1)/sliceSize)
	for k := 0; k*sliceSize < len(contactIDs); k++ {
		end := (k + 1) * sliceSize
		if end > len(contactIDs) {
			end = len(contactIDs)
		}
		batch := make([]string, end-k*sliceSize)
		copy(batch, contactIDs[k*sliceSize:end])

		items = append(items, &domain.QueueItem{
			ID:          e.newID(),
			CampaignID:  req.CampaignID,
			ContactIDs:  batch,
			Subject:     req.Subject,
			FromEmail:   req.FromEmail,
			ReplyTo:     req.ReplyTo,
			HTMLContent: req.HTMLBody,
			TextContent: req.TextBody,
			RunAfter:    now.Add(time.Duration(k) * policy.BatchSpacing),
			Status:      domain.QueueItemStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := e.queue.Enqueue(ctx, items); err != nil {
		e.logger.WithFields(map[string]interface{}{
			"campaign_id": req.CampaignID,
			"batches":     len(items),
			"error":       err.Error(),
		}).Error("Failed to enqueue campaign batches")
		tracing.MarkSpanError(ctx, err)
		return nil, fmt.Errorf("failed to enqueue batches: %w", err)
	}

	tracing.AddAttribute(ctx, "batches", len(items))
	tracing.AddAttribute(ctx, "contacts", len(contactIDs))

	e.logger.WithFields(map[string]interface{}{
		"campaign_id": req.CampaignID,
		"batches":     len(items),
		"contacts":    len(contactIDs),
		"slice_size":  sliceSize,
	}).Info("Enqueued campaign batches")

	return &domain.EnqueueResult{
		EnqueuedBatches: len(items),
		TotalContacts:   len(contactIDs),
	}, nil
}

// BatchSliceSize targets batchCount batches of at most maxBatch recipients: clamp(ceil(n/batchCount), 1, maxBatch)
func BatchSliceSize(n, batchCount, maxBatch int) int {
	if batchCount < 1 {
		batchCount = 1
	}
	size := (n + batchCount - 1) / batchCount
	if size < 1 {
		size = 1
	}
	if maxBatch > 0 && size > maxBatch {
		size = maxBatch
	}
	return size
}

// validateEnqueueRequest fails fast and returns the de-duplicated contact ids in pool order
func validateEnqueueRequest(req domain.EnqueueRequest) ([]string, error) {
	if strings.TrimSpace(req.CampaignID) == "" {
		return nil, domain.NewValidationError("campaign_id is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, domain.NewValidationError("subject is required")
	}
	if strings.TrimSpace(req.HTMLBody) == "" && strings.TrimSpace(req.TextBody) == "" {
		return nil, domain.NewValidationError("html_body or text_body is required")
	}
	if !govalidator.IsEmail(req.FromEmail) {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid from_email: %q", req.FromEmail))
	}
	if req.ReplyTo != "" && !govalidator.IsEmail(req.ReplyTo) {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid reply_to: %q", req.ReplyTo))
	}
	if len(req.Contacts) == 0 {
		return nil, domain.NewValidationError("at least one recipient is required")
	}

	seen := make(map[string]struct{}, len(req.Contacts))
	ids := make([]string, 0, len(req.Contacts))
	for i, c := range req.Contacts {
		if c == nil || strings.TrimSpace(c.ID) == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("recipient %d has no id", i))
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	return ids, nil
}
