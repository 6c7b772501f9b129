package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
	"github.com/Notifuse/outreach/pkg/tracing"
)

// AdvanceResult describes one enqueue step of a campaign
type AdvanceResult struct {
	CampaignID    string                `json:"campaign_id"`
	EmailsPerHour int                   `json:"emails_per_hour"`
	Remaining     int                   `json:"remaining"`
	Enqueue       *domain.EnqueueResult `json:"enqueue"`
}

// WarmupStatus is the current pacing of a campaign
type WarmupStatus struct {
	CampaignID    string `json:"campaign_id"`
	TotalContacts int    `json:"total_contacts"`
	Enqueued      int    `json:"enqueued"`
	Remaining     int    `json:"remaining"`
	EmailsPerHour int    `json:"emails_per_hour"`
}

// Service manages campaigns and feeds their audiences into the send queue
type Service struct {
	campaigns domain.CampaignRepository
	contacts  domain.ContactRepository
	queue     domain.SendQueueRepository
	enqueuer  *Enqueuer
	matcher   *SegmentMatcher
	clock     TimeProvider
	config    *Config
	logger    logger.Logger
}

func NewService(
	campaigns domain.CampaignRepository,
	contacts domain.ContactRepository,
	queue domain.SendQueueRepository,
	enqueuer *Enqueuer,
	clock TimeProvider,
	config *Config,
	log logger.Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = NewRealTimeProvider()
	}
	return &Service{
		campaigns: campaigns,
		contacts:  contacts,
		queue:     queue,
		enqueuer:  enqueuer,
		matcher:   NewSegmentMatcher(),
		clock:     clock,
		config:    config,
		logger:    log,
	}
}

// Create stores a new, paused campaign
func (s *Service) Create(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	c.IsActive = false
	c.StartedAt = nil
	c.TotalContacts = 0
	c.EnqueuedContacts = 0
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id": c.ID,
		"rules":       len(c.Criteria.Rules),
	}).Info("Campaign created")
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, NewCampaignError(ErrCodeCampaignNotFound, "campaign not found", id, false, err)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*domain.Campaign, error) {
	return s.campaigns.List(ctx, activeOnly)
}

// Resume activates a campaign. The first activation records StartedAt for warmup pacing.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.setActive(ctx, id, true)
}

// Pause stops future enqueues. Items already queued are still delivered, use Cancel to remove them.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (*domain.Campaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	c.IsActive = active
	if active && c.StartedAt == nil {
		c.StartedAt = &now
	}
	c.UpdatedAt = now

	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id": id,
		"is_active":   active,
	}).Info("Campaign state changed")
	return c, nil
}

// Cancel pauses the campaign and deletes its unclaimed queue items. Batches already
// claimed by a worker finish normally.
func (s *Service) Cancel(ctx context.Context, id string) (int64, error) {
	if _, err := s.setActive(ctx, id, false); err != nil {
		return 0, err
	}

	removed, err := s.queue.DeletePendingByCampaign(ctx, id)
	if err != nil {
		return 0, NewCampaignError(ErrCodeQueueRead, "failed to remove pending batches", id, true, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id": id,
		"removed":     removed,
	}).Info("Campaign cancelled")
	return removed, nil
}

// UpdateMetrics records engagement signals used by warmup pacing
func (s *Service) UpdateMetrics(ctx context.Context, id string, metrics domain.WarmupMetrics) (*domain.Campaign, error) {
	if err := metrics.Validate(); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Metrics = &metrics
	c.UpdatedAt = s.clock.Now()
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update campaign metrics: %w", err)
	}
	return c, nil
}

// PreviewSegment counts the eligible contacts matching criteria
func (s *Service) PreviewSegment(ctx context.Context, criteria domain.SegmentCriteria) (int, error) {
	if err := criteria.Validate(); err != nil {
		return 0, err
	}
	pool, err := s.loadPool(ctx, criteria)
	if err != nil {
		return 0, err
	}
	return len(pool), nil
}

// TargetRate computes the current warmup rate of a campaign
func (s *Service) TargetRate(ctx context.Context, id string) (*WarmupStatus, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pool, pending, err := s.audience(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.warmupStatus(c, len(pool), len(pool)-len(pending)), nil
}

// Advance enqueues the next slice of an active campaign: eligible contacts matching
// the criteria that were never queued, capped at the current warmup rate.
func (s *Service) Advance(ctx context.Context, id string) (*AdvanceResult, error) {
	return tracing.TraceMethodWithResult(ctx, "CampaignService", "Advance", func(ctx context.Context) (*AdvanceResult, error) {
		return s.advance(ctx, id)
	})
}

func (s *Service) advance(ctx context.Context, id string) (*AdvanceResult, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, NewCampaignError(ErrCodeCampaignPaused, "campaign is paused", id, false, nil)
	}

	pool, pending, err := s.audience(ctx, c)
	if err != nil {
		return nil, err
	}

	status := s.warmupStatus(c, len(pool), len(pool)-len(pending))
	result := &AdvanceResult{
		CampaignID:    id,
		EmailsPerHour: status.EmailsPerHour,
		Remaining:     status.Remaining,
		Enqueue:       &domain.EnqueueResult{},
	}

	tracing.AddAttribute(ctx, "campaign_id", id)
	tracing.AddAttribute(ctx, "emails_per_hour", status.EmailsPerHour)

	if len(pending) > 0 {
		maxPerRun := s.config.Policy.DefaultMaxPerEnqueue
		if status.EmailsPerHour < maxPerRun {
			maxPerRun = status.EmailsPerHour
		}

		enqueued, err := s.enqueuer.Enqueue(ctx, domain.EnqueueRequest{
			CampaignID: c.ID,
			Contacts:   pending,
			Subject:    c.Subject,
			HTMLBody:   c.HTMLContent,
			TextBody:   c.TextContent,
			FromEmail:  c.FromEmail,
			ReplyTo:    c.ReplyTo,
			MaxPerRun:  maxPerRun,
		})
		if err != nil {
			if domain.IsValidationError(err) {
				return nil, err
			}
			return nil, NewCampaignError(ErrCodeEnqueueFailed, "failed to enqueue campaign slice", id, true, err)
		}
		result.Enqueue = enqueued
		result.Remaining -= enqueued.TotalContacts
	}

	c.TotalContacts = len(pool)
	c.EnqueuedContacts = len(pool) - result.Remaining
	c.UpdatedAt = s.clock.Now()
	if err := s.campaigns.Update(ctx, c); err != nil {
		// the slice is queued already, only the progress counters are stale
		s.logger.WithFields(map[string]interface{}{
			"campaign_id": id,
			"error":       err.Error(),
		}).Warn("Failed to record campaign progress")
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id":     id,
		"emails_per_hour": result.EmailsPerHour,
		"enqueued":        result.Enqueue.TotalContacts,
		"batches":         result.Enqueue.EnqueuedBatches,
		"remaining":       result.Remaining,
	}).Info("Campaign advanced")

	return result, nil
}

// AdvanceActive advances every active campaign. A failing campaign does not stop the others.
func (s *Service) AdvanceActive(ctx context.Context) ([]*AdvanceResult, error) {
	campaigns, err := s.campaigns.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	results := make([]*AdvanceResult, 0, len(campaigns))
	for _, c := range campaigns {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := s.Advance(ctx, c.ID)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"campaign_id": c.ID,
				"error":       err.Error(),
			}).Error("Failed to advance campaign")
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// audience returns the matching pool and the part of it never queued for the campaign
func (s *Service) audience(ctx context.Context, c *domain.Campaign) (pool []*domain.Contact, pending []*domain.Contact, err error) {
	pool, err = s.loadPool(ctx, c.Criteria)
	if err != nil {
		return nil, nil, err
	}

	queued, err := s.queue.EnqueuedContactIDs(ctx, c.ID)
	if err != nil {
		return nil, nil, NewCampaignError(ErrCodeQueueRead, "failed to read queued contacts", c.ID, true, err)
	}
	seen := make(map[string]struct{}, len(queued))
	for _, id := range queued {
		seen[id] = struct{}{}
	}

	pending = make([]*domain.Contact, 0, len(pool))
	for _, contact := range pool {
		if _, ok := seen[contact.ID]; !ok {
			pending = append(pending, contact)
		}
	}
	return pool, pending, nil
}

func (s *Service) loadPool(ctx context.Context, criteria domain.SegmentCriteria) ([]*domain.Contact, error) {
	pageSize := s.config.PoolPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var pool []*domain.Contact
	for offset := 0; ; offset += pageSize {
		page, err := s.contacts.ListEligible(ctx, domain.ContactFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, NewCampaignError(ErrCodeContactFetch, "failed to load contacts", "", true, err)
		}
		pool = append(pool, s.matcher.FilterEligible(page, criteria)...)
		if len(page) < pageSize {
			break
		}
	}
	return pool, nil
}

func (s *Service) warmupStatus(c *domain.Campaign, total, enqueued int) *WarmupStatus {
	input := domain.WarmupInput{
		TotalContacts:       total,
		SentContacts:        enqueued,
		TargetDurationHours: c.TargetDurationHours,
		Metrics:             c.Metrics,
	}
	if c.StartedAt != nil {
		input.StartedAt = *c.StartedAt
	}

	remaining := total - enqueued
	if remaining < 0 {
		remaining = 0
	}
	return &WarmupStatus{
		CampaignID:    c.ID,
		TotalContacts: total,
		Enqueued:      enqueued,
		Remaining:     remaining,
		EmailsPerHour: ComputeTargetRate(input, s.clock.Now()),
	}
}

// IsNotFound reports whether err is a missing campaign
func IsNotFound(err error) bool {
	var ce *CampaignError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeCampaignNotFound
	}
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
