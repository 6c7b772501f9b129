package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/emailerror"
	"github.com/Notifuse/outreach/pkg/logger"
	"github.com/Notifuse/outreach/pkg/tracing"
)

// DomainLimiter admits recipients against per-domain quotas and records confirmed sends
type DomainLimiter interface {
	CheckLimits(ctx context.Context, requested map[string]int) (map[string]*domain.AdmissionDecision, error)
	IncrementUsage(ctx context.Context, counts map[string]int) error
}

// WorkerConfig holds configuration for the delivery worker
type WorkerConfig struct {
	ClaimLimit             int // Items claimed per invocation (default: 10)
	TransportRatePerMinute int // Recipients per minute through the transport, 0 disables pacing

	// Circuit breaker settings
	CircuitBreakerThreshold int           // Provider errors before opening circuit (default: 5)
	CircuitBreakerCooldown  time.Duration // Time before the circuit closes again (default: 1 minute)
}

func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		ClaimLimit:              10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  time.Minute,
	}
}

// SentCallback is called with the contacts whose send was confirmed
type SentCallback func(ctx context.Context, item *domain.QueueItem, contactIDs []string, sentAt time.Time)

// EmailQueueWorker claims due batches and delivers them through the mail transport
type EmailQueueWorker struct {
	queueRepo      domain.SendQueueRepository
	contactRepo    domain.ContactRepository
	limiter        DomainLimiter
	transport      domain.MailTransport
	rateLimiter    *TransportRateLimiter
	circuitBreaker *TransportCircuitBreaker
	classifier     *emailerror.Classifier
	policy         domain.DeliveryPolicy
	config         *WorkerConfig
	logger         logger.Logger
	owner          string
	now            func() time.Time

	onSent SentCallback
}

func NewEmailQueueWorker(
	queueRepo domain.SendQueueRepository,
	contactRepo domain.ContactRepository,
	limiter DomainLimiter,
	transport domain.MailTransport,
	policy domain.DeliveryPolicy,
	config *WorkerConfig,
	log logger.Logger,
) *EmailQueueWorker {
	if config == nil {
		config = DefaultWorkerConfig()
	}
	if config.ClaimLimit <= 0 {
		config.ClaimLimit = DefaultWorkerConfig().ClaimLimit
	}

	return &EmailQueueWorker{
		queueRepo:   queueRepo,
		contactRepo: contactRepo,
		limiter:     limiter,
		transport:   transport,
		rateLimiter: NewTransportRateLimiter(policy.MaxBatchSize),
		circuitBreaker: NewTransportCircuitBreaker(CircuitBreakerConfig{
			Threshold:      config.CircuitBreakerThreshold,
			CooldownPeriod: config.CircuitBreakerCooldown,
		}),
		classifier: emailerror.NewClassifier(),
		policy:     policy,
		config:     config,
		logger:     log,
		owner:      "worker-" + uuid.New().String(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetSentCallback registers the hook invoked after each confirmed send
func (w *EmailQueueWorker) SetSentCallback(onSent SentCallback) {
	w.onSent = onSent
}

// Owner is the lease owner id this worker claims items with
func (w *EmailQueueWorker) Owner() string {
	return w.owner
}

// TransportStats is the state of the in-process send guards of one worker
type TransportStats struct {
	CircuitBreakers map[string]CircuitBreakerStats `json:"circuit_breakers"`
	RateLimiters    map[string]RateLimiterStats    `json:"rate_limiters"`
}

// TransportStats snapshots the circuit breaker and rate limiter of every transport used so far
func (w *EmailQueueWorker) TransportStats() TransportStats {
	return TransportStats{
		CircuitBreakers: w.circuitBreaker.Stats(),
		RateLimiters:    w.rateLimiter.Stats(),
	}
}

// RunOnce claims one bounded set of due items and resolves each of them.
// Overlapping invocations are safe: an item is only ever claimed by one caller.
func (w *EmailQueueWorker) RunOnce(ctx context.Context) (*domain.DeliveryResult, error) {
	ctx, span := tracing.StartServiceSpan(ctx, "EmailQueueWorker", "RunOnce")
	result := &domain.DeliveryResult{}
	kind := w.transport.Kind()

	if w.circuitBreaker.IsOpen(kind) {
		w.logger.WithField("transport", kind).Warn("Circuit breaker open, skipping delivery run")
		tracing.EndSpan(span, nil)
		return result, nil
	}

	items, err := w.queueRepo.ClaimDue(ctx, w.config.ClaimLimit, w.owner)
	if err != nil {
		if len(items) == 0 {
			tracing.EndSpan(span, err)
			return nil, fmt.Errorf("failed to claim queue items: %w", err)
		}
		w.logger.WithFields(map[string]interface{}{
			"claimed": len(items),
			"error":   err.Error(),
		}).Warn("Claim stopped early, processing the items already claimed")
	}

	result.Claimed = len(items)
	for _, item := range items {
		w.processItem(ctx, item, result)
	}

	tracing.AddAttribute(ctx, "claimed", result.Claimed)
	tracing.AddAttribute(ctx, "sent", result.Sent)
	tracing.RecordDelivery(ctx, kind, result.Claimed, result.Sent, result.Failed, result.Deferred)
	tracing.EndSpan(span, nil)

	if result.Claimed > 0 {
		w.logger.WithFields(map[string]interface{}{
			"claimed":  result.Claimed,
			"sent":     result.Sent,
			"failed":   result.Failed,
			"deferred": result.Deferred,
		}).Info("Delivery run finished")
	}
	return result, nil
}

// processItem resolves one claimed item: complete, fail with backoff, or hand
// quota-blocked recipients to a new pending item.
func (w *EmailQueueWorker) processItem(ctx context.Context, item *domain.QueueItem, result *domain.DeliveryResult) {
	kind := w.transport.Kind()

	contacts, err := w.contactRepo.GetByIDs(ctx, item.ContactIDs)
	if err != nil {
		result.Failed += len(item.ContactIDs)
		w.failItem(ctx, item, fmt.Errorf("failed to load contacts: %w", err))
		return
	}

	recipients, skipped := buildRecipients(item.ContactIDs, contacts)
	if skipped > 0 {
		w.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"skipped": skipped,
		}).Info("Skipping recipients no longer eligible")
	}
	if len(recipients) == 0 {
		result.Failed += skipped
		w.completeItem(ctx, item, domain.QueueItemStats{Failed: skipped})
		return
	}

	decisions, err := w.limiter.CheckLimits(ctx, countByDomain(recipients))
	if err != nil {
		result.Failed += len(recipients) + skipped
		w.failItem(ctx, item, fmt.Errorf("failed to check domain limits: %w", err))
		return
	}
	admitted, deferred := admit(recipients, decisions)

	if len(admitted) == 0 {
		// nothing was sent, so a failed hand-off can safely retry the whole item
		if err := w.deferRecipients(ctx, item, deferred); err != nil {
			result.Failed += len(recipients) + skipped
			w.failItem(ctx, item, err)
			return
		}
		result.Deferred += len(recipients)
		result.Failed += skipped
		w.completeItem(ctx, item, domain.QueueItemStats{Failed: skipped})
		return
	}

	if err := w.rateLimiter.WaitN(ctx, kind, w.config.TransportRatePerMinute, len(admitted)); err != nil {
		// the lease expires and the reaper returns the item
		w.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"error":   err.Error(),
		}).Debug("Transport pacing wait cancelled")
		return
	}

	report, err := w.transport.Send(ctx, domain.SendRequest{
		Recipients: admitted,
		Subject:    item.Subject,
		HTML:       item.HTMLContent,
		Text:       item.TextContent,
		FromEmail:  item.FromEmail,
		ReplyTo:    item.ReplyTo,
	})
	if err != nil {
		classified := w.classifier.Classify(err, kind)
		w.logger.WithFields(map[string]interface{}{
			"item_id":     item.ID,
			"error_type":  classified.Type,
			"http_status": classified.HTTPStatus,
			"retryable":   classified.Retryable,
			"original":    err.Error(),
		}).Debug("Classified send error")

		w.circuitBreaker.RecordFailure(kind, classified)
		result.Failed += len(recipients) + skipped
		w.failItem(ctx, item, &domain.TransientSendError{Transport: kind, Kind: string(classified.Type), Err: err})
		return
	}
	w.circuitBreaker.RecordSuccess(kind)

	stats := domain.QueueItemStats{Sent: report.Sent(), Failed: report.Failed() + skipped}
	if len(deferred) > 0 {
		if err := w.deferRecipients(ctx, item, deferred); err != nil {
			// the batch already went out, retrying it would resend
			stats.Failed += len(deferred)
			w.logger.WithFields(map[string]interface{}{
				"item_id":  item.ID,
				"deferred": len(deferred),
				"error":    err.Error(),
			}).Error("Failed to re-queue deferred recipients")
		} else {
			result.Deferred += len(deferred)
		}
	}

	result.Sent += stats.Sent
	result.Failed += stats.Failed
	w.completeItem(ctx, item, stats)
	w.recordSent(ctx, item, report)
}

// recordSent counts confirmed sends against their domains and runs the sent hook
func (w *EmailQueueWorker) recordSent(ctx context.Context, item *domain.QueueItem, report *domain.SendReport) {
	sentAt := w.now()
	usage := make(map[string]int)
	for _, o := range report.Outcomes {
		if o.Sent {
			usage[domain.RecipientDomain(o.Recipient.Email)]++
		}
	}
	if len(usage) == 0 {
		return
	}

	if err := w.limiter.IncrementUsage(ctx, usage); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"error":   err.Error(),
		}).Error("Failed to record domain usage")
	}

	if w.onSent != nil {
		w.onSent(ctx, item, report.SentContactIDs(), sentAt)
	}
}

// deferRecipients writes blocked recipients to new pending items, one per retry time
func (w *EmailQueueWorker) deferRecipients(ctx context.Context, item *domain.QueueItem, deferred map[time.Time][]domain.Recipient) error {
	now := w.now()
	retryTimes := make([]time.Time, 0, len(deferred))
	for at := range deferred {
		retryTimes = append(retryTimes, at)
	}
	sort.Slice(retryTimes, func(i, j int) bool { return retryTimes[i].Before(retryTimes[j]) })

	items := make([]*domain.QueueItem, 0, len(retryTimes))
	for _, at := range retryTimes {
		runAfter := at
		if runAfter.IsZero() || runAfter.Before(now) {
			runAfter = now.Add(domain.HourlyWindow)
		}
		ids := make([]string, 0, len(deferred[at]))
		for _, r := range deferred[at] {
			ids = append(ids, r.ContactID)
		}
		items = append(items, &domain.QueueItem{
			ID:          uuid.New().String(),
			CampaignID:  item.CampaignID,
			ContactIDs:  ids,
			Subject:     item.Subject,
			FromEmail:   item.FromEmail,
			ReplyTo:     item.ReplyTo,
			HTMLContent: item.HTMLContent,
			TextContent: item.TextContent,
			RunAfter:    runAfter,
			Status:      domain.QueueItemStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := w.queueRepo.Enqueue(ctx, items); err != nil {
		return fmt.Errorf("failed to re-queue deferred recipients: %w", err)
	}

	w.logger.WithFields(map[string]interface{}{
		"item_id":     item.ID,
		"campaign_id": item.CampaignID,
		"new_items":   len(items),
		"run_after":   items[0].RunAfter,
	}).Info("Deferred recipients blocked by domain limits")
	return nil
}

func (w *EmailQueueWorker) completeItem(ctx context.Context, item *domain.QueueItem, stats domain.QueueItemStats) {
	err := w.queueRepo.CompleteItem(ctx, item.ID, w.owner, stats)
	if errors.Is(err, domain.ErrLeaseLost) {
		w.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
		}).Warn("Lease lost before completion, item may be delivered twice")
		return
	}
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"error":   err.Error(),
		}).Error("Failed to mark queue item completed")
	}
}

// failItem sends the item through the backoff path. Every failure kind is retried the same way.
func (w *EmailQueueWorker) failItem(ctx context.Context, item *domain.QueueItem, cause error) {
	status, err := w.queueRepo.FailItem(ctx, item.ID, w.owner, item.Attempts, cause.Error())
	if errors.Is(err, domain.ErrLeaseLost) {
		w.logger.WithField("item_id", item.ID).Warn("Lease lost before failure was recorded")
		return
	}
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"error":   err.Error(),
		}).Error("Failed to record queue item failure")
		return
	}

	fields := map[string]interface{}{
		"item_id":      item.ID,
		"campaign_id":  item.CampaignID,
		"attempts":     item.Attempts,
		"max_attempts": w.policy.MaxAttempts,
		"status":       status,
		"error":        cause.Error(),
	}
	if status == domain.QueueItemStatusFailed {
		w.logger.WithFields(fields).Error("Queue item failed permanently")
		return
	}
	w.logger.WithFields(fields).Warn("Queue item failed, scheduled for retry")
}

// buildRecipients keeps contacts that still exist and are eligible, in item order
func buildRecipients(ids []string, contacts []*domain.Contact) ([]domain.Recipient, int) {
	byID := make(map[string]*domain.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	recipients := make([]domain.Recipient, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || !c.IsEligible() {
			skipped++
			continue
		}
		email := strings.TrimSpace(c.Email)
		if !govalidator.IsEmail(email) {
			skipped++
			continue
		}
		recipients = append(recipients, domain.Recipient{ContactID: id, Email: email})
	}
	return recipients, skipped
}

func countByDomain(recipients []domain.Recipient) map[string]int {
	counts := make(map[string]int)
	for _, r := range recipients {
		counts[domain.RecipientDomain(r.Email)]++
	}
	return counts
}

// admit splits recipients into those the domain limits allow now and those deferred,
// keyed by the time their domain has room again. Earlier recipients are admitted first.
func admit(recipients []domain.Recipient, decisions map[string]*domain.AdmissionDecision) ([]domain.Recipient, map[time.Time][]domain.Recipient) {
	remaining := make(map[string]int, len(decisions))
	for d, decision := range decisions {
		remaining[d] = decision.Allowed
	}

	admitted := make([]domain.Recipient, 0, len(recipients))
	deferred := make(map[time.Time][]domain.Recipient)
	for _, r := range recipients {
		d := domain.RecipientDomain(r.Email)
		if remaining[d] > 0 {
			remaining[d]--
			admitted = append(admitted, r)
			continue
		}
		var retryAt time.Time
		if decision, ok := decisions[d]; ok {
			retryAt = decision.RetryAt
		}
		deferred[retryAt] = append(deferred[retryAt], r)
	}
	return admitted, deferred
}
