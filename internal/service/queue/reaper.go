package queue

import (
	"context"
	"fmt"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

const (
	defaultReapBatchSize = 100
	maxReapRounds        = 20
)

// LeaseReaper returns items whose worker disappeared while holding them.
// Items below the attempt limit go back to pending, the rest fail.
type LeaseReaper struct {
	queueRepo domain.SendQueueRepository
	batchSize int
	logger    logger.Logger
}

func NewLeaseReaper(queueRepo domain.SendQueueRepository, batchSize int, log logger.Logger) *LeaseReaper {
	if batchSize <= 0 {
		batchSize = defaultReapBatchSize
	}
	return &LeaseReaper{
		queueRepo: queueRepo,
		batchSize: batchSize,
		logger:    log,
	}
}

// RunOnce reaps expired leases in batches until a short batch comes back
func (r *LeaseReaper) RunOnce(ctx context.Context) (*domain.ReapResult, error) {
	total := &domain.ReapResult{}

	for round := 0; round < maxReapRounds; round++ {
		res, err := r.queueRepo.ReapExpired(ctx, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to reap expired leases: %w", err)
		}
		total.Requeued += res.Requeued
		total.Failed += res.Failed

		if res.Requeued+res.Failed < int64(r.batchSize) {
			break
		}
	}

	if total.Requeued > 0 || total.Failed > 0 {
		r.logger.WithFields(map[string]interface{}{
			"requeued": total.Requeued,
			"failed":   total.Failed,
		}).Warn("Reclaimed queue items with expired leases")
	}
	return total, nil
}
