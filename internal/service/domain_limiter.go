package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/pkg/logger"
)

// DomainRateLimiter enforces per recipient domain hourly and daily send quotas
type DomainRateLimiter struct {
	repo   domain.DomainLimitRepository
	policy domain.DeliveryPolicy
	logger logger.Logger
	now    func() time.Time
}

func NewDomainRateLimiter(repo domain.DomainLimitRepository, policy domain.DeliveryPolicy, log logger.Logger) *DomainRateLimiter {
	return &DomainRateLimiter{
		repo:   repo,
		policy: policy,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CheckLimits reports how many of the requested sends each domain can take now.
// It never writes: windows are rolled over on a copy of the stored counter.
func (l *DomainRateLimiter) CheckLimits(ctx context.Context, requested map[string]int) (map[string]*domain.AdmissionDecision, error) {
	normalized := normalizeDomainCounts(requested)
	decisions := make(map[string]*domain.AdmissionDecision, len(normalized))
	if len(normalized) == 0 {
		return decisions, nil
	}

	counters, err := l.repo.GetCounters(ctx, sortedKeys(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to load domain counters: %w", err)
	}

	now := l.now()
	for d, want := range normalized {
		counter, ok := counters[d]
		if !ok {
			counter = domain.NewDomainLimitCounter(d, now)
		}
		view := *counter
		view.Rollover(now)

		allowed := view.Allow(want, l.policy)
		decision := &domain.AdmissionDecision{
			Domain:    d,
			Requested: want,
			Allowed:   allowed,
			Blocked:   want - allowed,
		}
		if decision.Blocked > 0 {
			decision.RetryAt = view.NextAvailableAt(want, l.policy)
		}
		decisions[d] = decision
	}
	return decisions, nil
}

// IncrementUsage records confirmed sends. Domains are updated concurrently, each in
// its own store transaction.
func (l *DomainRateLimiter) IncrementUsage(ctx context.Context, counts map[string]int) error {
	normalized := normalizeDomainCounts(counts)
	if len(normalized) == 0 {
		return nil
	}

	now := l.now()
	g, gctx := errgroup.WithContext(ctx)
	for d, n := range normalized {
		d, n := d, n
		g.Go(func() error {
			_, granted, err := l.repo.Increment(gctx, d, n, now, l.policy)
			if err != nil {
				return fmt.Errorf("failed to increment usage for %s: %w", d, err)
			}
			if granted < n {
				l.logger.WithFields(map[string]interface{}{
					"domain":  d,
					"counted": granted,
					"sent":    n,
				}).Warn("Domain usage clamped at its cap")
			}
			return nil
		})
	}
	return g.Wait()
}

// normalizeDomainCounts lowercases keys, merges duplicates and drops empty entries
func normalizeDomainCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for d, n := range in {
		key := strings.ToLower(strings.TrimSpace(d))
		if key == "" || n <= 0 {
			continue
		}
		out[key] += n
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
