package domain

import (
	"context"
	"time"
)

//go:generate mockgen -destination mocks/mock_domain_limit_repository.go -package mocks github.com/Notifuse/outreach/internal/domain DomainLimitRepository

// DomainLimitCounter tracks sends to one recipient domain in fixed hourly and daily windows
type DomainLimitCounter struct {
	Domain            string    `json:"domain"`
	HourlyCount       int       `json:"hourly_count"`
	HourlyWindowStart time.Time `json:"hourly_window_start"`
	DailyCount        int       `json:"daily_count"`
	DailyWindowStart  time.Time `json:"daily_window_start"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewDomainLimitCounter returns the counter of a domain that has never been referenced
func NewDomainLimitCounter(domain string, now time.Time) *DomainLimitCounter {
	return &DomainLimitCounter{
		Domain:            domain,
		HourlyWindowStart: now,
		DailyWindowStart:  now,
		UpdatedAt:         now,
	}
}

// Rollover resets each window whose period has fully elapsed. A reset window restarts at now.
func (c *DomainLimitCounter) Rollover(now time.Time) {
	if !now.Before(c.HourlyWindowStart.Add(HourlyWindow)) {
		c.HourlyCount = 0
		c.HourlyWindowStart = now
	}
	if !now.Before(c.DailyWindowStart.Add(DailyWindow)) {
		c.DailyCount = 0
		c.DailyWindowStart = now
	}
}

// Available returns the remaining hourly and daily capacity, never negative
func (c *DomainLimitCounter) Available(policy DeliveryPolicy) (hourly int, daily int) {
	hourly = policy.MaxHourlyPerDomain - c.HourlyCount
	if hourly < 0 {
		hourly = 0
	}
	daily = policy.MaxDailyPerDomain - c.DailyCount
	if daily < 0 {
		daily = 0
	}
	return hourly, daily
}

// Allow returns how many of requested sends fit in both windows
func (c *DomainLimitCounter) Allow(requested int, policy DeliveryPolicy) int {
	if requested <= 0 {
		return 0
	}
	hourly, daily := c.Available(policy)
	return minInt(requested, hourly, daily)
}

// ApplyIncrement rolls the windows over and adds up to count sends, never past a cap.
// It returns the number actually added.
func (c *DomainLimitCounter) ApplyIncrement(count int, now time.Time, policy DeliveryPolicy) int {
	c.Rollover(now)
	granted := c.Allow(count, policy)
	c.HourlyCount += granted
	c.DailyCount += granted
	c.UpdatedAt = now
	return granted
}

// NextAvailableAt is when the window that cannot absorb requested sends reopens.
// The daily window wins when both are short. Zero when both windows have room.
func (c *DomainLimitCounter) NextAvailableAt(requested int, policy DeliveryPolicy) time.Time {
	hourly, daily := c.Available(policy)
	if daily < requested {
		return c.DailyWindowStart.Add(DailyWindow)
	}
	if hourly < requested {
		return c.HourlyWindowStart.Add(HourlyWindow)
	}
	return time.Time{}
}

// AdmissionDecision is the outcome of a limit check for one domain
type AdmissionDecision struct {
	Domain    string    `json:"domain"`
	Requested int       `json:"requested"`
	Allowed   int       `json:"allowed"`
	Blocked   int       `json:"blocked"`
	RetryAt   time.Time `json:"retry_at,omitempty"`
}

// DomainLimitRepository persists per-domain counters
type DomainLimitRepository interface {
	// GetCounters loads stored counters; domains never referenced are absent from the result
	GetCounters(ctx context.Context, domains []string) (map[string]*DomainLimitCounter, error)

	// Increment re-reads the domain counter in its own transaction, applies ApplyIncrement
	// and persists it. Write conflicts are retried until the transaction commits.
	Increment(ctx context.Context, domain string, count int, now time.Time, policy DeliveryPolicy) (*DomainLimitCounter, int, error)
}

func minInt(first int, rest ...int) int {
	m := first
	for _, v := range rest {
		if v < m {
			m = v
		}
	}
	return m
}
