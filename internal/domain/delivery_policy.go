package domain

import "time"

// Default delivery policy values
const (
	DefaultMaxHourlyPerDomain = 200
	DefaultMaxDailyPerDomain  = 800
	DefaultMaxAttempts        = 3
	DefaultBackoffBaseMinutes = 5
	DefaultBackoffCapMinutes  = 60
	DefaultMaxPerEnqueue      = 500
	DefaultTargetBatchCount   = 6
	DefaultMaxBatchSize       = 50
	DefaultBatchSpacing       = 10 * time.Minute
	DefaultLeaseTimeout       = 15 * time.Minute
	HourlyWindow              = time.Hour
	DailyWindow               = 24 * time.Hour
	LeaseExpiredError         = "lease expired before the item was resolved"
)

// DeliveryPolicy holds the tunable send quotas and retry schedule
type DeliveryPolicy struct {
	MaxHourlyPerDomain   int
	MaxDailyPerDomain    int
	MaxAttempts          int
	BackoffBaseMinutes   int
	BackoffCapMinutes    int
	DefaultMaxPerEnqueue int
	TargetBatchCount     int
	MaxBatchSize         int
	BatchSpacing         time.Duration
	LeaseTimeout         time.Duration
}

func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		MaxHourlyPerDomain:   DefaultMaxHourlyPerDomain,
		MaxDailyPerDomain:    DefaultMaxDailyPerDomain,
		MaxAttempts:          DefaultMaxAttempts,
		BackoffBaseMinutes:   DefaultBackoffBaseMinutes,
		BackoffCapMinutes:    DefaultBackoffCapMinutes,
		DefaultMaxPerEnqueue: DefaultMaxPerEnqueue,
		TargetBatchCount:     DefaultTargetBatchCount,
		MaxBatchSize:         DefaultMaxBatchSize,
		BatchSpacing:         DefaultBatchSpacing,
		LeaseTimeout:         DefaultLeaseTimeout,
	}
}

// IsTerminalAttempt reports whether a failure at this attempt count ends the item
func (p DeliveryPolicy) IsTerminalAttempt(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// BackoffDelay is linear in attempts and capped: min(cap, attempts*base) minutes
func (p DeliveryPolicy) BackoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	minutes := attempts * p.BackoffBaseMinutes
	if minutes > p.BackoffCapMinutes {
		minutes = p.BackoffCapMinutes
	}
	return time.Duration(minutes) * time.Minute
}
