package campaign

import (
	"time"
)

// TimeProvider abstracts the clock so schedules can be tested deterministically
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealTimeProvider uses the system clock
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

func (RealTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func NewRealTimeProvider() TimeProvider {
	return RealTimeProvider{}
}
