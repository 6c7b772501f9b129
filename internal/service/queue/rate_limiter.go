package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// TransportRateLimiter paces recipients per mail transport kind.
// A batch may go out at once up to the burst, later batches wait for tokens.
type TransportRateLimiter struct {
	limiters sync.Map // map[transport kind]*rate.Limiter
	burst    int
}

// NewTransportRateLimiter creates a limiter that lets up to burst recipients through at once
func NewTransportRateLimiter(burst int) *TransportRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TransportRateLimiter{burst: burst}
}

// limiterFor returns the limiter of a transport, creating it or updating its rate
func (l *TransportRateLimiter) limiterFor(kind string, ratePerMinute int) *rate.Limiter {
	perSecond := rate.Limit(float64(ratePerMinute) / 60.0)
	if perSecond < rate.Limit(1.0/60.0) {
		perSecond = rate.Limit(1.0 / 60.0)
	}

	if existing, ok := l.limiters.Load(kind); ok {
		limiter := existing.(*rate.Limiter)
		if limiter.Limit() != perSecond {
			limiter.SetLimit(perSecond)
		}
		return limiter
	}

	limiter := rate.NewLimiter(perSecond, l.burst)
	actual, _ := l.limiters.LoadOrStore(kind, limiter)
	return actual.(*rate.Limiter)
}

// WaitN blocks until n recipients may be handed to the transport.
// A non-positive rate disables pacing.
func (l *TransportRateLimiter) WaitN(ctx context.Context, kind string, ratePerMinute, n int) error {
	if ratePerMinute <= 0 || n <= 0 {
		return nil
	}

	limiter := l.limiterFor(kind, ratePerMinute)
	for n > 0 {
		step := n
		if step > limiter.Burst() {
			step = limiter.Burst()
		}
		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// RateLimiterStats describes the state of one transport limiter
type RateLimiterStats struct {
	RatePerMinute   float64 `json:"rate_per_minute"`
	TokensAvailable float64 `json:"tokens_available"`
	Burst           int     `json:"burst"`
}

// Stats returns the state of every transport limiter created so far
func (l *TransportRateLimiter) Stats() map[string]RateLimiterStats {
	stats := make(map[string]RateLimiterStats)
	l.limiters.Range(func(key, value interface{}) bool {
		limiter := value.(*rate.Limiter)
		stats[key.(string)] = RateLimiterStats{
			RatePerMinute:   float64(limiter.Limit()) * 60,
			TokensAvailable: limiter.Tokens(),
			Burst:           limiter.Burst(),
		}
		return true
	})
	return stats
}
