package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/internal/domain/mocks"
	"github.com/Notifuse/outreach/pkg/logger"
)

func newTestLimiter(t *testing.T, now time.Time) (*DomainRateLimiter, *mocks.MockDomainLimitRepository) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockDomainLimitRepository(ctrl)
	limiter := NewDomainRateLimiter(repo, domain.DefaultDeliveryPolicy(), logger.NewMockLogger(t))
	limiter.now = func() time.Time { return now }
	return limiter, repo
}

func TestDomainRateLimiter_CheckLimits(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	windowStart := now.Add(-20 * time.Minute)

	t.Run("partial admission when close to the hourly cap", func(t *testing.T) {
		limiter, repo := newTestLimiter(t, now)
		repo.EXPECT().GetCounters(gomock.Any(), []string{"a.com", "b.com"}).Return(map[string]*domain.DomainLimitCounter{
			"a.com": {Domain: "a.com", HourlyCount: 195, HourlyWindowStart: windowStart, DailyCount: 300, DailyWindowStart: windowStart},
		}, nil)

		decisions, err := limiter.CheckLimits(context.Background(), map[string]int{"A.com": 10, "b.com": 3})
		require.NoError(t, err)

		a := decisions["a.com"]
		require.NotNil(t, a)
		assert.Equal(t, 5, a.Allowed)
		assert.Equal(t, 5, a.Blocked)
		assert.Equal(t, windowStart.Add(time.Hour), a.RetryAt)

		b := decisions["b.com"]
		require.NotNil(t, b)
		assert.Equal(t, 3, b.Allowed)
		assert.Equal(t, 0, b.Blocked)
		assert.True(t, b.RetryAt.IsZero())
	})

	t.Run("daily cap blocks until the day window resets", func(t *testing.T) {
		limiter, repo := newTestLimiter(t, now)
		dayStart := now.Add(-5 * time.Hour)
		repo.EXPECT().GetCounters(gomock.Any(), gomock.Any()).Return(map[string]*domain.DomainLimitCounter{
			"a.com": {Domain: "a.com", HourlyCount: 0, HourlyWindowStart: windowStart, DailyCount: 800, DailyWindowStart: dayStart},
		}, nil)

		decisions, err := limiter.CheckLimits(context.Background(), map[string]int{"a.com": 4})
		require.NoError(t, err)
		assert.Equal(t, 0, decisions["a.com"].Allowed)
		assert.Equal(t, 4, decisions["a.com"].Blocked)
		assert.Equal(t, dayStart.Add(24*time.Hour), decisions["a.com"].RetryAt)
	})

	t.Run("expired window is available again without writing", func(t *testing.T) {
		limiter, repo := newTestLimiter(t, now)
		stored := &domain.DomainLimitCounter{Domain: "a.com", HourlyCount: 200, HourlyWindowStart: now.Add(-time.Hour), DailyCount: 200, DailyWindowStart: now.Add(-time.Hour)}
		repo.EXPECT().GetCounters(gomock.Any(), gomock.Any()).Return(map[string]*domain.DomainLimitCounter{"a.com": stored}, nil)

		decisions, err := limiter.CheckLimits(context.Background(), map[string]int{"a.com": 50})
		require.NoError(t, err)
		assert.Equal(t, 50, decisions["a.com"].Allowed)
		assert.Equal(t, 200, stored.HourlyCount)
	})

	t.Run("store failure", func(t *testing.T) {
		limiter, repo := newTestLimiter(t, now)
		repo.EXPECT().GetCounters(gomock.Any(), gomock.Any()).Return(nil, errors.New("down"))

		_, err := limiter.CheckLimits(context.Background(), map[string]int{"a.com": 1})
		assert.Error(t, err)
	})

	t.Run("empty request", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, now)
		decisions, err := limiter.CheckLimits(context.Background(), map[string]int{"": 3, "a.com": 0})
		require.NoError(t, err)
		assert.Empty(t, decisions)
	})
}

func TestDomainRateLimiter_IncrementUsage(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	t.Run("increments every domain", func(t *testing.T) {
		limiter, repo := newTestLimiter(t, now)

		var mu sync.Mutex
		seen := map[string]int{}
		repo.EXPECT().Increment(gomock.Any(), gomock.Any(), gomock.Any(), now, gomock.Any()).Times(2).DoAndReturn(
			func(_ context.Context, d string, n int, at time.Time, p domain.DeliveryPolicy) (*domain.DomainLimitCounter, int, error) {
				mu.Lock()
				seen[d] = n
				mu.Unlock()
				c := domain.NewDomainLimitCounter(d, at)
				return c, c.ApplyIncrement(n, at, p), nil
			})

		err := limiter.IncrementUsage(context.Background(), map[string]int{"a.com": 4, "B.COM": 2})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"a.com": 4, "b.com": 2}, seen)
	})

	t.Run("error from one domain is returned", func(t *testing.T) {
		limiter, repo := newTestLimiter(t, now)
		repo.EXPECT().Increment(gomock.Any(), "a.com", 1, now, gomock.Any()).
			Return(nil, 0, errors.New("conflict retries exhausted"))

		err := limiter.IncrementUsage(context.Background(), map[string]int{"a.com": 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a.com")
	})

	t.Run("nothing to record", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, now)
		assert.NoError(t, limiter.IncrementUsage(context.Background(), nil))
	})
}
