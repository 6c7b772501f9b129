package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/internal/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisDomainLimitRepository_Increment(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	policy := domain.DefaultDeliveryPolicy()

	t.Run("creates the counter on first use", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		repo := NewRedisDomainLimitRepository(client)

		counter, granted, err := repo.Increment(ctx, "a.com", 7, now, policy)
		require.NoError(t, err)
		assert.Equal(t, 7, granted)
		assert.Equal(t, 7, counter.HourlyCount)
		assert.Equal(t, now, counter.HourlyWindowStart)
		assert.True(t, mr.Exists(domainLimitKey("a.com")))
		assert.Equal(t, domainLimitTTL, mr.TTL(domainLimitKey("a.com")))
	})

	t.Run("never exceeds the hourly cap", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		repo := NewRedisDomainLimitRepository(client)

		_, granted, err := repo.Increment(ctx, "a.com", 195, now, policy)
		require.NoError(t, err)
		assert.Equal(t, 195, granted)

		counter, granted, err := repo.Increment(ctx, "a.com", 10, now.Add(time.Minute), policy)
		require.NoError(t, err)
		assert.Equal(t, 5, granted)
		assert.Equal(t, 200, counter.HourlyCount)
	})

	t.Run("hourly window rolls over", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		repo := NewRedisDomainLimitRepository(client)

		_, _, err := repo.Increment(ctx, "a.com", 200, now, policy)
		require.NoError(t, err)

		later := now.Add(time.Hour)
		counter, granted, err := repo.Increment(ctx, "a.com", 10, later, policy)
		require.NoError(t, err)
		assert.Equal(t, 10, granted)
		assert.Equal(t, 10, counter.HourlyCount)
		assert.Equal(t, later, counter.HourlyWindowStart)
		assert.Equal(t, 210, counter.DailyCount)
	})

	t.Run("concurrent increments stay within the cap", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		repo := NewRedisDomainLimitRepository(client)

		var mu sync.Mutex
		total := 0
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 30; i++ {
					_, granted, err := repo.Increment(ctx, "a.com", 1, now, policy)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					total += granted
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 200, total)
		counters, err := repo.GetCounters(ctx, []string{"a.com"})
		require.NoError(t, err)
		assert.Equal(t, 200, counters["a.com"].HourlyCount)
	})
}

func TestRedisDomainLimitRepository_IncrementDailyCap(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	policy := domain.DefaultDeliveryPolicy()
	client, _ := setupTestRedis(t)
	repo := NewRedisDomainLimitRepository(client)

	// four full hours exhaust the daily cap
	now := start
	for i := 0; i < 4; i++ {
		_, granted, err := repo.Increment(ctx, "a.com", 200, now, policy)
		require.NoError(t, err)
		require.Equal(t, 200, granted)
		now = now.Add(time.Hour)
	}

	counter, granted, err := repo.Increment(ctx, "a.com", 10, now, policy)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)
	assert.Equal(t, 0, counter.HourlyCount)
	assert.Equal(t, now, counter.HourlyWindowStart)
	assert.Equal(t, 800, counter.DailyCount)
	assert.Equal(t, start, counter.DailyWindowStart)

	// the stored hash matches the returned counter
	stored, err := repo.GetCounters(ctx, []string{"a.com"})
	require.NoError(t, err)
	assert.Equal(t, counter, stored["a.com"])

	counter, granted, err = repo.Increment(ctx, "a.com", 10, start.Add(24*time.Hour), policy)
	require.NoError(t, err)
	assert.Equal(t, 10, granted)
	assert.Equal(t, 10, counter.DailyCount)
}

func TestRedisDomainLimitRepository_IncrementCanceledContext(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewRedisDomainLimitRepository(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := repo.Increment(ctx, "a.com", 1, time.Now(), domain.DefaultDeliveryPolicy())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisDomainLimitRepository_GetCounters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	client, mr := setupTestRedis(t)
	repo := NewRedisDomainLimitRepository(client)

	_, _, err := repo.Increment(ctx, "a.com", 12, now, domain.DefaultDeliveryPolicy())
	require.NoError(t, err)

	counters, err := repo.GetCounters(ctx, []string{"a.com", "b.com"})
	require.NoError(t, err)
	require.Contains(t, counters, "a.com")
	assert.NotContains(t, counters, "b.com")
	assert.Equal(t, 12, counters["a.com"].DailyCount)

	mr.HSet(domainLimitKey("c.com"), "hourly_count", "oops")
	_, err = repo.GetCounters(ctx, []string{"c.com"})
	assert.Error(t, err)
}
