package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/pkg/logger"
)

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(context.Background(), logger.NewMockLogger(t))
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Add("delivery", "*/5 * * * *", time.Minute, noop))
	require.NoError(t, s.Add("campaigns", "@hourly", time.Minute, noop))
	require.NoError(t, s.Add("manual", "", 0, noop))
	assert.Equal(t, 2, s.Entries())

	err := s.Add("delivery", "* * * * *", 0, noop)
	assert.Error(t, err)

	err = s.Add("broken", "not a cron spec", 0, noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestScheduler_Trigger(t *testing.T) {
	t.Run("runs the job with its timeout", func(t *testing.T) {
		s := NewScheduler(context.Background(), logger.NewMockLogger(t))

		var sawDeadline bool
		require.NoError(t, s.Add("reaper", "", time.Minute, func(ctx context.Context) error {
			_, sawDeadline = ctx.Deadline()
			return nil
		}))

		require.NoError(t, s.Trigger("reaper"))
		assert.True(t, sawDeadline)
	})

	t.Run("returns the job error", func(t *testing.T) {
		log := logger.NewTestLogger(t)
		s := NewScheduler(context.Background(), log)
		require.NoError(t, s.Add("delivery", "", 0, func(ctx context.Context) error {
			return errors.New("claim failed")
		}))

		err := s.Trigger("delivery")
		assert.EqualError(t, err, "claim failed")
		assert.Contains(t, log.Entries(), "[ERROR] Job failed")
	})

	t.Run("unknown job", func(t *testing.T) {
		s := NewScheduler(context.Background(), logger.NewMockLogger(t))
		assert.Error(t, s.Trigger("nope"))
	})

	t.Run("does not overlap with itself", func(t *testing.T) {
		s := NewScheduler(context.Background(), logger.NewMockLogger(t))

		started := make(chan struct{})
		release := make(chan struct{})
		var runs int32
		require.NoError(t, s.Add("delivery", "", 0, func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			close(started)
			<-release
			return nil
		}))

		done := make(chan error, 1)
		go func() { done <- s.Trigger("delivery") }()
		<-started

		err := s.Trigger("delivery")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	})

	t.Run("cancelled scheduler runs nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		s := NewScheduler(ctx, logger.NewMockLogger(t))

		called := false
		require.NoError(t, s.Add("campaigns", "", 0, func(ctx context.Context) error {
			called = true
			return nil
		}))
		cancel()

		assert.ErrorIs(t, s.Trigger("campaigns"), context.Canceled)
		assert.False(t, called)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(context.Background(), logger.NewMockLogger(t))
	require.NoError(t, s.Add("delivery", "@every 1h", 0, func(ctx context.Context) error { return nil }))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestKVToFields(t *testing.T) {
	fields := kvToFields([]interface{}{"entry", 3, "next", "soon", "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 3, "next": "soon"}, fields)
}
