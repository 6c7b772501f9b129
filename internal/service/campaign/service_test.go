package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notifuse/outreach/internal/domain"
	"github.com/Notifuse/outreach/internal/domain/mocks"
	"github.com/Notifuse/outreach/pkg/logger"
)

type serviceMocks struct {
	campaigns *mocks.MockCampaignRepository
	contacts  *mocks.MockContactRepository
	queue     *mocks.MockSendQueueRepository
}

func setupService(t *testing.T, now time.Time) (*Service, serviceMocks) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	m := serviceMocks{
		campaigns: mocks.NewMockCampaignRepository(ctrl),
		contacts:  mocks.NewMockContactRepository(ctrl),
		queue:     mocks.NewMockSendQueueRepository(ctrl),
	}
	clock := fixedClock{now: now}
	cfg := DefaultConfig()
	log := logger.NewMockLogger(t)
	enqueuer := NewEnqueuer(m.queue, clock, cfg, log)
	return NewService(m.campaigns, m.contacts, m.queue, enqueuer, clock, cfg, log), m
}

func activeCampaign(now time.Time) *domain.Campaign {
	hours := 2.0
	started := now.Add(-time.Hour)
	return &domain.Campaign{
		ID:          "camp-1",
		Name:        "Spring",
		Subject:     "Spring update",
		FromEmail:   "news@studio.dev",
		HTMLContent: "<p>Hi</p>",
		Criteria: domain.SegmentCriteria{
			Logic: domain.SegmentLogicAnd,
			Rules: []domain.SegmentRule{
				{Field: "plan", Operator: domain.OperatorEquals, Value: "pro"},
			},
		},
		IsActive:            true,
		TargetDurationHours: &hours,
		StartedAt:           &started,
	}
}

func proContacts(n int) []*domain.Contact {
	contacts := makeContacts(n)
	for _, c := range contacts {
		c.Attributes = map[string]interface{}{"plan": "pro"}
	}
	return contacts
}

func TestService_Create(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("stores an inactive campaign with an id", func(t *testing.T) {
		svc, m := setupService(t, now)
		c := activeCampaign(now)
		c.ID = ""

		m.campaigns.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		created, err := svc.Create(context.Background(), c)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.IsActive)
		assert.Nil(t, created.StartedAt)
		assert.Equal(t, now, created.CreatedAt)
	})

	t.Run("invalid campaign is rejected before storage", func(t *testing.T) {
		svc, _ := setupService(t, now)
		c := activeCampaign(now)
		c.FromEmail = "nope"

		_, err := svc.Create(context.Background(), c)
		require.Error(t, err)
		assert.True(t, domain.IsValidationError(err))
	})
}

func TestService_ResumeAndPause(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("first resume records the start time", func(t *testing.T) {
		svc, m := setupService(t, now)
		c := activeCampaign(now)
		c.IsActive = false
		c.StartedAt = nil

		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)
		m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

		resumed, err := svc.Resume(context.Background(), "camp-1")
		require.NoError(t, err)
		assert.True(t, resumed.IsActive)
		require.NotNil(t, resumed.StartedAt)
		assert.Equal(t, now, *resumed.StartedAt)
	})

	t.Run("pause keeps the original start time", func(t *testing.T) {
		svc, m := setupService(t, now)
		c := activeCampaign(now)
		started := *c.StartedAt

		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)
		m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

		paused, err := svc.Pause(context.Background(), "camp-1")
		require.NoError(t, err)
		assert.False(t, paused.IsActive)
		assert.Equal(t, started, *paused.StartedAt)
	})

	t.Run("missing campaign", func(t *testing.T) {
		svc, m := setupService(t, now)
		m.campaigns.EXPECT().GetByID(gomock.Any(), "ghost").
			Return(nil, &domain.ErrNotFound{Entity: "campaign", ID: "ghost"})

		_, err := svc.Pause(context.Background(), "ghost")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestService_Cancel(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc, m := setupService(t, now)

	m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(activeCampaign(now), nil)
	m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.Campaign) error {
			assert.False(t, c.IsActive)
			return nil
		})
	m.queue.EXPECT().DeletePendingByCampaign(gomock.Any(), "camp-1").Return(int64(4), nil)

	removed, err := svc.Cancel(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestService_UpdateMetrics(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("out of range metrics", func(t *testing.T) {
		svc, _ := setupService(t, now)
		_, err := svc.UpdateMetrics(context.Background(), "camp-1", domain.WarmupMetrics{OpenRate: 1.5})
		require.Error(t, err)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("stores metrics", func(t *testing.T) {
		svc, m := setupService(t, now)
		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(activeCampaign(now), nil)
		m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

		updated, err := svc.UpdateMetrics(context.Background(), "camp-1",
			domain.WarmupMetrics{OpenRate: 0.5, BounceRate: 0.01, EngagementScore: 8})
		require.NoError(t, err)
		require.NotNil(t, updated.Metrics)
		assert.Equal(t, 0.5, updated.Metrics.OpenRate)
	})
}

func TestService_Advance(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("enqueues unqueued matching contacts up to the warmup rate", func(t *testing.T) {
		svc, m := setupService(t, now)
		c := activeCampaign(now)

		pool := proContacts(12)
		pool[10].Attributes["plan"] = "free"
		pool[11].Status = domain.ContactStatusBounced

		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)
		m.contacts.EXPECT().ListEligible(gomock.Any(), domain.ContactFilter{Limit: 1000, Offset: 0}).Return(pool, nil)
		m.queue.EXPECT().EnqueuedContactIDs(gomock.Any(), "camp-1").Return([]string{"contact-000", "contact-001"}, nil)

		var queued []*domain.QueueItem
		m.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, items []*domain.QueueItem) error {
				queued = items
				return nil
			})
		m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, updated *domain.Campaign) error {
				assert.Equal(t, 10, updated.TotalContacts)
				assert.Equal(t, 6, updated.EnqueuedContacts)
				return nil
			})

		result, err := svc.Advance(context.Background(), "camp-1")
		require.NoError(t, err)

		// 8 remaining over a 2 hour target
		assert.Equal(t, 4, result.EmailsPerHour)
		assert.Equal(t, 4, result.Enqueue.TotalContacts)
		assert.Equal(t, 4, result.Remaining)

		var ids []string
		for _, item := range queued {
			ids = append(ids, item.ContactIDs...)
		}
		assert.Equal(t, []string{"contact-002", "contact-003", "contact-004", "contact-005"}, ids)
	})

	t.Run("paused campaign is refused", func(t *testing.T) {
		svc, m := setupService(t, now)
		c := activeCampaign(now)
		c.IsActive = false
		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)

		_, err := svc.Advance(context.Background(), "camp-1")
		var ce *CampaignError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, ErrCodeCampaignPaused, ce.Code)
	})

	t.Run("fully queued campaign enqueues nothing", func(t *testing.T) {
		svc, m := setupService(t, now)
		c := activeCampaign(now)
		pool := proContacts(2)

		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)
		m.contacts.EXPECT().ListEligible(gomock.Any(), gomock.Any()).Return(pool, nil)
		m.queue.EXPECT().EnqueuedContactIDs(gomock.Any(), "camp-1").Return([]string{"contact-000", "contact-001"}, nil)
		m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

		result, err := svc.Advance(context.Background(), "camp-1")
		require.NoError(t, err)
		assert.Equal(t, 0, result.EmailsPerHour)
		assert.Equal(t, 0, result.Enqueue.TotalContacts)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("contact store failure is retryable", func(t *testing.T) {
		svc, m := setupService(t, now)
		m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(activeCampaign(now), nil)
		m.contacts.EXPECT().ListEligible(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err := svc.Advance(context.Background(), "camp-1")
		var ce *CampaignError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, ErrCodeContactFetch, ce.Code)
		assert.True(t, ce.Retryable)
	})
}

func TestService_AdvanceActive(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc, m := setupService(t, now)

	broken := activeCampaign(now)
	broken.ID = "camp-broken"
	healthy := activeCampaign(now)

	m.campaigns.EXPECT().List(gomock.Any(), true).Return([]*domain.Campaign{broken, healthy}, nil)

	m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-broken").Return(broken, nil)
	m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(healthy, nil)
	gomock.InOrder(
		m.contacts.EXPECT().ListEligible(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")),
		m.contacts.EXPECT().ListEligible(gomock.Any(), gomock.Any()).Return(proContacts(2), nil),
	)
	m.queue.EXPECT().EnqueuedContactIDs(gomock.Any(), "camp-1").Return(nil, nil)
	m.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)
	m.campaigns.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

	results, err := svc.AdvanceActive(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "camp-1", results[0].CampaignID)
	assert.Equal(t, 1, results[0].EmailsPerHour)
	assert.Equal(t, 1, results[0].Enqueue.TotalContacts)
}

func TestService_PreviewSegment(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc, m := setupService(t, now)
	svc.config.PoolPageSize = 3

	page1 := proContacts(3)
	page2 := proContacts(2)
	page2[0].Attributes["plan"] = "free"

	gomock.InOrder(
		m.contacts.EXPECT().ListEligible(gomock.Any(), domain.ContactFilter{Limit: 3, Offset: 0}).Return(page1, nil),
		m.contacts.EXPECT().ListEligible(gomock.Any(), domain.ContactFilter{Limit: 3, Offset: 3}).Return(page2, nil),
	)

	count, err := svc.PreviewSegment(context.Background(), activeCampaign(now).Criteria)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestService_TargetRate(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc, m := setupService(t, now)
	c := activeCampaign(now)
	c.Metrics = &domain.WarmupMetrics{OpenRate: 0.5, BounceRate: 0, EngagementScore: 8}

	m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)
	m.contacts.EXPECT().ListEligible(gomock.Any(), gomock.Any()).Return(proContacts(20), nil)
	m.queue.EXPECT().EnqueuedContactIDs(gomock.Any(), "camp-1").Return([]string{"contact-000"}, nil)

	status, err := svc.TargetRate(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 20, status.TotalContacts)
	assert.Equal(t, 1, status.Enqueued)
	assert.Equal(t, 19, status.Remaining)
	// ceil(19/2)=10, boosted by 1.2 twice
	assert.Equal(t, 15, status.EmailsPerHour)
}

func TestService_TargetRate_IgnoresQueuedContactsOutsidePool(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc, m := setupService(t, now)
	c := activeCampaign(now)

	m.campaigns.EXPECT().GetByID(gomock.Any(), "camp-1").Return(c, nil)
	m.contacts.EXPECT().ListEligible(gomock.Any(), gomock.Any()).Return(proContacts(20), nil)
	// contact-gone was queued earlier and has since left the segment
	m.queue.EXPECT().EnqueuedContactIDs(gomock.Any(), "camp-1").Return([]string{"contact-000", "contact-001", "contact-gone"}, nil)

	status, err := svc.TargetRate(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 20, status.TotalContacts)
	assert.Equal(t, 2, status.Enqueued)
	assert.Equal(t, 18, status.Remaining)
}
