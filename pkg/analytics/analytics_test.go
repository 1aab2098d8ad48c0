package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/notify/pkg/analytics"
	"github.com/peoplehub/notify/pkg/notification"
)

func seedRecord(t *testing.T, store *notification.MemoryStore, ch notification.Channel, typ notification.Type, createdAt time.Time, settle func(id string)) {
	t.Helper()

	rec := &notification.Record{
		ID:        uuid.NewString(),
		Type:      typ,
		Channel:   ch,
		UserID:    "emp-1",
		Email:     "emp1@example.com",
		Message:   "m",
		CreatedAt: createdAt,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	if settle != nil {
		settle(rec.ID)
	}
}

func TestAggregator_Summary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := notification.NewMemoryStore()
	agg, err := analytics.NewAggregator(store)
	require.NoError(t, err)

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

	deliverAfter := func(d time.Duration, at time.Time) func(string) {
		return func(id string) {
			_, err := store.MarkDelivered(ctx, id, at.Add(d))
			require.NoError(t, err)
		}
	}
	fail := func(at time.Time) func(string) {
		return func(id string) {
			_, err := store.MarkFailed(ctx, id, at, "provider error")
			require.NoError(t, err)
		}
	}

	// Day 1: two delivered emails (2m and 4m latency), one failed SMS.
	seedRecord(t, store, notification.ChannelEmail, notification.TypeLeaveApproved, day1, deliverAfter(2*time.Minute, day1))
	seedRecord(t, store, notification.ChannelEmail, notification.TypeLeaveApproved, day1, deliverAfter(4*time.Minute, day1))
	seedRecord(t, store, notification.ChannelSMS, notification.TypeMissedCheckIn, day1, fail(day1))
	// Day 2: one pending in-app.
	seedRecord(t, store, notification.ChannelInApp, notification.TypeGoalAssigned, day2, nil)
	// Outside the range: ignored.
	seedRecord(t, store, notification.ChannelEmail, notification.TypeLeaveApproved, day1.AddDate(0, 0, -30), nil)

	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

	summary, err := agg.Summary(ctx, since, until)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Delivered)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Pending)
	assert.InDelta(t, 0.5, summary.DeliveryRate, 1e-9)
	assert.InDelta(t, 0.25, summary.FailureRate, 1e-9)
	assert.Equal(t, 3*time.Minute, summary.AvgDeliveryTime)

	email := summary.ByChannel[notification.ChannelEmail]
	assert.Equal(t, 2, email.Total)
	assert.Equal(t, 2, email.Delivered)
	assert.InDelta(t, 1.0, email.Rate, 1e-9)

	sms := summary.ByChannel[notification.ChannelSMS]
	assert.Equal(t, 1, sms.Failed)
	assert.Zero(t, sms.Rate)

	assert.Equal(t, 2, summary.ByType[notification.TypeLeaveApproved])
	assert.Equal(t, 1, summary.ByType[notification.TypeGoalAssigned])

	require.Len(t, summary.Daily, 2)
	assert.Equal(t, "2025-03-10", summary.Daily[0].Date)
	assert.Equal(t, 3, summary.Daily[0].Total)
	assert.Equal(t, "2025-03-11", summary.Daily[1].Date)
	assert.Equal(t, 1, summary.Daily[1].Total)
}

func TestAggregator_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := analytics.NewAggregator(nil)
	assert.ErrorIs(t, err, analytics.ErrStoreNil)

	store := notification.NewMemoryStore()
	agg, err := analytics.NewAggregator(store)
	require.NoError(t, err)

	now := time.Now()
	_, err = agg.Summary(ctx, now, now)
	assert.Error(t, err)
}

func TestAggregator_EmptyRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := notification.NewMemoryStore()
	agg, err := analytics.NewAggregator(store)
	require.NoError(t, err)

	summary, err := agg.Summary(ctx, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.DeliveryRate)
	assert.Empty(t, summary.Daily)
}
