package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/notify/pkg/channels"
	"github.com/peoplehub/notify/pkg/dispatch"
	"github.com/peoplehub/notify/pkg/notification"
	"github.com/peoplehub/notify/pkg/queue"
)

func newProcessorFixture(t *testing.T, stub *channels.StubAdapter) (*notification.MemoryStore, *dispatch.Processor) {
	t.Helper()
	ctx := context.Background()

	registry := channels.NewRegistry()
	require.NoError(t, registry.Register(stub))
	require.NoError(t, registry.InitializeAll(ctx))

	store := notification.NewMemoryStore()
	p, err := dispatch.NewProcessor(store, store, registry)
	require.NoError(t, err)
	return store, p
}

func pendingRecord(t *testing.T, store *notification.MemoryStore) *notification.Record {
	t.Helper()
	rec := &notification.Record{
		ID:      uuid.NewString(),
		Type:    notification.TypeReviewDue,
		Channel: notification.ChannelEmail,
		UserID:  "emp-1",
		Email:   "emp1@example.com",
		Subject: "Review due",
		Message: "Your self-review is due Friday.",
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec
}

func jobFor(rec *notification.Record, attempt int) queue.Job {
	return queue.Job{
		ID:             uuid.New(),
		NotificationID: rec.ID,
		Status:         queue.StatusActive,
		Priority:       queue.PriorityNormal,
		Attempt:        attempt,
		MaxAttempts:    3,
		ScheduledAt:    time.Now(),
		CreatedAt:      time.Now(),
	}
}

func TestProcessor_Handle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful delivery marks record delivered", func(t *testing.T) {
		t.Parallel()

		stub := channels.NewStubAdapter(notification.ChannelEmail)
		store, p := newProcessorFixture(t, stub)
		rec := pendingRecord(t, store)

		require.NoError(t, p.Handle(ctx, jobFor(rec, 1)))

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusDelivered, got.Status)
		require.NotNil(t, got.DeliveredAt)
		require.NotNil(t, got.SentAt)

		sent := stub.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "emp1@example.com", sent[0].Recipient)
		assert.Equal(t, string(notification.TypeReviewDue), sent[0].Data["type"])

		entries, err := store.ListByNotification(ctx, rec.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, notification.ActionDelivered, entries[0].Action)
	})

	t.Run("transient failure keeps record pending", func(t *testing.T) {
		t.Parallel()

		sendErr := errors.New("gateway timeout")
		stub := channels.NewStubAdapter(notification.ChannelEmail,
			channels.WithStubSendError(func(req channels.Request) error { return sendErr }))
		store, p := newProcessorFixture(t, stub)
		rec := pendingRecord(t, store)

		// Attempts remain, so the error propagates for the queue to back off.
		err := p.Handle(ctx, jobFor(rec, 1))
		assert.ErrorIs(t, err, sendErr)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, got.Status)
	})

	t.Run("final attempt failure marks record failed", func(t *testing.T) {
		t.Parallel()

		sendErr := errors.New("recipient rejected")
		stub := channels.NewStubAdapter(notification.ChannelEmail,
			channels.WithStubSendError(func(req channels.Request) error { return sendErr }))
		store, p := newProcessorFixture(t, stub)
		rec := pendingRecord(t, store)

		err := p.Handle(ctx, jobFor(rec, 3))
		assert.ErrorIs(t, err, sendErr)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMessage, "recipient rejected")
		require.NotNil(t, got.FailedAt)

		entries, err := store.ListByNotification(ctx, rec.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, notification.ActionFailed, entries[0].Action)
	})

	t.Run("missing record drops job without error", func(t *testing.T) {
		t.Parallel()

		stub := channels.NewStubAdapter(notification.ChannelEmail)
		_, p := newProcessorFixture(t, stub)

		job := queue.Job{
			ID:             uuid.New(),
			NotificationID: "gone",
			Attempt:        1,
			MaxAttempts:    3,
		}
		assert.NoError(t, p.Handle(ctx, job))
		assert.Empty(t, stub.Sent())
	})

	t.Run("settled record skipped", func(t *testing.T) {
		t.Parallel()

		stub := channels.NewStubAdapter(notification.ChannelEmail)
		store, p := newProcessorFixture(t, stub)
		rec := pendingRecord(t, store)

		_, err := store.MarkDelivered(ctx, rec.ID, time.Now())
		require.NoError(t, err)

		require.NoError(t, p.Handle(ctx, jobFor(rec, 2)))
		assert.Empty(t, stub.Sent(), "no second provider call for a delivered record")
	})

	t.Run("delivery leaves the stored payload untouched", func(t *testing.T) {
		t.Parallel()

		stub := channels.NewStubAdapter(notification.ChannelEmail)
		store, p := newProcessorFixture(t, stub)

		// Event fan-out hands sibling notifications the same payload map.
		shared := map[string]any{"employee_id": "emp-1"}
		welcome := &notification.Record{
			ID:      uuid.NewString(),
			Type:    notification.TypeEmployeeWelcome,
			Channel: notification.ChannelEmail,
			UserID:  "emp-1",
			Email:   "emp1@example.com",
			Message: "Welcome aboard!",
			Data:    shared,
		}
		managerPing := &notification.Record{
			ID:      uuid.NewString(),
			Type:    notification.TypeTeamMemberJoined,
			Channel: notification.ChannelEmail,
			UserID:  "mgr-1",
			Email:   "mgr1@example.com",
			Message: "emp-1 has joined your team.",
			Data:    shared,
		}
		require.NoError(t, store.Create(ctx, welcome))
		require.NoError(t, store.Create(ctx, managerPing))

		require.NoError(t, p.Handle(ctx, jobFor(welcome, 1)))
		require.NoError(t, p.Handle(ctx, jobFor(managerPing, 1)))

		// The adapter request carries the tag, the persisted records do not.
		sent := stub.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, string(notification.TypeEmployeeWelcome), sent[0].Data["type"])
		assert.Equal(t, string(notification.TypeTeamMemberJoined), sent[1].Data["type"])

		got, err := store.Get(ctx, welcome.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"employee_id": "emp-1"}, got.Data)

		got, err = store.Get(ctx, managerPing.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"employee_id": "emp-1"}, got.Data)
	})

	t.Run("unregistered channel counts as attempt failure", func(t *testing.T) {
		t.Parallel()

		stub := channels.NewStubAdapter(notification.ChannelSMS)
		store, p := newProcessorFixture(t, stub)
		rec := pendingRecord(t, store) // EMAIL record, only SMS registered

		err := p.Handle(ctx, jobFor(rec, 3))
		require.ErrorIs(t, err, channels.ErrUnknownChannel)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, got.Status)
	})
}

func TestPipeline_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Full path: submit -> queue -> worker -> adapter -> delivered record.
	f := newFixture(t)

	stub := channels.NewStubAdapter(notification.ChannelEmail)
	registry := channels.NewRegistry()
	require.NoError(t, registry.Register(stub))
	require.NoError(t, registry.InitializeAll(ctx))

	p, err := dispatch.NewProcessor(f.store, f.store, registry)
	require.NoError(t, err)

	worker, err := queue.NewWorker(f.queue, p,
		queue.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, worker.Start(ctx))
	defer func() { require.NoError(t, worker.Stop()) }()

	rec, err := f.dispatcher.Submit(ctx, emailInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.store.Get(ctx, rec.ID)
		return err == nil && got.Status == notification.StatusDelivered
	}, 5*time.Second, 20*time.Millisecond)

	require.Len(t, stub.Sent(), 1)

	entries, err := f.store.ListByNotification(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, notification.ActionQueued, entries[0].Action)
	assert.Equal(t, notification.ActionDelivered, entries[1].Action)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
}
