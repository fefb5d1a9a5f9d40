package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"backoffice-notify/internal/changefeed"
	"backoffice-notify/internal/model"
	"backoffice-notify/internal/pkg/logger"
	"backoffice-notify/internal/repository"
	"backoffice-notify/internal/repository/memory"
	"backoffice-notify/pkg/events"
	pktNats "backoffice-notify/pkg/nats"
	"backoffice-notify/pkg/notifyevents"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedChange struct {
	op      changefeed.Op
	records []model.Notification
}

type fakeChanges struct {
	mu      sync.Mutex
	changes []publishedChange
	err     error
}

func (f *fakeChanges) Publish(_ context.Context, op changefeed.Op, records ...model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, publishedChange{op: op, records: records})
	return f.err
}

func (f *fakeChanges) published() []publishedChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedChange(nil), f.changes...)
}

type fakeSubscriber struct {
	subject string
	durable string
	handler pktNats.EventHandler
	err     error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, subject, durable string, handler pktNats.EventHandler) error {
	f.subject, f.durable, f.handler = subject, durable, handler
	return f.err
}

func newTestService(t *testing.T) (*NotificationService, *memory.NotificationRepository, *fakeChanges, *fakeSubscriber) {
	t.Helper()
	repo := memory.NewNotificationRepository()
	changes := &fakeChanges{}
	sub := &fakeSubscriber{}
	svc := NewNotificationService(repo, changes, sub, logger.NewNopLogger(), NotificationServiceOptions{
		DefaultLimit: 50,
		MaxLimit:     200,
	})
	return svc, repo, changes, sub
}

func TestNotifyPersistsAndAnnouncesInsert(t *testing.T) {
	svc, repo, changes, _ := newTestService(t)
	ctx := context.Background()

	user := uuid.New()
	ticket := uuid.New()
	created, err := svc.Notify(ctx, NotifyRequest{
		UserID:     user,
		Type:       model.NotificationTypeAssigned,
		EntityType: model.EntityTypeTicket,
		EntityID:   &ticket,
		Metadata:   map[string]interface{}{"priority": "high"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Nil(t, created.ReadAt)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, user, stored.UserID)
	assert.Equal(t, model.EntityTypeTicket, stored.RelatedEntityType)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(stored.Metadata, &meta))
	assert.Equal(t, "high", meta["priority"])

	published := changes.published()
	require.Len(t, published, 1)
	assert.Equal(t, changefeed.OpInsert, published[0].op)
	require.Len(t, published[0].records, 1)
	assert.Equal(t, created.ID, published[0].records[0].ID)
}

func TestNotifyRejectsIncompleteRequest(t *testing.T) {
	svc, _, changes, _ := newTestService(t)

	_, err := svc.Notify(context.Background(), NotifyRequest{Type: model.NotificationTypeMentioned})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Notify(context.Background(), NotifyRequest{UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, changes.published())
}

func TestNotifySurvivesPublishFailure(t *testing.T) {
	svc, repo, changes, _ := newTestService(t)
	changes.err = errors.New("feed closed")

	user := uuid.New()
	created, err := svc.Notify(context.Background(), NotifyRequest{UserID: user, Type: model.NotificationTypeSecretary})
	require.NoError(t, err)

	count, err := repo.CountUnread(context.Background(), user)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.NotNil(t, created)
}

func TestHandleEventFromBus(t *testing.T) {
	svc, repo, _, sub := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, "events.notification.>", "notification-service"))
	require.NotNil(t, sub.handler)
	assert.Equal(t, "events.notification.>", sub.subject)
	assert.Equal(t, "notification-service", sub.durable)

	recipient := uuid.New()
	actor := uuid.New()
	minute := uuid.New()

	t.Run("stores a request", func(t *testing.T) {
		event := notifyevents.NewEvent(model.NotificationTypeSecretary, recipient, actor,
			notifyevents.Target{EntityType: model.EntityTypeMeetingMinute, EntityID: minute}, time.Now())
		require.NoError(t, sub.handler(ctx, event))

		rows, err := repo.ListUnread(ctx, recipient, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, model.NotificationTypeSecretary, rows[0].Type)
		require.NotNil(t, rows[0].ActorID)
		assert.Equal(t, actor, *rows[0].ActorID)
		require.NotNil(t, rows[0].RelatedEntityID)
		assert.Equal(t, minute, *rows[0].RelatedEntityID)
	})

	t.Run("skips self notification", func(t *testing.T) {
		self := uuid.New()
		event := notifyevents.NewEvent(model.NotificationTypeMentioned, self, self, notifyevents.Target{}, time.Now())
		require.NoError(t, sub.handler(ctx, event))

		count, err := repo.CountUnread(ctx, self)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("drops malformed request", func(t *testing.T) {
		event := events.BaseEvent{
			Type: notifyevents.TypePrefix + model.NotificationTypeAssigned,
			Data: map[string]interface{}{"user_id": "not-a-uuid"},
		}
		assert.NoError(t, sub.handler(ctx, event))
	})
}

func TestStartWithoutSubscriber(t *testing.T) {
	svc := NewNotificationService(memory.NewNotificationRepository(), nil, nil, logger.NewNopLogger(), NotificationServiceOptions{})
	assert.Error(t, svc.Start(context.Background(), "events.notification.>", "durable"))
}

func TestRequestFromEvent(t *testing.T) {
	user := uuid.New()
	entity := uuid.New()

	tests := []struct {
		name    string
		event   events.BaseEvent
		want    NotifyRequest
		wantErr bool
	}{
		{
			name: "type falls back to the event type",
			event: events.BaseEvent{
				Type: "notification.responsible",
				Data: map[string]interface{}{"user_id": user.String()},
			},
			want: NotifyRequest{UserID: user, Type: "responsible", Metadata: map[string]interface{}{}},
		},
		{
			name: "entity needs both type and id",
			event: events.BaseEvent{
				Type: "notification.assigned",
				Data: map[string]interface{}{
					"type":        "assigned",
					"user_id":     user.String(),
					"entity_type": model.EntityTypeTicket,
				},
			},
			want: NotifyRequest{UserID: user, Type: "assigned", Metadata: map[string]interface{}{}},
		},
		{
			name: "unknown keys become metadata",
			event: events.BaseEvent{
				Type: "notification.mentioned",
				Data: map[string]interface{}{
					"type":        "mentioned",
					"user_id":     user.String(),
					"entity_type": model.EntityTypeComment,
					"entity_id":   entity.String(),
					"excerpt":     "see above",
				},
			},
			want: NotifyRequest{
				UserID:     user,
				Type:       "mentioned",
				EntityType: model.EntityTypeComment,
				EntityID:   &entity,
				Metadata:   map[string]interface{}{"excerpt": "see above"},
			},
		},
		{
			name:    "missing user",
			event:   events.BaseEvent{Type: "notification.assigned", Data: map[string]interface{}{}},
			wantErr: true,
		},
		{
			name:    "missing type",
			event:   events.BaseEvent{Data: map[string]interface{}{"user_id": user.String()}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestFromEvent(tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkAsRead(t *testing.T) {
	svc, _, changes, _ := newTestService(t)
	ctx := context.Background()

	owner := uuid.New()
	created, err := svc.Notify(ctx, NotifyRequest{UserID: owner, Type: model.NotificationTypeAssigned})
	require.NoError(t, err)

	t.Run("another user is forbidden", func(t *testing.T) {
		_, err := svc.MarkAsRead(ctx, uuid.New(), created.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.MarkAsRead(ctx, owner, uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotificationNotFound)
	})

	first, err := svc.MarkAsRead(ctx, owner, created.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)

	second, err := svc.MarkAsRead(ctx, owner, created.ID)
	require.NoError(t, err)
	require.NotNil(t, second.ReadAt)
	assert.True(t, first.ReadAt.Equal(*second.ReadAt))

	var updates int
	for _, c := range changes.published() {
		if c.op == changefeed.OpUpdate {
			updates++
		}
	}
	assert.Equal(t, 1, updates)
}

func TestMarkAllAsRead(t *testing.T) {
	svc, repo, changes, _ := newTestService(t)
	ctx := context.Background()

	user := uuid.New()
	other := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := svc.Notify(ctx, NotifyRequest{UserID: user, Type: model.NotificationTypeMentioned})
		require.NoError(t, err)
	}
	_, err := svc.Notify(ctx, NotifyRequest{UserID: other, Type: model.NotificationTypeMentioned})
	require.NoError(t, err)

	count, err := svc.MarkAllAsRead(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	remaining, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	untouched, err := repo.CountUnread(ctx, other)
	require.NoError(t, err)
	assert.EqualValues(t, 1, untouched)

	published := changes.published()
	last := published[len(published)-1]
	assert.Equal(t, changefeed.OpUpdate, last.op)
	assert.Len(t, last.records, 3)

	again, err := svc.MarkAllAsRead(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Len(t, changes.published(), len(published))
}

func TestListLimits(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	user := uuid.New()
	for i := 0; i < 60; i++ {
		_, err := svc.Notify(ctx, NotifyRequest{UserID: user, Type: model.NotificationTypeAssigned})
		require.NoError(t, err)
	}

	rows, err := svc.ListUnread(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 50)

	rows, err = svc.ListRecent(ctx, user, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	assert.Equal(t, 200, svc.clampLimit(1000))
	assert.Equal(t, 7, svc.clampLimit(7))
}
