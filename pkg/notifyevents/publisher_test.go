package notifyevents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"backoffice-notify/internal/model"
	"backoffice-notify/internal/pkg/logger"
	pkgEvents "backoffice-notify/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBus struct {
	mu     sync.Mutex
	events []pkgEvents.Event
	err    error
}

func (b *recordingBus) Publish(_ context.Context, event pkgEvents.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return b.err
}

func TestTypedPublishers(t *testing.T) {
	recipient, actor := uuid.New(), uuid.New()
	target := Target{EntityType: model.EntityTypeTicket, EntityID: uuid.New()}

	tests := []struct {
		name     string
		publish  func(p *NatsPublisher)
		wantType string
	}{
		{"mentioned", func(p *NatsPublisher) { p.PublishMentioned(context.Background(), recipient, actor, target) }, model.NotificationTypeMentioned},
		{"assigned", func(p *NatsPublisher) { p.PublishAssigned(context.Background(), recipient, actor, target) }, model.NotificationTypeAssigned},
		{"secretary", func(p *NatsPublisher) { p.PublishSecretary(context.Background(), recipient, actor, target) }, model.NotificationTypeSecretary},
		{"responsible", func(p *NatsPublisher) { p.PublishResponsible(context.Background(), recipient, actor, target) }, model.NotificationTypeResponsible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &recordingBus{}
			tt.publish(NewNatsPublisher(bus, logger.NewNopLogger()))

			require.Len(t, bus.events, 1)
			ev := bus.events[0]
			assert.Equal(t, TypePrefix+tt.wantType, ev.EventType())
			assert.Equal(t, tt.wantType, ev.Payload()["type"])
			assert.Equal(t, recipient.String(), ev.Payload()["user_id"])
			assert.Equal(t, actor.String(), ev.Payload()["actor_id"])
			assert.Equal(t, model.EntityTypeTicket, ev.Payload()["entity_type"])
			assert.Equal(t, target.EntityID.String(), ev.Payload()["entity_id"])
		})
	}
}

func TestTypedPublisherSwallowsBusErrors(t *testing.T) {
	bus := &recordingBus{err: errors.New("nats down")}
	p := NewNatsPublisher(bus, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		p.PublishAssigned(context.Background(), uuid.New(), uuid.Nil, Target{})
	})
	require.Len(t, bus.events, 1)
	assert.NotContains(t, bus.events[0].Payload(), "actor_id")
	assert.NotContains(t, bus.events[0].Payload(), "entity_id")
}

func TestPublishWithoutBus(t *testing.T) {
	p := NewNatsPublisher(nil, logger.NewNopLogger())
	assert.NoError(t, p.Publish(context.Background(), model.NotificationTypeMentioned, uuid.New(), uuid.Nil, Target{}))
}
