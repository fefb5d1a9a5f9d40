package notifyevents

import (
	"context"
	"time"

	"backoffice-notify/internal/model"
	"backoffice-notify/internal/pkg/logger"
	pkgEvents "backoffice-notify/pkg/events"

	"github.com/google/uuid"
)

// TypePrefix namespaces notification requests on the bus.
const TypePrefix = "notification."

// Target identifies the entity a notification is about.
type Target struct {
	EntityType string
	EntityID   uuid.UUID
}

// EventPublisher is the subset of the NATS publisher used here.
type EventPublisher interface {
	Publish(ctx context.Context, event pkgEvents.Event) error
}

// Publisher is used by the CRUD modules (tickets, meeting minutes, comments)
// to request a notification for a user.
type Publisher interface {
	PublishMentioned(ctx context.Context, recipient, actor uuid.UUID, target Target)
	PublishAssigned(ctx context.Context, recipient, actor uuid.UUID, target Target)
	PublishSecretary(ctx context.Context, recipient, actor uuid.UUID, target Target)
	PublishResponsible(ctx context.Context, recipient, actor uuid.UUID, target Target)
	Publish(ctx context.Context, notificationType string, recipient, actor uuid.UUID, target Target) error
}

type NatsPublisher struct {
	publisher EventPublisher
	logger    logger.ILogger
}

func NewNatsPublisher(publisher EventPublisher, logger logger.ILogger) *NatsPublisher {
	return &NatsPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishMentioned emits notification.mentioned (a user was @-mentioned in a comment).
func (p *NatsPublisher) PublishMentioned(ctx context.Context, recipient, actor uuid.UUID, target Target) {
	p.publishLogged(ctx, model.NotificationTypeMentioned, recipient, actor, target)
}

// PublishAssigned emits notification.assigned (ticket assignment).
func (p *NatsPublisher) PublishAssigned(ctx context.Context, recipient, actor uuid.UUID, target Target) {
	p.publishLogged(ctx, model.NotificationTypeAssigned, recipient, actor, target)
}

// PublishSecretary emits notification.secretary (named secretary of a meeting minute).
func (p *NatsPublisher) PublishSecretary(ctx context.Context, recipient, actor uuid.UUID, target Target) {
	p.publishLogged(ctx, model.NotificationTypeSecretary, recipient, actor, target)
}

// PublishResponsible emits notification.responsible.
func (p *NatsPublisher) PublishResponsible(ctx context.Context, recipient, actor uuid.UUID, target Target) {
	p.publishLogged(ctx, model.NotificationTypeResponsible, recipient, actor, target)
}

func (p *NatsPublisher) Publish(ctx context.Context, notificationType string, recipient, actor uuid.UUID, target Target) error {
	if p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, NewEvent(notificationType, recipient, actor, target, time.Now()))
}

func (p *NatsPublisher) publishLogged(ctx context.Context, notificationType string, recipient, actor uuid.UUID, target Target) {
	if err := p.Publish(ctx, notificationType, recipient, actor, target); err != nil {
		p.logger.Error("NOTIFY_EVENTS", "Failed to publish notification event", map[string]interface{}{
			"type":  notificationType,
			"user":  recipient.String(),
			"error": err.Error(),
		})
	}
}

// NewEvent builds the bus event for a notification request.
func NewEvent(notificationType string, recipient, actor uuid.UUID, target Target, at time.Time) pkgEvents.BaseEvent {
	data := map[string]interface{}{
		"type":        notificationType,
		"user_id":     recipient.String(),
		"occurred_at": at,
	}
	if actor != uuid.Nil {
		data["actor_id"] = actor.String()
	}
	if target.EntityType != "" && target.EntityID != uuid.Nil {
		data["entity_type"] = target.EntityType
		data["entity_id"] = target.EntityID.String()
	}

	return pkgEvents.BaseEvent{
		Type:       TypePrefix + notificationType,
		Data:       data,
		OccurredAt: at,
	}
}
