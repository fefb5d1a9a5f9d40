package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice-notify/internal/changefeed"
	"backoffice-notify/internal/model"
	"backoffice-notify/internal/pkg/logger"
	"backoffice-notify/internal/repository"
	"backoffice-notify/pkg/events"
	pktNats "backoffice-notify/pkg/nats"
	"backoffice-notify/pkg/notifyevents"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrForbidden      = errors.New("notification belongs to another user")
	ErrInvalidRequest = errors.New("invalid notification request")
)

// ChangePublisher pushes row changes to the realtime layer.
type ChangePublisher interface {
	Publish(ctx context.Context, op changefeed.Op, records ...model.Notification) error
}

// EventSubscriber is the part of the NATS subscriber the service needs.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type NotifyRequest struct {
	UserID     uuid.UUID
	ActorID    *uuid.UUID
	Type       string
	EntityType string
	EntityID   *uuid.UUID
	Metadata   map[string]interface{}
}

type INotificationService interface {
	ListUnread(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) (*model.Notification, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Notify(ctx context.Context, req NotifyRequest) (*model.Notification, error)
}

type NotificationService struct {
	repo       repository.NotificationRepository
	changes    ChangePublisher
	subscriber EventSubscriber
	logger     logger.ILogger

	defaultLimit int
	maxLimit     int
}

type NotificationServiceOptions struct {
	DefaultLimit int
	MaxLimit     int
}

func NewNotificationService(
	repo repository.NotificationRepository,
	changes ChangePublisher,
	sub EventSubscriber,
	log logger.ILogger,
	opts NotificationServiceOptions,
) *NotificationService {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &NotificationService{
		repo:         repo,
		changes:      changes,
		subscriber:   sub,
		logger:       log,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
	}
}

// Start begins listening to notification requests on the event bus.
func (s *NotificationService) Start(ctx context.Context, subject, durable string) error {
	if s.subscriber == nil {
		return errors.New("notification service has no event subscriber")
	}
	if err := s.subscriber.Subscribe(ctx, subject, durable, s.handleEvent); err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("NotificationService", "Notification service started", map[string]interface{}{"subject": subject})
	return nil
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	req, err := requestFromEvent(event)
	if err != nil {
		// Malformed requests are dropped, a retry would fail the same way.
		s.logger.Warn("NotificationService", "Discarding malformed notification event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
		return nil
	}

	if req.ActorID != nil && *req.ActorID == req.UserID {
		s.logger.Debug("NotificationService", "Skipping self notification", map[string]interface{}{"user_id": req.UserID, "type": req.Type})
		return nil
	}

	_, err = s.Notify(ctx, req)
	return err
}

func requestFromEvent(event events.Event) (NotifyRequest, error) {
	var req NotifyRequest

	req.Type = events.PayloadString(event, "type")
	if req.Type == "" {
		req.Type = strings.TrimPrefix(event.EventType(), notifyevents.TypePrefix)
	}
	if req.Type == "" {
		return req, fmt.Errorf("%w: missing type", ErrInvalidRequest)
	}

	uid, err := uuid.Parse(events.PayloadString(event, "user_id"))
	if err != nil {
		return req, fmt.Errorf("%w: user_id: %v", ErrInvalidRequest, err)
	}
	req.UserID = uid

	if actor, err := uuid.Parse(events.PayloadString(event, "actor_id")); err == nil {
		req.ActorID = &actor
	}

	entityType := events.PayloadString(event, "entity_type")
	if eid, err := uuid.Parse(events.PayloadString(event, "entity_id")); err == nil && entityType != "" {
		req.EntityType = entityType
		req.EntityID = &eid
	}

	req.Metadata = make(map[string]interface{})
	for k, v := range event.Payload() {
		switch k {
		case "type", "user_id", "actor_id", "entity_type", "entity_id":
		default:
			req.Metadata[k] = v
		}
	}
	return req, nil
}

// Notify persists one notification row and announces it as an INSERT.
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) (*model.Notification, error) {
	if req.UserID == uuid.Nil || req.Type == "" {
		return nil, ErrInvalidRequest
	}

	notif := model.Notification{
		ID:                uuid.New(),
		UserID:            req.UserID,
		ActorID:           req.ActorID,
		Type:              req.Type,
		RelatedEntityType: req.EntityType,
		RelatedEntityID:   req.EntityID,
		CreatedAt:         time.Now(),
	}
	if len(req.Metadata) > 0 {
		metaJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		notif.Metadata = datatypes.JSON(metaJSON)
	}

	if err := s.repo.Create(ctx, &notif); err != nil {
		s.logger.Error("NotificationService", "Error saving notification", map[string]interface{}{"user_id": req.UserID, "error": err.Error()})
		return nil, err
	}

	s.announce(ctx, changefeed.OpInsert, notif)
	return &notif, nil
}

func (s *NotificationService) ListUnread(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	return s.repo.ListUnread(ctx, userID, s.clampLimit(limit))
}

func (s *NotificationService) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	return s.repo.ListRecent(ctx, userID, s.clampLimit(limit))
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAsRead is idempotent: an already read row is returned unchanged and
// no UPDATE is announced.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) (*model.Notification, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, ErrForbidden
	}
	if existing.IsRead() {
		return existing, nil
	}

	updated, err := s.repo.MarkAsRead(ctx, id)
	if err != nil {
		return nil, err
	}

	s.announce(ctx, changefeed.OpUpdate, *updated)
	return updated, nil
}

// MarkAllAsRead is a single bulk update; it returns how many rows changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	updated, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.announce(ctx, changefeed.OpUpdate, updated...)
	return int64(len(updated)), nil
}

// announce never fails the caller: the row is already committed and clients
// re-synchronize from the snapshot on their next init.
func (s *NotificationService) announce(ctx context.Context, op changefeed.Op, records ...model.Notification) {
	if s.changes == nil || len(records) == 0 {
		return
	}
	if err := s.changes.Publish(ctx, op, records...); err != nil {
		s.logger.Error("NotificationService", "Failed to publish change", map[string]interface{}{
			"op":    string(op),
			"count": len(records),
			"error": err.Error(),
		})
	}
}

func (s *NotificationService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
