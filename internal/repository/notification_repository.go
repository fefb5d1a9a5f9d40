package repository

import (
	"context"
	"errors"

	"backoffice-notify/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrEntityNotFound       = errors.New("entity not found")
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// ListUnread and ListRecent are ordered by created_at descending.
	ListUnread(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)

	// MarkAsRead sets read_at once and returns the stored row. A row that is
	// already read keeps its original read_at.
	MarkAsRead(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// MarkAllAsRead returns the rows that changed.
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
}

// EntityRepository resolves the titles shown in notification copy.
type EntityRepository interface {
	TicketTitle(ctx context.Context, id uuid.UUID) (string, error)
	MeetingMinuteTitle(ctx context.Context, id uuid.UUID) (string, error)
	MeetingMinuteIDForComment(ctx context.Context, commentID uuid.UUID) (uuid.UUID, error)
}
