package implementation

import (
	"context"
	"errors"

	"backoffice-notify/internal/model"
	"backoffice-notify/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EntityRepositoryImpl struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) repository.EntityRepository {
	return &EntityRepositoryImpl{db: db}
}

func (r *EntityRepositoryImpl) TicketTitle(ctx context.Context, id uuid.UUID) (string, error) {
	var ticket model.Ticket
	if err := r.db.WithContext(ctx).Select("id", "title").Where("id = ?", id).First(&ticket).Error; err != nil {
		return "", notFound(err)
	}
	return ticket.Title, nil
}

func (r *EntityRepositoryImpl) MeetingMinuteTitle(ctx context.Context, id uuid.UUID) (string, error) {
	var minute model.MeetingMinute
	if err := r.db.WithContext(ctx).Select("id", "title").Where("id = ?", id).First(&minute).Error; err != nil {
		return "", notFound(err)
	}
	return minute.Title, nil
}

func (r *EntityRepositoryImpl) MeetingMinuteIDForComment(ctx context.Context, commentID uuid.UUID) (uuid.UUID, error) {
	var comment model.MeetingMinuteComment
	if err := r.db.WithContext(ctx).Select("id", "meeting_minute_id").Where("id = ?", commentID).First(&comment).Error; err != nil {
		return uuid.Nil, notFound(err)
	}
	return comment.MeetingMinuteID, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrEntityNotFound
	}
	return err
}
