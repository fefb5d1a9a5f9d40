package service

import (
	"context"

	"backoffice-notify/internal/repository"

	"github.com/google/uuid"
)

// IEntityService exposes the title lookups used to enrich notification toasts.
type IEntityService interface {
	TicketTitle(ctx context.Context, id uuid.UUID) (string, error)
	MeetingMinuteTitle(ctx context.Context, id uuid.UUID) (string, error)
	MeetingMinuteIDForComment(ctx context.Context, commentID uuid.UUID) (uuid.UUID, error)
}

type entityService struct {
	repo repository.EntityRepository
}

func NewEntityService(repo repository.EntityRepository) IEntityService {
	return &entityService{repo: repo}
}

func (s *entityService) TicketTitle(ctx context.Context, id uuid.UUID) (string, error) {
	return s.repo.TicketTitle(ctx, id)
}

func (s *entityService) MeetingMinuteTitle(ctx context.Context, id uuid.UUID) (string, error) {
	return s.repo.MeetingMinuteTitle(ctx, id)
}

func (s *entityService) MeetingMinuteIDForComment(ctx context.Context, commentID uuid.UUID) (uuid.UUID, error) {
	return s.repo.MeetingMinuteIDForComment(ctx, commentID)
}
