package memory

import (
	"context"
	"sync"

	"backoffice-notify/internal/model"
	"backoffice-notify/internal/repository"

	"github.com/google/uuid"
)

type EntityRepository struct {
	mu       sync.RWMutex
	tickets  map[uuid.UUID]string
	minutes  map[uuid.UUID]string
	comments map[uuid.UUID]uuid.UUID
}

func NewEntityRepository() *EntityRepository {
	return &EntityRepository{
		tickets:  make(map[uuid.UUID]string),
		minutes:  make(map[uuid.UUID]string),
		comments: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *EntityRepository) PutTicket(t model.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t.Title
}

func (r *EntityRepository) PutMeetingMinute(m model.MeetingMinute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minutes[m.ID] = m.Title
}

func (r *EntityRepository) PutComment(c model.MeetingMinuteComment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[c.ID] = c.MeetingMinuteID
}

func (r *EntityRepository) TicketTitle(_ context.Context, id uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if title, ok := r.tickets[id]; ok {
		return title, nil
	}
	return "", repository.ErrEntityNotFound
}

func (r *EntityRepository) MeetingMinuteTitle(_ context.Context, id uuid.UUID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if title, ok := r.minutes[id]; ok {
		return title, nil
	}
	return "", repository.ErrEntityNotFound
}

func (r *EntityRepository) MeetingMinuteIDForComment(_ context.Context, commentID uuid.UUID) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if minuteID, ok := r.comments[commentID]; ok {
		return minuteID, nil
	}
	return uuid.Nil, repository.ErrEntityNotFound
}
