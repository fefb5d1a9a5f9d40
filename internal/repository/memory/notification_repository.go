// Package memory holds process-local repositories used when no database is
// configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"backoffice-notify/internal/model"
	"backoffice-notify/internal/repository"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type NotificationRepository struct {
	// mu serializes read-modify-write sequences on top of the cache.
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

func NewNotificationRepository() *NotificationRepository {
	// Rows never expire; they live as long as the process.
	return &NotificationRepository{
		cache: cache.New(cache.NoExpiration, 0),
		now:   time.Now,
	}
}

func (r *NotificationRepository) Create(_ context.Context, notification *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = r.now()
	}
	stored := *notification
	r.cache.Set(stored.ID.String(), &stored, cache.NoExpiration)
	return nil
}

func (r *NotificationRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(id.String()); found {
		n := *x.(*model.Notification)
		return &n, nil
	}
	return nil, repository.ErrNotificationNotFound
}

func (r *NotificationRepository) ListUnread(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	return r.list(func(n *model.Notification) bool {
		return n.UserID == userID && n.ReadAt == nil
	}, limit), nil
}

func (r *NotificationRepository) ListRecent(_ context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	return r.list(func(n *model.Notification) bool {
		return n.UserID == userID
	}, limit), nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, item := range r.cache.Items() {
		n := item.Object.(*model.Notification)
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkAsRead(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(id.String())
	if !found {
		return nil, repository.ErrNotificationNotFound
	}
	n := x.(*model.Notification)
	if n.ReadAt == nil {
		now := r.now()
		n.ReadAt = &now
	}
	out := *n
	return &out, nil
}

func (r *NotificationRepository) MarkAllAsRead(_ context.Context, userID uuid.UUID) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var updated []model.Notification
	for _, item := range r.cache.Items() {
		n := item.Object.(*model.Notification)
		if n.UserID != userID || n.ReadAt != nil {
			continue
		}
		readAt := now
		n.ReadAt = &readAt
		updated = append(updated, *n)
	}
	return updated, nil
}

// list returns copies ordered by created_at descending, then id.
func (r *NotificationRepository) list(keep func(*model.Notification) bool, limit int) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Notification, 0)
	for _, item := range r.cache.Items() {
		n := item.Object.(*model.Notification)
		if keep(n) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
