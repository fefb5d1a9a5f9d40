package notifysync

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"
)

const (
	labelTicket        = "Ticket"
	labelMeetingMinute = "Meeting minute"
	labelComment       = "Comment on meeting minute"
)

// EntityContext is the short description of a notification's related entity.
type EntityContext struct {
	Label string
	Title string
}

// ContextResolver describes related entities for toast copy. Successful
// lookups are cached for the resolver's lifetime; failures are not, so the
// next occurrence retries.
type ContextResolver struct {
	lookup EntityLookup
	cache  *cache.Cache
	max    int

	mu    sync.Mutex
	order []string
}

// NewContextResolver keeps at most maxEntries results, evicting the oldest.
// maxEntries <= 0 means unbounded.
func NewContextResolver(lookup EntityLookup, maxEntries int) *ContextResolver {
	return &ContextResolver{
		lookup: lookup,
		cache:  cache.New(cache.NoExpiration, 0),
		max:    maxEntries,
	}
}

// Resolve returns false when no description is available. It never fails.
func (r *ContextResolver) Resolve(ctx context.Context, entityType, entityID string) (EntityContext, bool) {
	if r == nil || r.lookup == nil || entityType == "" || entityID == "" {
		return EntityContext{}, false
	}

	key := entityType + ":" + entityID
	if x, found := r.cache.Get(key); found {
		return x.(EntityContext), true
	}

	ec, ok := r.fetch(ctx, entityType, entityID)
	if !ok {
		return EntityContext{}, false
	}
	r.store(key, ec)
	return ec, true
}

func (r *ContextResolver) fetch(ctx context.Context, entityType, entityID string) (EntityContext, bool) {
	var (
		label string
		title string
		err   error
	)

	switch entityType {
	case EntityTicket:
		label = labelTicket
		title, err = r.lookup.TicketTitle(ctx, entityID)
	case EntityMeetingMinute:
		label = labelMeetingMinute
		title, err = r.lookup.MeetingMinuteTitle(ctx, entityID)
	case EntityComment:
		label = labelComment
		var minuteID string
		minuteID, err = r.lookup.MeetingMinuteIDForComment(ctx, entityID)
		if err == nil && minuteID != "" {
			title, err = r.lookup.MeetingMinuteTitle(ctx, minuteID)
		}
	default:
		return EntityContext{}, false
	}

	if err != nil || title == "" {
		return EntityContext{}, false
	}
	return EntityContext{Label: label, Title: title}, true
}

func (r *ContextResolver) store(key string, ec EntityContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.cache.Get(key); !found {
		r.order = append(r.order, key)
	}
	r.cache.Set(key, ec, cache.NoExpiration)

	for r.max > 0 && len(r.order) > r.max {
		r.cache.Delete(r.order[0])
		r.order = r.order[1:]
	}
}

// Len reports the number of cached descriptions.
func (r *ContextResolver) Len() int {
	return r.cache.ItemCount()
}

// Reset drops every cached description.
func (r *ContextResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Flush()
	r.order = nil
}
