// Package notifysync keeps a signed-in user's notification list in sync with
// the backend: it loads the unread snapshot, follows the live change channel,
// de-duplicates deliveries, decides which toasts to show and folds read
// confirmations back into local state.
package notifysync

import (
	"context"
	"time"
)

// Notification types with dedicated toast copy. Any other type is valid and
// gets the generic title.
const (
	TypeMentioned   = "mentioned"
	TypeAssigned    = "assigned"
	TypeSecretary   = "secretary"
	TypeResponsible = "responsible"
)

// Related entity kinds the context resolver knows how to describe.
const (
	EntityTicket        = "ticket"
	EntityMeetingMinute = "meeting_minute"
	EntityComment       = "comment"
)

// Record is the client's copy of one notification row.
type Record struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Type              string     `json:"type"`
	RelatedEntityType string     `json:"related_entity_type,omitempty"`
	RelatedEntityID   string     `json:"related_entity_id,omitempty"`
	ReadAt            *time.Time `json:"read_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (r Record) IsRead() bool {
	return r.ReadAt != nil
}

type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
)

// RowEvent is one row-level change delivered by a Channel.
type RowEvent struct {
	Kind   EventKind
	Record Record
}

// RowHandler receives channel events. It may be called from any goroutine.
type RowHandler func(RowEvent)

// Store is the backend holding the notification rows.
type Store interface {
	// ListUnread returns the user's unread rows, newest first.
	ListUnread(ctx context.Context, userID string, limit int) ([]Record, error)
	// MarkAsRead returns the server-confirmed row.
	MarkAsRead(ctx context.Context, id string) (Record, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
}

// Channel delivers INSERT and UPDATE events for one user's rows. Filtering
// by user happens on the server.
type Channel interface {
	Subscribe(ctx context.Context, userID string, handler RowHandler) (Subscription, error)
}

// Subscription is a live channel attachment. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// ClosingSubscription is implemented by subscriptions that can end on their
// own, e.g. when the transport disconnects.
type ClosingSubscription interface {
	Subscription
	Done() <-chan struct{}
	Err() error
}

// EntityLookup fetches the titles used to describe a notification. An empty
// string with a nil error means the entity does not exist.
type EntityLookup interface {
	TicketTitle(ctx context.Context, id string) (string, error)
	MeetingMinuteTitle(ctx context.Context, id string) (string, error)
	MeetingMinuteIDForComment(ctx context.Context, commentID string) (string, error)
}

type Emphasis string

const (
	EmphasisInfo    Emphasis = "info"
	EmphasisSuccess Emphasis = "success"
)

type Toast struct {
	Title       string
	Description string
	Emphasis    Emphasis
	Duration    time.Duration
}

// Presenter shows a toast. Present must not block.
type Presenter interface {
	Present(Toast)
}

type PresenterFunc func(Toast)

func (f PresenterFunc) Present(t Toast) { f(t) }

// Logger matches the service logger so the engine can share it.
type Logger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
}

type nopLogger struct{}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}

type Readiness int

const (
	Uninitialized Readiness = iota
	Loading
	Ready
)

func (r Readiness) String() string {
	switch r {
	case Loading:
		return "LOADING"
	case Ready:
		return "READY"
	default:
		return "UNINITIALIZED"
	}
}

// State is an immutable view of the engine published after every change.
type State struct {
	UserID    string
	Readiness Readiness
	// Notifications are ordered newest first.
	Notifications []Record
	UnreadCount   int
	Loading       bool
	// Live reports whether the change channel is currently attached.
	Live bool
	Err  error

	generation uint64
}

// Notification returns the cached record with the given id.
func (s State) Notification(id string) (Record, bool) {
	for _, rec := range s.Notifications {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}
