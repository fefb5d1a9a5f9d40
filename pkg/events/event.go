package events

import (
	"strings"
	"time"
)

// SubjectPrefix is prepended to every event type on the bus.
const SubjectPrefix = "events."

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "notification.assigned").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Subject returns the bus subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + strings.TrimPrefix(eventType, SubjectPrefix)
}

// TypeFromSubject strips the bus prefix from a received subject.
func TypeFromSubject(subject string) string {
	return strings.TrimPrefix(subject, SubjectPrefix)
}

// PayloadString reads a string field from an event payload.
func PayloadString(e Event, key string) string {
	if e.Payload() == nil {
		return ""
	}
	switch v := e.Payload()[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return s.String()
		}
		return ""
	}
}
