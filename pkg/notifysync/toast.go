package notifysync

import (
	"fmt"
	"time"
)

const (
	detailToastDuration  = 5 * time.Second
	summaryToastDuration = 6 * time.Second

	genericTitle       = "New notification"
	genericDescription = "Open your notifications to see the details."
)

var typeTitles = map[string]string{
	TypeMentioned:   "You were mentioned",
	TypeAssigned:    "You were assigned",
	TypeSecretary:   "You were named secretary",
	TypeResponsible: "You were made responsible",
}

// TypeTitle returns the toast title for a notification type. Unknown types
// get a generic title.
func TypeTitle(notificationType string) string {
	if title, ok := typeTitles[notificationType]; ok {
		return title
	}
	return genericTitle
}

// DetailToast builds the toast for a single new notification.
func DetailToast(rec Record, ec EntityContext, resolved bool) Toast {
	description := genericDescription
	if resolved {
		description = fmt.Sprintf("%s: %s", ec.Label, ec.Title)
	}
	return Toast{
		Title:       TypeTitle(rec.Type),
		Description: description,
		Emphasis:    EmphasisInfo,
		Duration:    detailToastDuration,
	}
}

// SummaryToast replaces the individual toasts when several notifications
// arrive together.
func SummaryToast(count int) Toast {
	return Toast{
		Title:       "New notifications",
		Description: fmt.Sprintf("You have %d new notifications.", count),
		Emphasis:    EmphasisInfo,
		Duration:    summaryToastDuration,
	}
}
