package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Notification types emitted by the back-office modules. Unknown codes are
// stored as-is; readers must fall back to a generic label.
const (
	NotificationTypeMentioned   = "mentioned"
	NotificationTypeAssigned    = "assigned"
	NotificationTypeSecretary   = "secretary"
	NotificationTypeResponsible = "responsible"
)

// Entity kinds a notification may point at.
const (
	EntityTypeTicket        = "ticket"
	EntityTypeMeetingMinute = "meeting_minute"
	EntityTypeComment       = "comment"
)

// Notification stores one notification row per recipient.
type Notification struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1;index:idx_notifications_user_unread,priority:1" json:"user_id"`
	ActorID           *uuid.UUID     `gorm:"type:uuid" json:"actor_id,omitempty"`
	Type              string         `gorm:"type:varchar(50);not null;index:idx_notifications_type" json:"type"`
	RelatedEntityType string         `gorm:"type:varchar(50);index:idx_notifications_entity,priority:1" json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID     `gorm:"type:uuid;index:idx_notifications_entity,priority:2" json:"related_entity_id,omitempty"`
	Metadata          datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReadAt            *time.Time     `gorm:"index:idx_notifications_user_unread,priority:2" json:"read_at"`
	CreatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// IsRead reports whether read_at has been set.
func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}
