package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ticket is the minimal projection of the ticket module needed for
// notification copy.
type Ticket struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title     string         `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Ticket) TableName() string {
	return "tickets"
}

type MeetingMinute struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title     string         `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (MeetingMinute) TableName() string {
	return "meeting_minutes"
}

// MeetingMinuteComment belongs to exactly one meeting minute.
type MeetingMinuteComment struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MeetingMinuteID uuid.UUID      `gorm:"type:uuid;not null;index"`
	AuthorID        uuid.UUID      `gorm:"type:uuid;not null"`
	Body            string         `gorm:"type:text"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (MeetingMinuteComment) TableName() string {
	return "meeting_minute_comments"
}
