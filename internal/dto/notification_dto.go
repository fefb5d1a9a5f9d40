package dto

import "github.com/google/uuid"

type ListNotificationsQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=200"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkAllAsReadResponse struct {
	Count int64 `json:"count"`
}

type EntityTitleResponse struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type CommentParentResponse struct {
	CommentID       uuid.UUID `json:"comment_id"`
	MeetingMinuteID uuid.UUID `json:"meeting_minute_id"`
}
