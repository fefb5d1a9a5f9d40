package main

import (
	"context"
	"fmt"

	"backoffice-notify/internal/model"
	"backoffice-notify/pkg/notifyevents"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedTargets are the entities sample notifications point at.
type SeedTargets struct {
	Ticket        notifyevents.Target
	MeetingMinute notifyevents.Target
	Comment       notifyevents.Target
}

// SeedEntities creates one ticket, one meeting minute and a comment on it.
func SeedEntities(ctx context.Context, db *gorm.DB, author uuid.UUID) (SeedTargets, error) {
	ticket := model.Ticket{ID: uuid.New(), Title: "Replace the lobby access card reader"}
	minute := model.MeetingMinute{ID: uuid.New(), Title: "Condominium board meeting - March"}
	comment := model.MeetingMinuteComment{
		ID:              uuid.New(),
		MeetingMinuteID: minute.ID,
		AuthorID:        author,
		Body:            "Can you take the minutes for the next session?",
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ticket).Error; err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		if err := tx.Create(&minute).Error; err != nil {
			return fmt.Errorf("create meeting minute: %w", err)
		}
		if err := tx.Create(&comment).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return SeedTargets{}, err
	}

	return SeedTargets{
		Ticket:        notifyevents.Target{EntityType: model.EntityTypeTicket, EntityID: ticket.ID},
		MeetingMinute: notifyevents.Target{EntityType: model.EntityTypeMeetingMinute, EntityID: minute.ID},
		Comment:       notifyevents.Target{EntityType: model.EntityTypeComment, EntityID: comment.ID},
	}, nil
}

// PublishSampleNotifications emits burst events, cycling through the
// notification kinds the CRUD modules produce. A burst larger than one shows
// up as a single summary toast. Publish failures are logged by the publisher.
func PublishSampleNotifications(ctx context.Context, p notifyevents.Publisher, recipient, actor uuid.UUID, targets SeedTargets, burst int) int {
	emitters := []func(){
		func() { p.PublishAssigned(ctx, recipient, actor, targets.Ticket) },
		func() { p.PublishResponsible(ctx, recipient, actor, targets.Ticket) },
		func() { p.PublishMentioned(ctx, recipient, actor, targets.Comment) },
		func() { p.PublishSecretary(ctx, recipient, actor, targets.MeetingMinute) },
	}
	if burst <= 0 {
		burst = 1
	}

	for i := 0; i < burst; i++ {
		emitters[i%len(emitters)]()
	}
	return burst
}
