// Package changefeed carries row-level changes of the notifications table from
// the service layer to the realtime delivery layer.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice-notify/internal/model"
	"backoffice-notify/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Topic is the in-process topic for notification row changes.
const Topic = "notification_changes"

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Change is also the wire frame pushed to websocket clients.
type Change struct {
	Op     Op                 `json:"event"`
	Record model.Notification `json:"record"`
}

// Sink delivers a change to every connection of one user.
type Sink interface {
	Deliver(userID uuid.UUID, change Change)
}

type Publisher struct {
	pub    message.Publisher
	logger logger.ILogger
}

func NewPublisher(pub message.Publisher, log logger.ILogger) *Publisher {
	return &Publisher{pub: pub, logger: log}
}

// Publish emits one message per record.
func (p *Publisher) Publish(ctx context.Context, op Op, records ...model.Notification) error {
	if len(records) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(Change{Op: op, Record: rec})
		if err != nil {
			return fmt.Errorf("failed to marshal %s change for %s: %w", op, rec.ID, err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}

	if err := p.pub.Publish(Topic, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d %s change(s): %w", len(msgs), op, err)
	}
	return nil
}

// Dispatcher forwards changes from the topic to the sink, scoped by the
// record's user_id.
type Dispatcher struct {
	sub    message.Subscriber
	sink   Sink
	logger logger.ILogger
}

func NewDispatcher(sub message.Subscriber, sink Sink, log logger.ILogger) *Dispatcher {
	return &Dispatcher{sub: sub, sink: sink, logger: log}
}

// Run subscribes and returns; delivery happens on a background goroutine
// until ctx is cancelled or the subscriber is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	messages, err := d.sub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}

	go func() {
		for msg := range messages {
			d.dispatch(msg)
		}
		d.logger.Info("ChangeFeed", "Dispatcher stopped", nil)
	}()

	return nil
}

func (d *Dispatcher) dispatch(msg *message.Message) {
	// Malformed payloads are acked; redelivery would fail the same way.
	defer msg.Ack()

	var change Change
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		d.logger.Error("ChangeFeed", "Failed to decode change", map[string]interface{}{"error": err.Error(), "uuid": msg.UUID})
		return
	}
	if change.Record.UserID == uuid.Nil {
		d.logger.Warn("ChangeFeed", "Change without user_id dropped", map[string]interface{}{"id": change.Record.ID})
		return
	}

	d.sink.Deliver(change.Record.UserID, change)
}
