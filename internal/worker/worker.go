package worker

import (
	"context"
	"fmt"
	"log"

	"bookstore-service/internal/broker"
	"bookstore-service/internal/models"
	"bookstore-service/internal/util"

	"go.uber.org/zap"
)

// EventLog records which event ids have been handled so redelivered
// kafka messages are processed at most once.
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// NotificationWorker consumes order and submission events and emits
// customer notifications for them. Notification delivery itself is a
// log line for now; the consume/guard/mark pipeline is the part that
// matters.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	events       EventLog
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, events EventLog) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		events:   events,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	eventHandler.OnSubmissionReviewed(w.handleSubmissionReviewed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return w.once(ctx, event.BaseEvent, func() {
		w.logger.Info("Order confirmation notification",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("user_id", event.UserID),
			zap.String("total", event.Total.String()))
	})
}

func (w *NotificationWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return w.once(ctx, event.BaseEvent, func() {
		w.logger.Info("Order cancellation notification",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("user_id", event.UserID))
	})
}

func (w *NotificationWorker) handleSubmissionReviewed(ctx context.Context, event *models.SubmissionReviewedEvent) error {
	return w.once(ctx, event.BaseEvent, func() {
		w.logger.Info("Submission review notification",
			zap.Int64("submission_id", event.SubmissionID),
			zap.Int64("user_id", event.UserID),
			zap.String("outcome", event.Outcome))
	})
}

func (w *NotificationWorker) once(ctx context.Context, base models.BaseEvent, notify func()) error {
	processed, err := w.events.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	notify()

	if err := w.events.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
