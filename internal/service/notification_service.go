package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/events"
)

// EventSink receives committed engine events, e.g. the websocket hub or the Redis relay.
type EventSink interface {
	Publish(ctx context.Context, event events.Event) error
}

// NotificationService logs engine events and forwards them to the realtime sinks.
type NotificationService struct {
	logger *zap.Logger
	sinks  []EventSink
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, sinks ...EventSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger, sinks: sinks}
}

// Handle fans one event out to every sink and returns the first sink error.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	if event.Type == events.EventDispatchFailing {
		n.logger.Warn("scheduled dispatch keeps failing",
			zap.String("item_id", event.ItemID),
			zap.Any("payload", event.Payload))
	}
	n.logger.Debug(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("item_id", event.ItemID),
		zap.String("actor_type", string(event.Actor.Type)))

	var firstErr error
	for _, sink := range n.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
