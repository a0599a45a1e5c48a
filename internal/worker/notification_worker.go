package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/service"
)

const defaultNotificationBuffer = 256

// NotificationWorker moves committed events off the request path and hands them to the
// notification service on a single goroutine, so per-item order is preserved.
type NotificationWorker struct {
	notifier *service.NotificationService
	logger   *zap.Logger
	queue    chan events.Event

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

// NewNotificationWorker subscribes the worker to every event of dispatcher.
func NewNotificationWorker(dispatcher events.Dispatcher, notifier *service.NotificationService, logger *zap.Logger, buffer int) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultNotificationBuffer
	}
	w := &NotificationWorker{
		notifier: notifier,
		logger:   logger,
		queue:    make(chan events.Event, buffer),
		done:     make(chan struct{}),
	}
	if dispatcher != nil {
		dispatcher.SubscribeAll(w.enqueue)
	}
	return w
}

// enqueue drops the event when the buffer is full; realtime delivery is best effort.
func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full, event dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("item_id", event.ItemID))
	}
	return nil
}

// Start launches the delivery goroutine. Calling it twice is a no-op.
func (w *NotificationWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
}

func (w *NotificationWorker) run() {
	defer close(w.done)
	for event := range w.queue {
		if err := w.notifier.Handle(context.Background(), event); err != nil {
			w.logger.Warn("notification sink failed",
				zap.String("event_type", string(event.Type)),
				zap.String("item_id", event.ItemID),
				zap.Error(err))
		}
	}
}

// Stop closes the queue and waits until buffered events are delivered or ctx ends.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	close(w.queue)
	w.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
