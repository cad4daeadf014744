package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliver is the asynq task type carrying one commit event.
const TaskTypeDeliver = "notify:deliver"

// NewDeliveryTask wraps an event as an asynq task payload.
func NewDeliveryTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeliver, payload, asynq.MaxRetry(5)), nil
}

// QueueNotifier enqueues events for the worker process instead of publishing
// inline. Keeps commit latency independent of Redis pub/sub round trips.
type QueueNotifier struct {
	client *asynq.Client
}

// NewQueueNotifier returns a notifier that enqueues delivery tasks.
func NewQueueNotifier(client *asynq.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

func (n *QueueNotifier) Notify(ctx context.Context, event Event) error {
	task, err := NewDeliveryTask(event)
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	return nil
}

// NewDeliveryHandler returns the worker-side asynq handler publishing queued
// events through the given notifier.
func NewDeliveryHandler(sink Notifier, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var event Event
		if err := json.Unmarshal(task.Payload(), &event); err != nil {
			return fmt.Errorf("notify: decode task payload: %w", err)
		}
		if err := sink.Notify(ctx, event); err != nil {
			logger.Error("deliver commit event",
				slog.String("event_id", event.ID.String()),
				slog.Int64("group_id", event.GroupID),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}
