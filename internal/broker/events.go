package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// EventType enumerates queue event kinds.
type EventType string

const (
	// EventProgress fires when a job reports progress.
	EventProgress EventType = "progress"
	// EventCompleted fires when a job finishes successfully.
	EventCompleted EventType = "completed"
	// EventFailed fires when a job exhausts its attempts.
	EventFailed EventType = "failed"
)

// Event is one queue event as published on the queue's pub/sub channel.
// Per-job ordering matches emission order; Redis pub/sub preserves
// per-channel publish order for a given subscriber.
type Event struct {
	Type         EventType `json:"event"`
	JobID        string    `json:"jobId"`
	Payload      any       `json:"payload,omitempty"`
	ReturnValue  any       `json:"returnvalue,omitempty"`
	FailedReason string    `json:"failedReason,omitempty"`
	Timestamp    int64     `json:"ts"`
}

// publish emits an event on the queue's event channel.
func (q *Queue) publish(ctx context.Context, ev Event) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = nowMs(time.Now())
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	if err := q.client.rdb.Publish(ctx, q.keys.events(), raw).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// QueueEvents exposes a queue's event channel as a Go channel.
type QueueEvents struct {
	queue  *Queue
	logger *slog.Logger
}

// Events returns an event subscription handle for the queue.
func (q *Queue) Events(logger *slog.Logger) *QueueEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueEvents{queue: q, logger: logger}
}

// Listen subscribes to the queue's events and delivers them until the context
// is canceled. Malformed payloads are logged and dropped; one bad message
// never stops the stream.
func (e *QueueEvents) Listen(ctx context.Context) (<-chan Event, error) {
	sub := e.queue.client.rdb.Subscribe(ctx, e.queue.keys.events())
	// Force the subscription to establish before we return, so callers never
	// miss events published after Listen succeeds.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s events: %w", e.queue.name, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					e.logger.Warn("dropping malformed queue event",
						"queue", e.queue.name,
						"error", err,
					)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
