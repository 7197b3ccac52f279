package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// EventDemuxOptions groups dependencies for EventDemux.
type EventDemuxOptions struct {
	Registry *broker.Registry
	Emitter  Emitter
	Logger   *slog.Logger
}

// EventDemuxConfig names the queues the demultiplexer bridges.
type EventDemuxConfig struct {
	// SourceQueue is the work queue whose events are fanned out.
	SourceQueue string
	// WebhookQueue receives one delivery job per event.
	WebhookQueue string
}

// EventDemux subscribes to a queue's events and fans each one out to the
// push rooms of the job and its owner, and onto the webhook delivery queue.
// Per-job ordering follows broker emission order; events for jobs that no
// longer exist are logged and dropped.
type EventDemux struct {
	registry *broker.Registry
	emitter  Emitter
	cfg      EventDemuxConfig
	logger   *slog.Logger
}

// NewEventDemux creates a new EventDemux.
func NewEventDemux(opts EventDemuxOptions, cfg EventDemuxConfig) (*EventDemux, error) {
	if opts.Registry == nil {
		return nil, errors.New("queue registry is required")
	}
	if cfg.SourceQueue == "" || cfg.WebhookQueue == "" {
		return nil, errors.New("source and webhook queue names are required")
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventDemux{
		registry: opts.Registry,
		emitter:  emitter,
		cfg:      cfg,
		logger:   logger.With("component", "event_demux", "queue", cfg.SourceQueue),
	}, nil
}

// Run consumes queue events until the context is canceled.
func (d *EventDemux) Run(ctx context.Context) error {
	source, err := d.registry.Queue(d.cfg.SourceQueue)
	if err != nil {
		return err
	}

	events, err := source.Events(d.logger).Listen(ctx)
	if err != nil {
		return fmt.Errorf("subscribe queue events: %w", err)
	}
	d.logger.Info("event demultiplexer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			d.handle(ctx, source, ev)
		}
	}
}

// handle fans one event out. The event only carries the job id; the job
// record supplies the name and owner.
func (d *EventDemux) handle(ctx context.Context, source *broker.Queue, ev broker.Event) {
	job, err := source.Job(ctx, ev.JobID)
	if err != nil {
		if errors.Is(err, broker.ErrJobNotFound) {
			d.logger.Debug("dropping event for removed job", "job_id", ev.JobID, "event", ev.Type)
			return
		}
		d.logger.Warn("load job for event failed", "job_id", ev.JobID, "event", ev.Type, "error", err)
		return
	}

	owner, ok := job.UserID()
	if !ok {
		d.logger.Warn("dropping event for ownerless job", "job_id", ev.JobID, "event", ev.Type)
		return
	}

	payload := map[string]any{
		"jobId":   ev.JobID,
		"jobName": job.Name,
	}
	var eventType model.WebhookEventType
	switch ev.Type {
	case broker.EventProgress:
		payload["progress"] = ev.Payload
		eventType = model.WebhookEventProgress
	case broker.EventCompleted:
		payload["result"] = ev.ReturnValue
		eventType = model.WebhookEventCompleted
	case broker.EventFailed:
		payload["error"] = ev.FailedReason
		eventType = model.WebhookEventFailed
	default:
		d.logger.Warn("dropping unknown queue event", "job_id", ev.JobID, "event", ev.Type)
		return
	}

	event := "job:" + string(ev.Type)
	d.emitter.Emit(jobRoom(ev.JobID), event, payload)
	d.emitter.Emit(jobRoom(ev.JobID), fmt.Sprintf("job:%s:%s", ev.JobID, ev.Type), payload)
	d.emitter.Emit(userRoom(owner), event, payload)

	if err := d.enqueueDelivery(ctx, job, owner, eventType, payload); err != nil {
		d.logger.Warn("enqueue webhook delivery failed", "job_id", ev.JobID, "event", ev.Type, "error", err)
	}
}

// enqueueDelivery hands the event to the webhook queue. Delivery is decoupled
// so slow endpoints cannot stall this loop.
func (d *EventDemux) enqueueDelivery(ctx context.Context, job *broker.Job, owner uint64, eventType model.WebhookEventType, payload map[string]any) error {
	webhookQueue, err := d.registry.Queue(d.cfg.WebhookQueue)
	if err != nil {
		return err
	}

	data := map[string]any{
		"id":        job.ID,
		"jobname":   job.Name,
		"userId":    owner,
		"eventType": string(eventType),
	}
	for k, v := range payload {
		if k == "jobId" || k == "jobName" {
			continue
		}
		data[k] = v
	}

	_, err = webhookQueue.Add(ctx, "webhook-delivery", data, nil)
	return err
}
