package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

const (
	// popTimeout bounds each blocking pop so the loop can promote delayed
	// jobs and observe context cancellation.
	popTimeout = 5 * time.Second

	// retryBackoffBase seeds the exponential retry backoff.
	retryBackoffBase = time.Second
)

// Handler processes one job and returns its result value.
type Handler func(ctx context.Context, job *Job) (any, error)

// Worker drains a queue with a blocking-pop loop. One worker processes jobs
// serially; run several for parallelism.
type Worker struct {
	queue   *Queue
	handler Handler
	logger  *slog.Logger
}

// WorkerOptions groups dependencies for a Worker.
type WorkerOptions struct {
	Queue   *Queue
	Handler Handler
	Logger  *slog.Logger
}

// NewWorker constructs a worker for a queue.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:   opts.Queue,
		handler: opts.Handler,
		logger:  logger.With("component", "worker", "queue", opts.Queue.Name()),
	}, nil
}

// Run processes jobs until the context is canceled. Transient broker errors
// are logged and retried; a malformed job fails that job, never the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := w.queue.promoteDelayed(ctx, time.Now()); err != nil && !isCtxErr(err) {
			w.logger.Warn("promote delayed jobs failed", "error", err)
		}

		id, err := w.queue.client.rdb.BRPopLPush(ctx, w.queue.keys.wait(), w.queue.keys.active(), popTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // pop timed out, loop around
			}
			if isCtxErr(err) {
				return ctx.Err()
			}
			w.logger.Warn("blocking pop failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		w.process(ctx, id)
	}
}

// process runs one job through the handler and records the outcome.
func (w *Worker) process(ctx context.Context, id string) {
	job, err := w.queue.Job(ctx, id)
	if err != nil {
		w.logger.Warn("active job vanished", "job_id", id, "error", err)
		w.queue.client.rdb.LRem(ctx, w.queue.keys.active(), 0, id)
		return
	}

	started := nowMs(time.Now())
	job.ProcessedOn = started
	job.State = model.JobStateActive
	job.AttemptsMade++
	w.queue.client.rdb.HSet(ctx, w.queue.keys.job(id),
		"state", string(model.JobStateActive),
		"processedOn", started,
		"attemptsMade", job.AttemptsMade,
	)

	result, handlerErr := w.handler(ctx, job)
	if handlerErr != nil {
		w.fail(ctx, job, handlerErr)
		return
	}
	w.complete(ctx, job, result)
}

// complete records success, applies retention, publishes the event, and
// releases any parent waiting on this child.
func (w *Worker) complete(ctx context.Context, job *Job, result any) {
	finished := nowMs(time.Now())
	job.ReturnValue = result
	job.State = model.JobStateCompleted
	job.FinishedOn = finished

	fields, err := job.toHash()
	if err != nil {
		w.logger.Error("serialize completed job", "job_id", job.ID, "error", err)
		return
	}

	pipe := w.queue.client.rdb.TxPipeline()
	pipe.HSet(ctx, w.queue.keys.job(job.ID), fields)
	pipe.LRem(ctx, w.queue.keys.active(), 0, job.ID)
	pipe.ZAdd(ctx, w.queue.keys.completed(), redis.Z{Score: float64(finished), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("record completion", "job_id", job.ID, "error", err)
		return
	}

	if job.Opts.RemoveOnComplete != nil {
		if err := w.queue.trimFinished(ctx, w.queue.keys.completed(), job.Opts.RemoveOnComplete.Count); err != nil {
			w.logger.Warn("trim completed set", "error", err)
		}
	}

	if err := w.queue.publish(ctx, Event{Type: EventCompleted, JobID: job.ID, ReturnValue: result}); err != nil {
		w.logger.Warn("publish completed event", "job_id", job.ID, "error", err)
	}

	w.resolveParent(ctx, job)
}

// fail either reschedules the job with backoff or records terminal failure.
func (w *Worker) fail(ctx context.Context, job *Job, cause error) {
	if job.Opts.Attempts > job.AttemptsMade {
		backoff := retryBackoffBase << (job.AttemptsMade - 1)
		runAt := float64(nowMs(time.Now().Add(backoff)))
		pipe := w.queue.client.rdb.TxPipeline()
		pipe.HSet(ctx, w.queue.keys.job(job.ID),
			"state", string(model.JobStateDelayed),
			"failedReason", cause.Error(),
		)
		pipe.LRem(ctx, w.queue.keys.active(), 0, job.ID)
		pipe.ZAdd(ctx, w.queue.keys.delayed(), redis.Z{Score: runAt, Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			w.logger.Error("reschedule failed job", "job_id", job.ID, "error", err)
		}
		w.logger.Info("job retry scheduled",
			"job_id", job.ID,
			"attempt", job.AttemptsMade,
			"backoff", backoff,
			"error", cause,
		)
		return
	}

	finished := nowMs(time.Now())
	pipe := w.queue.client.rdb.TxPipeline()
	pipe.HSet(ctx, w.queue.keys.job(job.ID),
		"state", string(model.JobStateFailed),
		"failedReason", cause.Error(),
		"finishedOn", finished,
	)
	pipe.LRem(ctx, w.queue.keys.active(), 0, job.ID)
	pipe.ZAdd(ctx, w.queue.keys.failed(), redis.Z{Score: float64(finished), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("record failure", "job_id", job.ID, "error", err)
		return
	}

	if job.Opts.RemoveOnFail != nil {
		if err := w.queue.trimFinished(ctx, w.queue.keys.failed(), job.Opts.RemoveOnFail.Count); err != nil {
			w.logger.Warn("trim failed set", "error", err)
		}
	}

	if err := w.queue.publish(ctx, Event{Type: EventFailed, JobID: job.ID, FailedReason: cause.Error()}); err != nil {
		w.logger.Warn("publish failed event", "job_id", job.ID, "error", err)
	}
}

// resolveParent decrements the parent's outstanding-children counter and
// promotes the parent into the wait list once every child has finished.
func (w *Worker) resolveParent(ctx context.Context, job *Job) {
	if job.ParentID == "" {
		return
	}

	parent := w.queue.client.Queue(job.ParentQueue)
	remaining, err := w.queue.client.rdb.Decr(ctx, parent.keys.deps(job.ParentID)).Result()
	if err != nil {
		w.logger.Error("decrement parent deps", "parent_id", job.ParentID, "error", err)
		return
	}
	if remaining > 0 {
		return
	}

	pipe := w.queue.client.rdb.TxPipeline()
	pipe.Del(ctx, parent.keys.deps(job.ParentID))
	pipe.ZRem(ctx, parent.keys.waitingChildren(), job.ParentID)
	pipe.HSet(ctx, parent.keys.job(job.ParentID), "state", string(model.JobStateWaiting))
	pipe.LPush(ctx, parent.keys.wait(), job.ParentID)
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Error("promote parent", "parent_id", job.ParentID, "error", err)
	}
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
