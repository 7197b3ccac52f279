package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// AddFlow submits a job tree. Leaves enter their queues immediately; a
// parent waits in waiting-children until every direct child has completed,
// then moves to the wait list. Returns the root job's reference.
//
// Removal of the root via Queue.Remove cascades to all descendants.
func (c *Client) AddFlow(ctx context.Context, spec model.FlowJobSpec) (JobRef, error) {
	return c.addFlowNode(ctx, spec, JobRef{}, 0)
}

func (c *Client) addFlowNode(ctx context.Context, spec model.FlowJobSpec, parent JobRef, depth int) (JobRef, error) {
	if depth > model.MaxFlowDepth {
		return JobRef{}, fmt.Errorf("flow exceeds maximum depth %d", model.MaxFlowDepth)
	}

	queue := c.Queue(spec.QueueName)
	id, err := queue.nextID(ctx)
	if err != nil {
		return JobRef{}, err
	}
	self := JobRef{Queue: spec.QueueName, ID: id}

	// Children first: their hashes carry the parent pointer, and the parent
	// needs their refs and count before it is persisted.
	children := make([]JobRef, 0, len(spec.Children))
	for i := range spec.Children {
		child, cerr := c.addFlowNode(ctx, spec.Children[i], self, depth+1)
		if cerr != nil {
			return JobRef{}, cerr
		}
		children = append(children, child)
	}

	opts, err := flowOpts(spec.Opts)
	if err != nil {
		return JobRef{}, fmt.Errorf("job %q opts: %w", spec.Name, err)
	}

	job := &Job{
		ID:          id,
		Name:        spec.Name,
		QueueName:   spec.QueueName,
		Data:        spec.Data,
		Opts:        *opts,
		Timestamp:   nowMs(time.Now()),
		ParentQueue: parent.Queue,
		ParentID:    parent.ID,
		Children:    children,
	}
	if len(children) > 0 {
		job.State = model.JobStateWaitingChildren
	} else {
		job.State = model.JobStateWaiting
	}

	fields, err := job.toHash()
	if err != nil {
		return JobRef{}, fmt.Errorf("serialize flow job %q: %w", spec.Name, err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, queue.keys.job(id), fields)
	if len(children) > 0 {
		pipe.Set(ctx, queue.keys.deps(id), len(children), 0)
		pipe.ZAdd(ctx, queue.keys.waitingChildren(), redis.Z{Score: float64(job.Timestamp), Member: id})
	} else {
		pipe.LPush(ctx, queue.keys.wait(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return JobRef{}, fmt.Errorf("enqueue flow job %q: %w", spec.Name, err)
	}
	return self, nil
}

// flowOpts decodes a spec's loose opts map through the typed options, falling
// back to defaults when the map does not survive a JSON round-trip.
func flowOpts(raw map[string]any) (*model.JobOpts, error) {
	if len(raw) == 0 {
		return model.DefaultJobOpts(), nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var opts model.JobOpts
	if err := json.Unmarshal(buf, &opts); err != nil {
		return nil, err
	}
	if opts.RemoveOnComplete == nil {
		opts.RemoveOnComplete = &model.RetentionOpts{Count: 3}
	}
	if opts.RemoveOnFail == nil {
		opts.RemoveOnFail = &model.RetentionOpts{Count: 5}
	}
	return &opts, nil
}
