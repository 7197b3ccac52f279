package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// ErrJobNotFound is returned when a job record does not exist.
var ErrJobNotFound = errors.New("job not found")

// Queue is a handle on one named queue. Handles are cheap, share the client
// connection, and are safe for concurrent use.
type Queue struct {
	client *Client
	name   string
	keys   keys
}

// Queue returns a handle for the named queue.
func (c *Client) Queue(name string) *Queue {
	return &Queue{client: c, name: name, keys: keysFor(name)}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// nextID allocates a broker job id.
func (q *Queue) nextID(ctx context.Context) (string, error) {
	id, err := q.client.rdb.Incr(ctx, q.keys.id()).Result()
	if err != nil {
		return "", fmt.Errorf("allocate job id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Add enqueues a job and returns its broker-assigned id.
func (q *Queue) Add(ctx context.Context, name string, data map[string]any, opts *model.JobOpts) (string, error) {
	if opts == nil {
		opts = model.DefaultJobOpts()
	}

	id, err := q.nextID(ctx)
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:        id,
		Name:      name,
		QueueName: q.name,
		Data:      data,
		Opts:      *opts,
		State:     model.JobStateWaiting,
		Timestamp: nowMs(time.Now()),
	}

	if opts.Delay > 0 {
		job.State = model.JobStateDelayed
	}

	fields, err := job.toHash()
	if err != nil {
		return "", fmt.Errorf("serialize job: %w", err)
	}

	pipe := q.client.rdb.TxPipeline()
	pipe.HSet(ctx, q.keys.job(id), fields)
	if opts.Delay > 0 {
		runAt := float64(nowMs(time.Now().Add(opts.Delay)))
		pipe.ZAdd(ctx, q.keys.delayed(), redis.Z{Score: runAt, Member: id})
	} else {
		pipe.LPush(ctx, q.keys.wait(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Job loads a job record. Returns ErrJobNotFound for unknown ids.
func (q *Queue) Job(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.rdb.HGetAll(ctx, q.keys.job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return jobFromHash(q.name, id, fields)
}

// stateContainer returns the Redis key holding ids for a state, and whether
// the container is a sorted set.
func (q *Queue) stateContainer(state model.JobState) (string, bool, error) {
	switch state {
	case model.JobStateWaiting:
		return q.keys.wait(), false, nil
	case model.JobStateActive:
		return q.keys.active(), false, nil
	case model.JobStatePaused:
		return q.keys.paused(), false, nil
	case model.JobStateCompleted:
		return q.keys.completed(), true, nil
	case model.JobStateFailed:
		return q.keys.failed(), true, nil
	case model.JobStateDelayed:
		return q.keys.delayed(), true, nil
	case model.JobStateWaitingChildren:
		return q.keys.waitingChildren(), true, nil
	default:
		return "", false, fmt.Errorf("state %q is not broker-enumerable", state)
	}
}

// idsByState lists job ids currently in a state, newest first for finished sets.
func (q *Queue) idsByState(ctx context.Context, state model.JobState) ([]string, error) {
	key, sorted, err := q.stateContainer(state)
	if err != nil {
		return nil, err
	}
	if sorted {
		return q.client.rdb.ZRevRange(ctx, key, 0, -1).Result()
	}
	return q.client.rdb.LRange(ctx, key, 0, -1).Result()
}

// JobsByState loads every job in any of the given states. Records that
// vanish between listing and loading are skipped.
func (q *Queue) JobsByState(ctx context.Context, states ...model.JobState) ([]*Job, error) {
	var jobs []*Job
	for _, state := range states {
		ids, err := q.idsByState(ctx, state)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			job, err := q.Job(ctx, id)
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Counts tallies jobs per broker-enumerable state.
func (q *Queue) Counts(ctx context.Context) (map[model.JobState]int64, error) {
	pipe := q.client.rdb.Pipeline()
	listCmds := map[model.JobState]*redis.IntCmd{
		model.JobStateWaiting: pipe.LLen(ctx, q.keys.wait()),
		model.JobStateActive:  pipe.LLen(ctx, q.keys.active()),
		model.JobStatePaused:  pipe.LLen(ctx, q.keys.paused()),
	}
	zsetCmds := map[model.JobState]*redis.IntCmd{
		model.JobStateCompleted:       pipe.ZCard(ctx, q.keys.completed()),
		model.JobStateFailed:          pipe.ZCard(ctx, q.keys.failed()),
		model.JobStateDelayed:         pipe.ZCard(ctx, q.keys.delayed()),
		model.JobStateWaitingChildren: pipe.ZCard(ctx, q.keys.waitingChildren()),
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[model.JobState]int64, 7)
	for state, cmd := range listCmds {
		counts[state] = cmd.Val()
	}
	for state, cmd := range zsetCmds {
		counts[state] = cmd.Val()
	}
	return counts, nil
}

// Remove deletes a job record and cascades to its flow children.
// Returns ErrJobNotFound when the job does not exist.
func (q *Queue) Remove(ctx context.Context, id string) error {
	job, err := q.Job(ctx, id)
	if err != nil {
		return err
	}

	// Children first so a crash mid-cascade leaves no orphans pointing at a
	// missing parent.
	for _, ref := range job.Children {
		child := q.client.Queue(ref.Queue)
		if cerr := child.Remove(ctx, ref.ID); cerr != nil && !errors.Is(cerr, ErrJobNotFound) {
			return fmt.Errorf("remove child %s/%s: %w", ref.Queue, ref.ID, cerr)
		}
	}

	pipe := q.client.rdb.TxPipeline()
	pipe.LRem(ctx, q.keys.wait(), 0, id)
	pipe.LRem(ctx, q.keys.active(), 0, id)
	pipe.LRem(ctx, q.keys.paused(), 0, id)
	pipe.ZRem(ctx, q.keys.completed(), id)
	pipe.ZRem(ctx, q.keys.failed(), id)
	pipe.ZRem(ctx, q.keys.delayed(), id)
	pipe.ZRem(ctx, q.keys.waitingChildren(), id)
	pipe.Del(ctx, q.keys.deps(id))
	pipe.Del(ctx, q.keys.job(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	return nil
}

// UpdateProgress stores job progress and publishes a progress event.
func (q *Queue) UpdateProgress(ctx context.Context, id string, progress any) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("serialize progress: %w", err)
	}
	if err := q.client.rdb.HSet(ctx, q.keys.job(id), "progress", string(raw)).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return q.publish(ctx, Event{Type: EventProgress, JobID: id, Payload: progress})
}

// promoteDelayed moves due delayed jobs into the wait list.
func (q *Queue) promoteDelayed(ctx context.Context, now time.Time) error {
	due, err := q.client.rdb.ZRangeByScore(ctx, q.keys.delayed(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(nowMs(now), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range due {
		pipe := q.client.rdb.TxPipeline()
		pipe.ZRem(ctx, q.keys.delayed(), id)
		pipe.HSet(ctx, q.keys.job(id), "state", string(model.JobStateWaiting))
		pipe.LPush(ctx, q.keys.wait(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// trimFinished enforces the job's retention policy on a finished set.
func (q *Queue) trimFinished(ctx context.Context, key string, keep int) error {
	if keep <= 0 {
		return nil
	}
	// Oldest entries beyond the retention window.
	stale, err := q.client.rdb.ZRange(ctx, key, 0, int64(-keep-1)).Result()
	if err != nil {
		return err
	}
	for _, id := range stale {
		pipe := q.client.rdb.TxPipeline()
		pipe.ZRem(ctx, key, id)
		pipe.Del(ctx, q.keys.job(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
