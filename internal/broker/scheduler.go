package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// cronParser accepts the standard five-field cron syntax plus descriptors
// like @hourly. Cron parsing is delegated entirely to robfig/cron.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// JobScheduler manages repeating job templates on one queue. Upserts are
// idempotent: the same key always refers to the same scheduler.
type JobScheduler struct {
	client *Client
	queue  *Queue
	keys   keys
}

// JobScheduler returns the scheduler handle for the named queue.
func (c *Client) JobScheduler(queueName string) *JobScheduler {
	return &JobScheduler{
		client: c,
		queue:  c.Queue(queueName),
		keys:   keysFor(queueName),
	}
}

// NextRun computes the first occurrence strictly after the given instant.
// The boolean is false when the schedule has no further occurrences.
func NextRun(repeat model.RepeatOpts, after time.Time) (time.Time, bool, error) {
	if repeat.StartDate != nil && after.Before(*repeat.StartDate) {
		after = repeat.StartDate.Add(-time.Millisecond)
	}

	var next time.Time
	switch {
	case repeat.Pattern != "":
		loc := time.Local
		if repeat.TZ != "" {
			var err error
			loc, err = time.LoadLocation(repeat.TZ)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("load timezone %q: %w", repeat.TZ, err)
			}
		}
		schedule, err := cronParser.Parse(repeat.Pattern)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse cron pattern %q: %w", repeat.Pattern, err)
		}
		next = schedule.Next(after.In(loc))
	case repeat.Every > 0:
		next = after.Add(repeat.Every)
	default:
		return time.Time{}, false, errors.New("repeat options carry neither pattern nor interval")
	}

	if next.IsZero() {
		return time.Time{}, false, nil
	}
	if repeat.EndDate != nil && next.After(*repeat.EndDate) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// Upsert creates or replaces a scheduler under the key. Replacing preserves
// the iteration count so limits keep counting across template changes.
func (s *JobScheduler) Upsert(
	ctx context.Context,
	key string,
	repeat model.RepeatOpts,
	jobName string,
	data map[string]any,
	opts map[string]any,
) error {
	repeat.Normalize()
	next, ok, err := NextRun(repeat, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("schedule has no future occurrences")
	}

	dataRaw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize template data: %w", err)
	}
	optsRaw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("serialize template opts: %w", err)
	}
	repeatRaw, err := json.Marshal(repeat)
	if err != nil {
		return fmt.Errorf("serialize repeat opts: %w", err)
	}

	iterations, err := s.client.rdb.HGet(ctx, s.keys.scheduler(key), "iterationCount").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load scheduler %s: %w", key, err)
	}
	if iterations == "" {
		iterations = "0"
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.HSet(ctx, s.keys.scheduler(key), map[string]any{
		"jobName":        jobName,
		"data":           string(dataRaw),
		"opts":           string(optsRaw),
		"repeat":         string(repeatRaw),
		"next":           next.UnixMilli(),
		"iterationCount": iterations,
	})
	pipe.SAdd(ctx, s.keys.schedulerIndex(), key)
	pipe.ZAdd(ctx, s.keys.schedulerDue(), redis.Z{Score: float64(next.UnixMilli()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert scheduler %s: %w", key, err)
	}
	return nil
}

// Get loads one scheduler. Returns nil when the key does not exist.
func (s *JobScheduler) Get(ctx context.Context, key string) (*model.Schedule, error) {
	fields, err := s.client.rdb.HGetAll(ctx, s.keys.scheduler(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("load scheduler %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return scheduleFromHash(s.queue.name, key, fields)
}

// List returns every scheduler on the queue.
func (s *JobScheduler) List(ctx context.Context) ([]model.Schedule, error) {
	ks, err := s.client.rdb.SMembers(ctx, s.keys.schedulerIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("list schedulers: %w", err)
	}

	schedules := make([]model.Schedule, 0, len(ks))
	for _, key := range ks {
		schedule, gerr := s.Get(ctx, key)
		if gerr != nil {
			return nil, gerr
		}
		if schedule == nil {
			continue // removed between listing and loading
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, nil
}

// Remove deletes a scheduler. Returns false when the key did not exist.
// Already-enqueued concrete jobs are not cancelled.
func (s *JobScheduler) Remove(ctx context.Context, key string) (bool, error) {
	removed, err := s.client.rdb.SRem(ctx, s.keys.schedulerIndex(), key).Result()
	if err != nil {
		return false, fmt.Errorf("remove scheduler %s: %w", key, err)
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.ZRem(ctx, s.keys.schedulerDue(), key)
	pipe.Del(ctx, s.keys.scheduler(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove scheduler %s: %w", key, err)
	}
	return removed > 0, nil
}

// Run polls for due schedulers and instantiates their jobs until the context
// is canceled. Safe to run in a single replica per queue.
func (s *JobScheduler) Run(ctx context.Context, tick time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_scheduler", "queue", s.queue.name)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.tickOnce(ctx, now, logger); err != nil && !isCtxErr(err) {
				logger.Warn("scheduler tick failed", "error", err)
			}
		}
	}
}

// tickOnce enqueues jobs for every due scheduler and advances their clocks.
func (s *JobScheduler) tickOnce(ctx context.Context, now time.Time, logger *slog.Logger) error {
	due, err := s.client.rdb.ZRangeByScore(ctx, s.keys.schedulerDue(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, key := range due {
		if err := s.fire(ctx, key, now); err != nil {
			logger.Warn("scheduler occurrence failed", "scheduler_key", key, "error", err)
		}
	}
	return nil
}

// fire instantiates one occurrence of a scheduler and reschedules or retires it.
func (s *JobScheduler) fire(ctx context.Context, key string, now time.Time) error {
	schedule, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if schedule == nil {
		// Removed since listing; drop the due entry.
		return s.client.rdb.ZRem(ctx, s.keys.schedulerDue(), key).Err()
	}

	var opts *model.JobOpts
	if len(schedule.Template.Opts) > 0 {
		opts, err = flowOpts(schedule.Template.Opts)
		if err != nil {
			return err
		}
	}
	if _, err := s.queue.Add(ctx, schedule.JobName, schedule.Template.Data, opts); err != nil {
		return err
	}

	iterations := schedule.IterationCount + 1
	if schedule.Repeat.Limit > 0 && iterations >= schedule.Repeat.Limit {
		_, err := s.Remove(ctx, key)
		return err
	}

	next, ok, err := NextRun(schedule.Repeat, now)
	if err != nil {
		return err
	}
	if !ok {
		_, rerr := s.Remove(ctx, key)
		return rerr
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.HSet(ctx, s.keys.scheduler(key),
		"iterationCount", iterations,
		"next", next.UnixMilli(),
	)
	pipe.ZAdd(ctx, s.keys.schedulerDue(), redis.Z{Score: float64(next.UnixMilli()), Member: key})
	_, err = pipe.Exec(ctx)
	return err
}

func scheduleFromHash(queueName, key string, fields map[string]string) (*model.Schedule, error) {
	schedule := &model.Schedule{
		Key:       key,
		QueueName: queueName,
		JobName:   fields["jobName"],
	}

	if raw := fields["data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &schedule.Template.Data); err != nil {
			return nil, fmt.Errorf("scheduler %s data: %w", key, err)
		}
	}
	if raw := fields["opts"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &schedule.Template.Opts); err != nil {
			return nil, fmt.Errorf("scheduler %s opts: %w", key, err)
		}
	}
	if raw := fields["repeat"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &schedule.Repeat); err != nil {
			return nil, fmt.Errorf("scheduler %s repeat: %w", key, err)
		}
		schedule.Repeat.Normalize()
	}

	if ms := parseInt64Field(fields["next"]); ms > 0 {
		next := time.UnixMilli(ms)
		schedule.Next = &next
	}
	schedule.IterationCount = parseIntField(fields["iterationCount"])
	return schedule, nil
}
