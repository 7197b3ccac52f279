package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
	"github.com/conveyorhq/conveyor/internal/testutil"
)

func TestQueueAddGetRemove(t *testing.T) {
	client := NewClient(testutil.SetupTestRedis(t))
	queue := client.Queue("jobQueue")
	ctx := context.Background()

	id, err := queue.Add(ctx, "crawl", map[string]any{"userId": float64(7), "url": "https://example.com"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := queue.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "crawl", job.Name)
	assert.Equal(t, model.JobStateWaiting, job.State)
	owner, ok := job.UserID()
	require.True(t, ok)
	assert.Equal(t, uint64(7), owner)

	counts, err := queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.JobStateWaiting])

	require.NoError(t, queue.Remove(ctx, id))
	_, err = queue.Job(ctx, id)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueueDelayedPromotion(t *testing.T) {
	client := NewClient(testutil.SetupTestRedis(t))
	queue := client.Queue("jobQueue")
	ctx := context.Background()

	opts := model.DefaultJobOpts()
	opts.Delay = 50 * time.Millisecond
	id, err := queue.Add(ctx, "later", map[string]any{"userId": float64(7)}, opts)
	require.NoError(t, err)

	job, err := queue.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateDelayed, job.State)

	// Promotion before the due time is a no-op.
	require.NoError(t, queue.promoteDelayed(ctx, time.Now()))
	job, err = queue.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateDelayed, job.State)

	require.NoError(t, queue.promoteDelayed(ctx, time.Now().Add(time.Second)))
	job, err = queue.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateWaiting, job.State)
}

func TestWorkerProcessesJob(t *testing.T) {
	client := NewClient(testutil.SetupTestRedis(t))
	queue := client.Queue("jobQueue")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := queue.Add(ctx, "sum", map[string]any{"userId": float64(7), "n": float64(2)}, nil)
	require.NoError(t, err)

	processed := make(chan string, 1)
	worker, err := NewWorker(WorkerOptions{
		Queue: queue,
		Handler: func(_ context.Context, job *Job) (any, error) {
			processed <- job.ID
			return map[string]any{"sum": 4}, nil
		},
	})
	require.NoError(t, err)

	go func() { _ = worker.Run(ctx) }()

	select {
	case got := <-processed:
		assert.Equal(t, id, got)
	case <-time.After(10 * time.Second):
		t.Fatal("worker never processed the job")
	}

	// The job lands in completed with its return value persisted.
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, jerr := queue.Job(ctx, id)
		require.NoError(t, jerr)
		if job.State == model.JobStateCompleted {
			assert.Equal(t, map[string]any{"sum": float64(4)}, job.ReturnValue)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, state %s", job.State)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestJobSchedulerRoundTrip(t *testing.T) {
	client := NewClient(testutil.SetupTestRedis(t))
	scheduler := client.JobScheduler("schedQueue")
	ctx := context.Background()

	spec := model.ScheduleSpec{Repeat: &model.RepeatOpts{EveryMs: 60_000}}
	repeat, err := spec.ToRepeatOpts()
	require.NoError(t, err)

	require.NoError(t, scheduler.Upsert(ctx, "7-report-1700000000000", repeat, "report",
		map[string]any{"userId": float64(7)}, nil))

	got, err := scheduler.Get(ctx, "7-report-1700000000000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "report", got.JobName)

	list, err := scheduler.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	removed, err := scheduler.Remove(ctx, "7-report-1700000000000")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = scheduler.Remove(ctx, "7-report-1700000000000")
	require.NoError(t, err)
	assert.False(t, removed)
}
