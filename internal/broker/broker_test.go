package broker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

func TestKeyLayout(t *testing.T) {
	k := keysFor("jobQueue")

	assert.Equal(t, "cq:jobQueue:id", k.id())
	assert.Equal(t, "cq:jobQueue:job:42", k.job("42"))
	assert.Equal(t, "cq:jobQueue:wait", k.wait())
	assert.Equal(t, "cq:jobQueue:active", k.active())
	assert.Equal(t, "cq:jobQueue:completed", k.completed())
	assert.Equal(t, "cq:jobQueue:failed", k.failed())
	assert.Equal(t, "cq:jobQueue:delayed", k.delayed())
	assert.Equal(t, "cq:jobQueue:waiting-children", k.waitingChildren())
	assert.Equal(t, "cq:jobQueue:job:42:deps", k.deps("42"))
	assert.Equal(t, "cq:jobQueue:events", k.events())
	assert.Equal(t, "cq:jobQueue:scheduler:1-scan-99", k.scheduler("1-scan-99"))
	assert.Equal(t, "cq:jobQueue:schedulers", k.schedulerIndex())
	assert.Equal(t, "cq:jobQueue:scheduler-due", k.schedulerDue())
}

func TestJobHashRoundTrip(t *testing.T) {
	opts := model.DefaultJobOpts()
	opts.Attempts = 3
	job := &Job{
		ID:        "7",
		Name:      "crawl",
		QueueName: "jobQueue",
		Data:      map[string]any{"userId": float64(12), "url": "https://example.com"},
		Opts:      *opts,
		State:     model.JobStateCompleted,
		Progress:  map[string]any{"pct": float64(100)},
		ReturnValue: map[string]any{
			"pages": float64(5),
		},
		AttemptsMade: 1,
		Timestamp:    1700000000000,
		ProcessedOn:  1700000001000,
		FinishedOn:   1700000005000,
		ParentQueue:  "jobQueue",
		ParentID:     "6",
		Children: []JobRef{
			{Queue: "jobQueue", ID: "8"},
		},
	}

	fields, err := job.toHash()
	require.NoError(t, err)

	// Redis hands hash fields back as strings.
	raw := make(map[string]string, len(fields))
	for field, value := range fields {
		raw[field] = fmt.Sprint(value)
	}

	got, err := jobFromHash("jobQueue", "7", raw)
	require.NoError(t, err)

	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Data, got.Data)
	assert.Equal(t, job.State, got.State)
	assert.Equal(t, job.Progress, got.Progress)
	assert.Equal(t, job.ReturnValue, got.ReturnValue)
	assert.Equal(t, job.AttemptsMade, got.AttemptsMade)
	assert.Equal(t, job.Timestamp, got.Timestamp)
	assert.Equal(t, job.ProcessedOn, got.ProcessedOn)
	assert.Equal(t, job.FinishedOn, got.FinishedOn)
	assert.Equal(t, job.ParentQueue, got.ParentQueue)
	assert.Equal(t, job.ParentID, got.ParentID)
	assert.Equal(t, job.Children, got.Children)
	assert.Equal(t, job.Opts.Attempts, got.Opts.Attempts)
}

func TestJobFromHashMissing(t *testing.T) {
	_, err := jobFromHash("jobQueue", "404", map[string]string{})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobUserID(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		want   uint64
		wantOK bool
	}{
		{"float64", map[string]any{"userId": float64(9)}, 9, true},
		{"string", map[string]any{"userId": "14"}, 14, true},
		{"missing", map[string]any{"other": 1}, 0, false},
		{"garbage string", map[string]any{"userId": "nope"}, 0, false},
		{"wrong type", map[string]any{"userId": true}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Data: tt.data}
			got, ok := job.UserID()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobDuration(t *testing.T) {
	job := &Job{ProcessedOn: 1000, FinishedOn: 3500}
	d, ok := job.Duration()
	require.True(t, ok)
	assert.Equal(t, 2500*time.Millisecond, d)

	_, ok = (&Job{ProcessedOn: 1000}).Duration()
	assert.False(t, ok)
}

func TestFlowOptsDefaults(t *testing.T) {
	opts, err := flowOpts(nil)
	require.NoError(t, err)
	require.NotNil(t, opts.RemoveOnComplete)
	require.NotNil(t, opts.RemoveOnFail)
	assert.Equal(t, 3, opts.RemoveOnComplete.Count)
	assert.Equal(t, 5, opts.RemoveOnFail.Count)
}

func TestFlowOptsRoundTrip(t *testing.T) {
	opts, err := flowOpts(map[string]any{
		"attempts": float64(4),
		"priority": float64(2),
		"custom":   "kept",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, opts.Attempts)
	assert.Equal(t, 2, opts.Priority)
	assert.Equal(t, "kept", opts.Extra["custom"])
	// Defaults are filled in when the caller omitted retention.
	require.NotNil(t, opts.RemoveOnComplete)
	assert.Equal(t, 3, opts.RemoveOnComplete.Count)
}

func TestNextRunInterval(t *testing.T) {
	after := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	next, ok, err := NextRun(model.RepeatOpts{Every: 10 * time.Minute}, after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, after.Add(10*time.Minute), next)
}

func TestNextRunIntervalHonorsStartDate(t *testing.T) {
	after := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	start := after.Add(2 * time.Hour)

	next, ok, err := NextRun(model.RepeatOpts{Every: time.Minute, StartDate: &start}, after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, next.Before(start), "first occurrence must not precede startDate")
}

func TestNextRunIntervalHonorsEndDate(t *testing.T) {
	after := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := after.Add(30 * time.Second)

	_, ok, err := NextRun(model.RepeatOpts{Every: time.Minute, EndDate: &end}, after)
	require.NoError(t, err)
	assert.False(t, ok, "occurrence past endDate must retire the schedule")
}

func TestNextRunCronPattern(t *testing.T) {
	after := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	next, ok, err := NextRun(model.RepeatOpts{Pattern: "0 * * * *", TZ: "UTC"}, after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC), next)
}

func TestNextRunCronDescriptor(t *testing.T) {
	after := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	next, ok, err := NextRun(model.RepeatOpts{Pattern: "@hourly", TZ: "UTC"}, after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC), next)
}

func TestNextRunCronTimezone(t *testing.T) {
	after := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	// Daily at 09:00 New York time lands at 13:00 UTC during DST.
	next, ok, err := NextRun(model.RepeatOpts{Pattern: "0 9 * * *", TZ: "America/New_York"}, after)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextRunInvalid(t *testing.T) {
	after := time.Now()

	_, _, err := NextRun(model.RepeatOpts{}, after)
	assert.Error(t, err)

	_, _, err = NextRun(model.RepeatOpts{Pattern: "not a cron"}, after)
	assert.Error(t, err)

	_, _, err = NextRun(model.RepeatOpts{Pattern: "* * * * *", TZ: "Not/AZone"}, after)
	assert.Error(t, err)
}

func TestScheduleHashRoundTrip(t *testing.T) {
	fields := map[string]string{
		"jobName":        "report",
		"data":           `{"userId":3}`,
		"opts":           `{"attempts":2}`,
		"repeat":         `{"pattern":"0 * * * *","tz":"UTC"}`,
		"next":           "1700000000000",
		"iterationCount": "5",
	}

	schedule, err := scheduleFromHash("schedQueue", "3-report-1690000000000", fields)
	require.NoError(t, err)
	assert.Equal(t, "schedQueue", schedule.QueueName)
	assert.Equal(t, "report", schedule.JobName)
	assert.Equal(t, map[string]any{"userId": float64(3)}, schedule.Template.Data)
	assert.Equal(t, "0 * * * *", schedule.Repeat.Pattern)
	assert.Equal(t, 5, schedule.IterationCount)
	require.NotNil(t, schedule.Next)
	assert.Equal(t, int64(1700000000000), schedule.Next.UnixMilli())
}

func TestRegistryAllowList(t *testing.T) {
	client := NewClient(nil)
	registry := NewRegistry(client, []string{"jobQueue", "webhooks", "schedQueue"})

	assert.True(t, registry.Allowed("jobQueue"))
	assert.False(t, registry.Allowed("bogus"))
	assert.ElementsMatch(t, []string{"jobQueue", "webhooks", "schedQueue"}, registry.Names())

	_, err := registry.Queue("bogus")
	assert.Error(t, err)
	_, err = registry.Scheduler("bogus")
	assert.Error(t, err)

	q1, err := registry.Queue("jobQueue")
	require.NoError(t, err)
	q2, err := registry.Queue("jobQueue")
	require.NoError(t, err)
	assert.Same(t, q1, q2, "queue handles are shared")

	s1, err := registry.Scheduler("schedQueue")
	require.NoError(t, err)
	s2, err := registry.Scheduler("schedQueue")
	require.NoError(t, err)
	assert.Same(t, s1, s2, "scheduler handles are shared")
}
