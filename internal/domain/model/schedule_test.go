package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleKeyOwnership(t *testing.T) {
	created := time.UnixMilli(1700000000000)
	key := ScheduleKey(42, "daily-report", created)
	assert.Equal(t, "42-daily-report-1700000000000", key)

	owner, ok := ScheduleKeyOwner(key)
	require.True(t, ok)
	assert.Equal(t, uint64(42), owner)

	assert.True(t, ScheduleOwnedBy(key, 42))
	assert.False(t, ScheduleOwnedBy(key, 4), "prefix match requires the full id segment")
	assert.False(t, ScheduleOwnedBy(key, 421))

	_, ok = ScheduleKeyOwner("report-without-owner")
	assert.False(t, ok)
	_, ok = ScheduleKeyOwner("-leading-dash")
	assert.False(t, ok)
}

func TestScheduleSpecToRepeatOpts(t *testing.T) {
	t.Run("cron wins over repeat", func(t *testing.T) {
		spec := ScheduleSpec{
			Cron:   "*/5 * * * *",
			TZ:     "America/New_York",
			Repeat: &RepeatOpts{EveryMs: 60000},
		}
		opts, err := spec.ToRepeatOpts()
		require.NoError(t, err)
		assert.Equal(t, "*/5 * * * *", opts.Pattern)
		assert.Equal(t, "America/New_York", opts.TZ)
		assert.Zero(t, opts.Every)
	})

	t.Run("interval repeat", func(t *testing.T) {
		spec := ScheduleSpec{Repeat: &RepeatOpts{EveryMs: 90000, Limit: 3}}
		opts, err := spec.ToRepeatOpts()
		require.NoError(t, err)
		assert.Empty(t, opts.Pattern)
		assert.Equal(t, 90*time.Second, opts.Every)
		assert.Equal(t, int64(90000), opts.EveryMs)
		assert.Equal(t, 3, opts.Limit)
	})

	t.Run("bounds carry over", func(t *testing.T) {
		start := time.Now()
		end := start.Add(24 * time.Hour)
		spec := ScheduleSpec{Cron: "0 0 * * *", StartDate: &start, EndDate: &end}
		opts, err := spec.ToRepeatOpts()
		require.NoError(t, err)
		assert.Equal(t, &start, opts.StartDate)
		assert.Equal(t, &end, opts.EndDate)
	})

	t.Run("empty schedule rejected", func(t *testing.T) {
		spec := ScheduleSpec{}
		_, err := spec.ToRepeatOpts()
		assert.Error(t, err)
	})
}
