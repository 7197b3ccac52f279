package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// Ownership is decided from the key prefix alone; foreign keys must never
// reach the broker, so these tests run without one.

func TestSchedulerGetForeignKey(t *testing.T) {
	svc := &SchedulerService{logger: slog.Default()}

	schedule, err := svc.Get(context.Background(), "schedQueue", "99-report-1700000000000", 42)
	assert.NoError(t, err)
	assert.Nil(t, schedule, "foreign keys look exactly like missing ones")

	schedule, err = svc.Get(context.Background(), "schedQueue", "not-a-key", 42)
	assert.NoError(t, err)
	assert.Nil(t, schedule)
}

func TestSchedulerRemoveForeignKey(t *testing.T) {
	svc := &SchedulerService{logger: slog.Default()}

	removed, err := svc.Remove(context.Background(), "schedQueue", "99-report-1700000000000", 42)
	assert.NoError(t, err)
	assert.False(t, removed)
}

func TestSchedulerScheduleValidation(t *testing.T) {
	svc := &SchedulerService{logger: slog.Default()}
	ctx := context.Background()

	_, err := svc.Schedule(ctx, "schedQueue", &model.ScheduleSubmission{
		Schedule: model.ScheduleSpec{Cron: "0 * * * *"},
	}, 42)
	assert.True(t, apperrors.IsValidation(err), "missing job name")

	_, err = svc.Schedule(ctx, "schedQueue", &model.ScheduleSubmission{
		Name: "report",
	}, 42)
	assert.True(t, apperrors.IsValidation(err), "neither cron nor every")

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = svc.Schedule(ctx, "schedQueue", &model.ScheduleSubmission{
		Name: "report",
		Schedule: model.ScheduleSpec{
			Cron:      "0 * * * *",
			StartDate: &start,
			EndDate:   &end,
		},
	}, 42)
	assert.True(t, apperrors.IsValidation(err), "end before start")
}
