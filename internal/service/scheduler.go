package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Registry *broker.Registry
	Logger   *slog.Logger
}

// SchedulerService manages recurring schedules. Every scheduler key embeds
// the owning user id as its prefix, so ownership checks never need a lookup.
type SchedulerService struct {
	registry *broker.Registry
	logger   *slog.Logger
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Registry == nil {
		return nil, errors.New("queue registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerService{
		registry: opts.Registry,
		logger:   logger.With("component", "scheduler_service"),
	}, nil
}

// Schedule creates a recurring schedule for the caller and returns its key.
// Re-submitting the same key replaces the schedule in place.
func (s *SchedulerService) Schedule(ctx context.Context, queueName string, sub *model.ScheduleSubmission, userID uint64) (string, error) {
	if err := sub.Validate(); err != nil {
		return "", apperrors.Validationf("%s", err.Error())
	}
	scheduler, err := s.registry.Scheduler(queueName)
	if err != nil {
		return "", err
	}

	repeat, err := sub.Schedule.ToRepeatOpts()
	if err != nil {
		return "", apperrors.Validationf("%s", err.Error())
	}

	data := make(map[string]any, len(sub.Data)+1)
	for k, v := range sub.Data {
		data[k] = v
	}
	data["userId"] = userID

	key := model.ScheduleKey(userID, sub.Name, time.Now())
	if err := scheduler.Upsert(ctx, key, repeat, sub.Name, data, sub.Opts); err != nil {
		return "", err
	}
	s.logger.Info("schedule upserted", "queue", queueName, "scheduler_key", key, "user_id", userID)
	return key, nil
}

// ListForUser returns the caller's schedules on the queue. Broker failures
// degrade to an empty list with a log line; a dashboard read should not fail
// because one enumeration did.
func (s *SchedulerService) ListForUser(ctx context.Context, queueName string, userID uint64) ([]model.Schedule, error) {
	scheduler, err := s.registry.Scheduler(queueName)
	if err != nil {
		return nil, err
	}

	all, err := scheduler.List(ctx)
	if err != nil {
		s.logger.Warn("list schedulers failed", "queue", queueName, "error", err)
		return []model.Schedule{}, nil
	}

	owned := make([]model.Schedule, 0, len(all))
	for _, schedule := range all {
		if model.ScheduleOwnedBy(schedule.Key, userID) {
			owned = append(owned, schedule)
		}
	}
	return owned, nil
}

// Get retrieves one schedule, scoped to its owner by key prefix. Unknown or
// foreign keys both return nil, so callers cannot probe for existence.
func (s *SchedulerService) Get(ctx context.Context, queueName, key string, userID uint64) (*model.Schedule, error) {
	if !model.ScheduleOwnedBy(key, userID) {
		return nil, nil
	}
	scheduler, err := s.registry.Scheduler(queueName)
	if err != nil {
		return nil, err
	}
	return scheduler.Get(ctx, key)
}

// Remove deletes a schedule. Returns false when the key is foreign or does
// not exist; removing twice is safe.
func (s *SchedulerService) Remove(ctx context.Context, queueName, key string, userID uint64) (bool, error) {
	if !model.ScheduleOwnedBy(key, userID) {
		return false, nil
	}
	scheduler, err := s.registry.Scheduler(queueName)
	if err != nil {
		return false, err
	}

	removed, err := scheduler.Remove(ctx, key)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("schedule removed", "queue", queueName, "scheduler_key", key, "user_id", userID)
	}
	return removed, nil
}
