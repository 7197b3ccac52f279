package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/core"
	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// recentJobLimit bounds the dashboard's recent-jobs list.
const recentJobLimit = 5

// DashboardOptions groups dependencies for DashboardService.
type DashboardOptions struct {
	Registry *broker.Registry
	Webhooks core.WebhookRepository
	Logger   *slog.Logger
}

// DashboardConfig names the queues the dashboard reads.
type DashboardConfig struct {
	// PrimaryQueue supplies the recent-jobs list.
	PrimaryQueue string
	// SchedulerQueue hosts the caller's recurring schedules.
	SchedulerQueue string
}

// DashboardService computes the caller-scoped stats view on demand. The
// broker has no per-user index, so counting walks the queues and filters by
// owner; individual queue failures degrade that block instead of failing the
// whole response.
type DashboardService struct {
	registry *broker.Registry
	webhooks core.WebhookRepository
	cfg      DashboardConfig
	logger   *slog.Logger
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(opts DashboardOptions, cfg DashboardConfig) (*DashboardService, error) {
	if opts.Registry == nil {
		return nil, errors.New("queue registry is required")
	}
	if opts.Webhooks == nil {
		return nil, errors.New("webhook repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{
		registry: opts.Registry,
		webhooks: opts.Webhooks,
		cfg:      cfg,
		logger:   logger.With("component", "dashboard_service"),
	}, nil
}

// GetStats assembles the dashboard for one user.
func (s *DashboardService) GetStats(ctx context.Context, userID uint64) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{
		Queues: make([]model.QueueStats, 0, len(s.registry.Names())),
		Totals: make(map[model.JobState]int, len(model.BrokerStates())),
	}

	names := s.registry.Names()
	sort.Strings(names)
	for _, name := range names {
		queueStats, jobs := s.queueStats(ctx, name, userID)
		stats.Queues = append(stats.Queues, queueStats)
		for state, n := range queueStats.Counts {
			stats.Totals[state] += n
		}
		if name == s.cfg.PrimaryQueue {
			stats.RecentJobs = recentJobs(jobs, name)
		}
	}

	stats.Schedules = s.scheduleStats(ctx, userID)
	stats.Webhooks = s.webhookStats(ctx, userID)
	return stats, nil
}

// queueStats counts one queue's jobs owned by the user and returns the owned
// jobs for reuse by the recent-jobs block.
func (s *DashboardService) queueStats(ctx context.Context, queueName string, userID uint64) (model.QueueStats, []*broker.Job) {
	out := model.QueueStats{
		Queue:  queueName,
		Counts: make(map[model.JobState]int, len(model.BrokerStates())),
	}

	queue, err := s.registry.Queue(queueName)
	if err != nil {
		return out, nil
	}
	jobs, err := queue.JobsByState(ctx, model.BrokerStates()...)
	if err != nil {
		s.logger.Warn("queue stats unavailable", "queue", queueName, "error", err)
		return out, nil
	}

	owned := make([]*broker.Job, 0, len(jobs))
	for _, job := range jobs {
		if owner, ok := job.UserID(); !ok || owner != userID {
			continue
		}
		owned = append(owned, job)
		out.Counts[job.State]++
		out.Total++
	}
	return out, owned
}

// recentJobs picks the newest jobs and computes their runtimes.
func recentJobs(jobs []*broker.Job, queueName string) []model.RecentJob {
	sorted := make([]*broker.Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	if len(sorted) > recentJobLimit {
		sorted = sorted[:recentJobLimit]
	}

	recent := make([]model.RecentJob, 0, len(sorted))
	for _, job := range sorted {
		entry := model.RecentJob{JobView: job.View(), QueueName: queueName}
		if d, ok := job.Duration(); ok {
			ms := d.Milliseconds()
			entry.Duration = &ms
		}
		recent = append(recent, entry)
	}
	return recent
}

// scheduleStats summarizes the caller's schedules. Enumeration failures
// degrade to zeros.
func (s *DashboardService) scheduleStats(ctx context.Context, userID uint64) model.ScheduleStats {
	var out model.ScheduleStats

	scheduler, err := s.registry.Scheduler(s.cfg.SchedulerQueue)
	if err != nil {
		return out
	}
	schedules, err := scheduler.List(ctx)
	if err != nil {
		s.logger.Warn("schedule stats unavailable", "queue", s.cfg.SchedulerQueue, "error", err)
		return out
	}

	for _, schedule := range schedules {
		if !model.ScheduleOwnedBy(schedule.Key, userID) {
			continue
		}
		out.TotalSchedules++
		if schedule.Next != nil {
			out.ActiveSchedules++
			if out.NextScheduledJob == nil || schedule.Next.Before(*out.NextScheduledJob) {
				next := *schedule.Next
				out.NextScheduledJob = &next
			}
		}
	}
	return out
}

// webhookStats summarizes the caller's webhooks. Delivery figures remain
// null; there is no delivery ledger to count from.
func (s *DashboardService) webhookStats(ctx context.Context, userID uint64) model.WebhookStats {
	var out model.WebhookStats

	hooks, err := s.webhooks.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("webhook stats unavailable", "error", err)
		return out
	}
	out.TotalWebhooks = len(hooks)
	for _, hook := range hooks {
		if hook.Active {
			out.ActiveWebhooks++
		}
	}
	return out
}
