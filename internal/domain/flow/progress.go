// Package flow implements the pure progress-aggregation logic for job flows.
// It has no broker or database dependencies; the flow service drives it and
// persists its results.
package flow

import (
	"math"
	"time"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// InitializeProgress builds the progress snapshot of a freshly created flow.
// The root counts as active, everything else as untracked waiting.
func InitializeProgress(root model.FlowJobSpec) model.FlowProgress {
	total := root.CountJobs()
	return model.FlowProgress{
		Jobs: map[string]model.JobProgress{},
		Summary: model.ProgressSummary{
			Total:   total,
			Active:  1,
			Waiting: total - 1,
		},
	}
}

// ApplyUpdate applies one per-job report to a progress snapshot and returns
// the recomputed snapshot. The input is not mutated. The second return value
// is false when the recomputed counters do not add up to the total; callers
// log the inconsistency and proceed with the returned snapshot.
func ApplyUpdate(p model.FlowProgress, update model.FlowJobUpdate, now time.Time) (model.FlowProgress, bool) {
	jobs := make(map[string]model.JobProgress, len(p.Jobs)+1)
	for id, jp := range p.Jobs {
		jobs[id] = jp
	}

	entry := model.JobProgress{
		Name:      update.JobName,
		QueueName: update.QueueName,
		Status:    update.Status,
		Result:    update.Result,
		Error:     update.Error,
		Progress:  update.Progress,
		StartedAt: update.StartedAt,
	}
	if prev, ok := jobs[update.JobID]; ok {
		if entry.Name == "" {
			entry.Name = prev.Name
		}
		if entry.QueueName == "" {
			entry.QueueName = prev.QueueName
		}
		// A report without a start time never erases one we already know.
		if entry.StartedAt == nil {
			entry.StartedAt = prev.StartedAt
		}
		if entry.CompletedAt == nil {
			entry.CompletedAt = prev.CompletedAt
		}
	}
	if update.Status == model.JobStateCompleted || update.Status == model.JobStateFailed {
		completedAt := now
		entry.CompletedAt = &completedAt
	}
	jobs[update.JobID] = entry

	summary := recount(jobs, p.Summary.Total)
	next := model.FlowProgress{Jobs: jobs, Summary: summary}
	return next, summary.TrackedSum()+summary.Waiting == summary.Total
}

// recount rebuilds the summary from the tracked jobs map. Waiting is always
// total minus tracked, never a status tally.
func recount(jobs map[string]model.JobProgress, total int) model.ProgressSummary {
	summary := model.ProgressSummary{Total: total}
	for _, jp := range jobs {
		switch jp.Status {
		case model.JobStateCompleted:
			summary.Completed++
		case model.JobStateFailed:
			summary.Failed++
		case model.JobStateDelayed:
			summary.Delayed++
		case model.JobStateActive:
			summary.Active++
		case model.JobStateWaitingChildren:
			summary.WaitingChildren++
		case model.JobStatePaused:
			summary.Paused++
		case model.JobStateStuck:
			summary.Stuck++
		case model.JobStateWaiting:
			// Tracked jobs that report "waiting" count toward the tracked sum
			// via Active below; BullMQ reports them rarely, but a flow that
			// hears "waiting" knows the job exists. Treat as active work.
			summary.Active++
		}
	}

	summary.Waiting = total - len(jobs)
	if summary.Waiting < 0 {
		summary.Waiting = 0
	}
	if total > 0 {
		summary.Percentage = int(math.Round(float64(summary.Completed) / float64(total) * 100))
	}
	return summary
}

// ComputeStatus derives the flow status from a progress snapshot. Terminal
// states are sticky: once completed or failed, a flow never resurrects.
func ComputeStatus(prev model.FlowStatus, p model.FlowProgress) model.FlowStatus {
	if prev.Terminal() {
		return prev
	}

	s := p.Summary
	switch {
	case s.Failed > 0 || s.Stuck > 0:
		return model.FlowStatusFailed
	case s.Total > 0 && s.Completed == s.Total && s.Waiting == 0:
		return model.FlowStatusCompleted
	case s.Active > 0 || s.Delayed > 0 || s.WaitingChildren > 0 || s.Paused > 0 || len(p.Jobs) > 0:
		return model.FlowStatusRunning
	default:
		return model.FlowStatusPending
	}
}
