package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Registry *broker.Registry
	Logger   *slog.Logger
}

// JobService submits, reads, lists, and deletes jobs on behalf of a user.
// Ownership is carried in job data: every submitted job gets the caller's id
// injected, and every read or delete compares it against the caller.
type JobService struct {
	registry *broker.Registry
	logger   *slog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Registry == nil {
		return nil, errors.New("queue registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		registry: opts.Registry,
		logger:   logger.With("component", "job_service"),
	}, nil
}

// ListJobsQuery selects a page of the caller's jobs.
type ListJobsQuery struct {
	Status *model.JobState
	Page   int
	Limit  int
}

// Submit enqueues a job for the caller and returns the broker-assigned id.
// Options that do not survive a JSON round-trip are logged and replaced with
// defaults; the submission still succeeds.
func (s *JobService) Submit(ctx context.Context, queueName string, req *model.SubmitJobRequest, userID uint64) (string, error) {
	if err := req.Validate(); err != nil {
		return "", apperrors.Validationf("%s", err.Error())
	}
	queue, err := s.registry.Queue(queueName)
	if err != nil {
		return "", err
	}

	opts := s.decodeOpts(req.Opts, queueName, req.Name)

	data := make(map[string]any, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	data["userId"] = userID

	jobID, err := queue.Add(ctx, req.Name, data, opts)
	if err != nil {
		return "", err
	}
	s.logger.Info("job submitted", "queue", queueName, "job_id", jobID, "user_id", userID)
	return jobID, nil
}

// Get loads a job view. A job owned by someone else is forbidden, not hidden.
func (s *JobService) Get(ctx context.Context, queueName, jobID string, userID uint64) (*model.JobView, error) {
	job, err := s.ownedJob(ctx, queueName, jobID, userID)
	if err != nil {
		return nil, err
	}
	view := job.View()
	return &view, nil
}

// List returns a page of the caller's jobs. The broker keeps no per-user
// index, so owner filtering happens after retrieval and pagination after
// filtering.
func (s *JobService) List(ctx context.Context, queueName string, userID uint64, query ListJobsQuery) (*model.JobList, error) {
	queue, err := s.registry.Queue(queueName)
	if err != nil {
		return nil, err
	}

	states := model.BrokerStates()
	if query.Status != nil {
		if !query.Status.Valid() {
			return nil, apperrors.ValidationField("status", "unknown status filter")
		}
		states = []model.JobState{*query.Status}
	}

	jobs, err := queue.JobsByState(ctx, states...)
	if err != nil {
		return nil, err
	}

	owned := make([]model.JobView, 0, len(jobs))
	for _, job := range jobs {
		if owner, ok := job.UserID(); ok && owner == userID {
			owned = append(owned, job.View())
		}
	}

	page, pagination := paginate(owned, query.Page, query.Limit)
	return &model.JobList{Jobs: page, Pagination: pagination}, nil
}

// Delete removes a job after an ownership check.
func (s *JobService) Delete(ctx context.Context, queueName, jobID string, userID uint64) error {
	job, err := s.ownedJob(ctx, queueName, jobID, userID)
	if err != nil {
		return err
	}

	queue, err := s.registry.Queue(queueName)
	if err != nil {
		return err
	}
	if err := queue.Remove(ctx, job.ID); err != nil {
		if errors.Is(err, broker.ErrJobNotFound) {
			return apperrors.NotFound("job not found")
		}
		return err
	}
	s.logger.Info("job deleted", "queue", queueName, "job_id", jobID, "user_id", userID)
	return nil
}

// ownedJob loads a job and enforces ownership. Missing jobs are not-found;
// existing jobs owned by another user are forbidden.
func (s *JobService) ownedJob(ctx context.Context, queueName, jobID string, userID uint64) (*broker.Job, error) {
	queue, err := s.registry.Queue(queueName)
	if err != nil {
		return nil, err
	}

	job, err := queue.Job(ctx, jobID)
	if err != nil {
		if errors.Is(err, broker.ErrJobNotFound) {
			return nil, apperrors.NotFound("job not found")
		}
		return nil, err
	}
	if owner, ok := job.UserID(); !ok || owner != userID {
		return nil, apperrors.Forbidden("job belongs to another user")
	}
	return job, nil
}

// decodeOpts round-trips raw submission options into typed options, falling
// back to defaults on any decode failure.
func (s *JobService) decodeOpts(raw json.RawMessage, queueName, jobName string) *model.JobOpts {
	if len(raw) == 0 || string(raw) == "null" {
		return model.DefaultJobOpts()
	}

	var opts model.JobOpts
	if err := json.Unmarshal(raw, &opts); err != nil {
		s.logger.Warn("discarding unusable job opts",
			"queue", queueName,
			"job_name", jobName,
			"error", err,
		)
		return model.DefaultJobOpts()
	}
	if opts.RemoveOnComplete == nil {
		opts.RemoveOnComplete = &model.RetentionOpts{Count: 3}
	}
	if opts.RemoveOnFail == nil {
		opts.RemoveOnFail = &model.RetentionOpts{Count: 5}
	}
	return &opts
}

// paginate slices a filtered job list into one page and its pagination block.
// Pages past the end yield an empty page with the true total.
func paginate(jobs []model.JobView, page, limit int) ([]model.JobView, model.Pagination) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	total := len(jobs)
	pages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start >= total {
		return []model.JobView{}, model.Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
	}
	end := start + limit
	if end > total {
		end = total
	}
	return jobs[start:end], model.Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}
