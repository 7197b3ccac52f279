package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/core"
	flowdomain "github.com/conveyorhq/conveyor/internal/domain/flow"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// FlowServiceOptions groups dependencies for FlowService.
type FlowServiceOptions struct {
	Repo     core.FlowRepository
	Broker   *broker.Client
	Registry *broker.Registry
	Emitter  Emitter
	Logger   *slog.Logger
}

// FlowService creates composite job trees, aggregates their progress, and
// cascades their deletion. Progress aggregation itself is pure (domain/flow);
// this service serializes updates per flow id and persists the results.
type FlowService struct {
	repo     core.FlowRepository
	broker   *broker.Client
	registry *broker.Registry
	emitter  Emitter
	logger   *slog.Logger

	// updates to one flow are read-modify-write; the keyed mutex prevents
	// lost updates when several children report concurrently.
	locks keyedMutex
}

// NewFlowService creates a new FlowService.
func NewFlowService(opts FlowServiceOptions) (*FlowService, error) {
	if opts.Repo == nil {
		return nil, errors.New("flow repository is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("broker client is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("queue registry is required")
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowService{
		repo:     opts.Repo,
		broker:   opts.Broker,
		registry: opts.Registry,
		emitter:  emitter,
		logger:   logger.With("component", "flow_service"),
	}, nil
}

// Create validates and persists a flow, submits its job tree to the broker,
// and transitions it to running. The persisted structure is the request as
// submitted; flow metadata is injected only into the broker-bound copy.
func (s *FlowService) Create(ctx context.Context, req *model.CreateFlowRequest, userID uint64) (*model.Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}
	root := req.Root()
	if err := s.checkQueues(&root); err != nil {
		return nil, err
	}

	flowID, err := mintFlowID(time.Now())
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, &model.Flow{
		FlowID:       flowID,
		Flowname:     req.Flowname,
		Name:         req.Name,
		QueueName:    req.QueueName,
		UserID:       userID,
		Status:       model.FlowStatusPending,
		JobStructure: model.JobStructure{Root: root},
		Progress:     flowdomain.InitializeProgress(root),
	})
	if err != nil {
		return nil, err
	}

	injected := flowdomain.InjectMetadata(root, flowID, req.Flowname, time.Now())
	injectOwner(&injected, userID)

	rootRef, err := s.broker.AddFlow(ctx, injected)
	if err != nil {
		return nil, fmt.Errorf("submit flow %s: %w", flowID, err)
	}

	if err := s.repo.SetRootJob(ctx, flowID, rootRef.ID, created.Progress); err != nil {
		return nil, err
	}

	created.RootJobID = &rootRef.ID
	created.Status = model.FlowStatusRunning
	now := time.Now()
	created.StartedAt = &now

	s.logger.Info("flow created",
		"flow_id", flowID,
		"flowname", req.Flowname,
		"root_job_id", rootRef.ID,
		"total_jobs", created.Progress.Summary.Total,
		"user_id", userID,
	)
	s.emitter.Emit(userRoom(userID), "flow:created", created)
	return created, nil
}

// Get loads a flow row by id.
func (s *FlowService) Get(ctx context.Context, flowID string) (*model.Flow, error) {
	return s.repo.GetByID(ctx, flowID)
}

// ListForUser returns a page of the user's flows, newest first.
func (s *FlowService) ListForUser(ctx context.Context, userID uint64, page, limit int) ([]model.Flow, model.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	flows, err := s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	pagination := model.Pagination{
		Total: int(total),
		Page:  page,
		Limit: limit,
		Pages: (int(total) + limit - 1) / limit,
	}
	return flows, pagination, nil
}

// GetAsCreateRequest reconstructs the original creation request from the
// persisted structure, minus the injected metadata.
func (s *FlowService) GetAsCreateRequest(ctx context.Context, flowID string) (*model.CreateFlowRequest, error) {
	f, err := s.repo.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	root := flowdomain.StripMetadata(f.JobStructure.Root)
	return &model.CreateFlowRequest{
		Flowname:  f.Flowname,
		Name:      root.Name,
		QueueName: root.QueueName,
		Data:      root.Data,
		Opts:      root.Opts,
		Children:  root.Children,
	}, nil
}

// UpdateProgress applies one per-job report. Updates for the same flow are
// serialized; updates across flows run concurrently.
func (s *FlowService) UpdateProgress(ctx context.Context, flowID string, update *model.FlowJobUpdate) (*model.Flow, error) {
	if err := update.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}

	unlock := s.locks.lock(flowID)
	defer unlock()

	f, err := s.repo.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	progress, consistent := flowdomain.ApplyUpdate(f.Progress, *update, time.Now())
	if !consistent {
		s.logger.Warn("flow progress counters inconsistent",
			"flow_id", flowID,
			"total", progress.Summary.Total,
			"tracked", progress.Summary.TrackedSum(),
			"waiting", progress.Summary.Waiting,
		)
	}
	status := flowdomain.ComputeStatus(f.Status, progress)

	// The flow mirrors the root job's outcome, never a child's.
	errMsg := f.Error
	isRoot := f.RootJobID != nil && update.JobID == *f.RootJobID
	if isRoot && update.Error != "" {
		errMsg = update.Error
	}

	var result any
	if isRoot && update.Result != nil {
		result = update.Result
	}
	// One write covers progress, status, error, and result, so a crash between
	// statements cannot leave a completed flow without its result.
	if err := s.repo.SaveProgress(ctx, flowID, progress, status, errMsg, result); err != nil {
		return nil, err
	}
	if result != nil {
		f.Result = result
	}

	completed := status == model.FlowStatusCompleted && f.Status != model.FlowStatusCompleted
	f.Progress = progress
	f.Status = status
	f.Error = errMsg

	jobPayload := map[string]any{
		"flowId": flowID,
		"jobId":  update.JobID,
		"status": update.Status,
		"job":    progress.Jobs[update.JobID],
	}
	flowPayload := map[string]any{
		"flowId":  flowID,
		"status":  status,
		"summary": progress.Summary,
	}
	for _, room := range []string{flowRoom(flowID), userRoom(f.UserID)} {
		s.emitter.Emit(room, "flow:job:updated", jobPayload)
		s.emitter.Emit(room, "flow:updated", flowPayload)
		if completed {
			s.emitter.Emit(room, "flow:completed", flowPayload)
		}
	}
	// Subscribers of the flow room also get the scoped event names.
	s.emitter.Emit(flowRoom(flowID), "flow:job:progress", jobPayload)
	s.emitter.Emit(flowRoom(flowID), "flow:progress", flowPayload)
	if completed {
		s.emitter.Emit(flowRoom(flowID), "flow:finished", flowPayload)
	}
	return f, nil
}

// Delete removes a flow and its broker jobs. The root removal cascades to
// children; per-job outcomes are recorded. The flow row is deleted even when
// broker removal partially fails, so no state leaks.
func (s *FlowService) Delete(ctx context.Context, flowID string, userID uint64) (*model.FlowDeleteSummary, error) {
	f, err := s.repo.GetForUser(ctx, flowID, userID)
	if err != nil {
		return nil, err
	}

	summary := &model.FlowDeleteSummary{Failed: []string{}, Details: []model.FlowJobRemoval{}}
	if f.RootJobID != nil {
		s.removeTree(ctx, f.QueueName, *f.RootJobID, summary)
	}

	if err := s.repo.Delete(ctx, flowID, userID); err != nil {
		return nil, err
	}

	s.logger.Info("flow deleted",
		"flow_id", flowID,
		"user_id", userID,
		"jobs_removed", summary.Successful,
		"jobs_failed", len(summary.Failed),
	)
	s.emitter.Emit(userRoom(userID), "flow:deleted", map[string]any{"flowId": flowID})
	s.emitter.Emit(flowRoom(flowID), "flow:deleted", map[string]any{"flowId": flowID})
	return summary, nil
}

// removeTree records the flow's job tree then removes the root; the broker
// cascades the removal to every descendant.
func (s *FlowService) removeTree(ctx context.Context, queueName, rootID string, summary *model.FlowDeleteSummary) {
	queue := s.broker.Queue(queueName)

	refs := s.collectRefs(ctx, queueName, rootID, 0)
	summary.Total = len(refs)

	err := queue.Remove(ctx, rootID)
	for _, ref := range refs {
		removal := model.FlowJobRemoval{JobID: ref.ID, QueueName: ref.Queue}
		switch {
		case err == nil:
			removal.Status = "success"
			summary.Successful++
		case errors.Is(err, broker.ErrJobNotFound):
			removal.Status = "not_found"
		default:
			removal.Status = "failed"
			removal.Error = err.Error()
			summary.Failed = append(summary.Failed, ref.ID)
		}
		summary.Details = append(summary.Details, removal)
	}
	if err != nil && !errors.Is(err, broker.ErrJobNotFound) {
		s.logger.Warn("flow job removal failed", "queue", queueName, "root_job_id", rootID, "error", err)
	}
}

// collectRefs walks the broker job tree depth-first. Jobs already gone are
// simply not listed.
func (s *FlowService) collectRefs(ctx context.Context, queueName, id string, depth int) []broker.JobRef {
	if depth > model.MaxFlowDepth {
		return nil
	}
	job, err := s.broker.Queue(queueName).Job(ctx, id)
	if err != nil {
		return nil
	}
	refs := []broker.JobRef{{Queue: queueName, ID: id}}
	for _, child := range job.Children {
		refs = append(refs, s.collectRefs(ctx, child.Queue, child.ID, depth+1)...)
	}
	return refs
}

// checkQueues validates every node's queue against the allow-list before
// anything reaches the broker.
func (s *FlowService) checkQueues(spec *model.FlowJobSpec) error {
	if !s.registry.Allowed(spec.QueueName) {
		return apperrors.ValidationField("queueName", fmt.Sprintf("unknown queue %q", spec.QueueName))
	}
	for i := range spec.Children {
		if err := s.checkQueues(&spec.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// injectOwner stamps the caller's id into every node's data, in place on the
// already-copied injected tree.
func injectOwner(spec *model.FlowJobSpec, userID uint64) {
	spec.Data["userId"] = userID
	for i := range spec.Children {
		injectOwner(&spec.Children[i], userID)
	}
}

// mintFlowID builds a unique flow id of the form flow_{ms}_{rand}.
func mintFlowID(now time.Time) (string, error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate flow id: %w", err)
	}
	return "flow_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + hex.EncodeToString(raw)[:9], nil
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// keyedMutex hands out one mutex per key, dropping entries once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
