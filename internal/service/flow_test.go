package service

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// stubFlowRepo is an in-memory FlowRepository for service tests.
type stubFlowRepo struct {
	mu    sync.Mutex
	flows map[string]*model.Flow

	// progressWrites counts SaveProgress calls; one report means one write.
	progressWrites int
}

func newStubFlowRepo() *stubFlowRepo {
	return &stubFlowRepo{flows: map[string]*model.Flow{}}
}

func (r *stubFlowRepo) Create(_ context.Context, flow *model.Flow) (*model.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *flow
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.flows[stored.FlowID] = &stored
	out := stored
	return &out, nil
}

func (r *stubFlowRepo) GetByID(_ context.Context, flowID string) (*model.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[flowID]
	if !ok {
		return nil, apperrors.NotFound("flow not found")
	}
	out := *f
	return &out, nil
}

func (r *stubFlowRepo) GetForUser(_ context.Context, flowID string, userID uint64) (*model.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[flowID]
	if !ok || f.UserID != userID {
		return nil, apperrors.NotFound("flow not found")
	}
	out := *f
	return &out, nil
}

func (r *stubFlowRepo) ListByUser(_ context.Context, userID uint64, limit, offset int) ([]model.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Flow
	for _, f := range r.flows {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	if offset >= len(out) {
		return []model.Flow{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *stubFlowRepo) CountByUser(_ context.Context, userID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, f := range r.flows {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *stubFlowRepo) SetRootJob(_ context.Context, flowID, rootJobID string, progress model.FlowProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[flowID]
	if !ok {
		return apperrors.NotFound("flow not found")
	}
	f.RootJobID = &rootJobID
	f.Progress = progress
	f.Status = model.FlowStatusRunning
	now := time.Now()
	f.StartedAt = &now
	return nil
}

func (r *stubFlowRepo) SaveProgress(_ context.Context, flowID string, progress model.FlowProgress, status model.FlowStatus, errMsg string, result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[flowID]
	if !ok {
		return apperrors.NotFound("flow not found")
	}
	r.progressWrites++
	f.Progress = progress
	f.Status = status
	f.Error = errMsg
	if result != nil {
		f.Result = result
	}
	f.UpdatedAt = time.Now()
	if status.Terminal() && f.CompletedAt == nil {
		now := time.Now()
		f.CompletedAt = &now
	}
	return nil
}

func (r *stubFlowRepo) Delete(_ context.Context, flowID string, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[flowID]
	if !ok || f.UserID != userID {
		return apperrors.NotFound("flow not found")
	}
	delete(r.flows, flowID)
	return nil
}

func (r *stubFlowRepo) CountByStatus(_ context.Context) (map[model.FlowStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.FlowStatus]int64)
	for _, f := range r.flows {
		out[f.Status]++
	}
	return out, nil
}

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

type emittedEvent struct {
	Room  string
	Event string
}

func (e *recordingEmitter) Emit(room, event string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emittedEvent{Room: room, Event: event})
}

func (e *recordingEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Event == event {
			n++
		}
	}
	return n
}

func (e *recordingEmitter) rooms(event string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		if ev.Event == event {
			out = append(out, ev.Room)
		}
	}
	return out
}

// seedFlow installs a two-job flow in running state with a tracked root.
func seedFlow(t *testing.T, repo *stubFlowRepo) *model.Flow {
	t.Helper()
	root := "root-1"
	f := &model.Flow{
		FlowID:    "flow_1700000000000_abc123def",
		Flowname:  "render-pipeline",
		Name:      "render",
		QueueName: "jobQueue",
		UserID:    42,
		RootJobID: &root,
		Status:    model.FlowStatusRunning,
		Progress: model.FlowProgress{
			Jobs:    map[string]model.JobProgress{},
			Summary: model.ProgressSummary{Total: 2, Waiting: 2},
		},
	}
	_, err := repo.Create(context.Background(), f)
	require.NoError(t, err)
	return f
}

func newTestFlowService(repo *stubFlowRepo, emitter Emitter) *FlowService {
	return &FlowService{repo: repo, emitter: emitter, logger: slog.Default()}
}

func TestFlowUpdateProgress(t *testing.T) {
	repo := newStubFlowRepo()
	emitter := &recordingEmitter{}
	svc := newTestFlowService(repo, emitter)
	ctx := context.Background()
	seeded := seedFlow(t, repo)

	// Child completes first: flow stays running, no result mirrored.
	f, err := svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "child-1",
		Status: model.JobStateCompleted,
		Result: map[string]any{"frames": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, model.FlowStatusRunning, f.Status)
	assert.Equal(t, 1, f.Progress.Summary.Completed)
	assert.Equal(t, 1, f.Progress.Summary.Waiting)
	assert.Equal(t, 50, f.Progress.Summary.Percentage)
	assert.Nil(t, f.Result, "child results never become the flow result")
	assert.Equal(t, 0, emitter.count("flow:completed"))

	// Root completes: flow completes, its result is mirrored in the same
	// write that persists the progress snapshot.
	f, err = svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "root-1",
		Status: model.JobStateCompleted,
		Result: map[string]any{"output": "s3://bucket/render.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.FlowStatusCompleted, f.Status)
	assert.Equal(t, 100, f.Progress.Summary.Percentage)
	assert.Equal(t, map[string]any{"output": "s3://bucket/render.mp4"}, f.Result)
	assert.Equal(t, 2, repo.progressWrites, "one write per report, result included")

	// flow:completed fires once per room on the transition.
	assert.Equal(t, 2, emitter.count("flow:completed"))
	assert.ElementsMatch(t,
		[]string{flowRoom(seeded.FlowID), userRoom(42)},
		emitter.rooms("flow:completed"),
	)

	// A late report does not re-fire completion or flip the status back.
	f, err = svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "child-1",
		Status: model.JobStateActive,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FlowStatusCompleted, f.Status, "terminal status is sticky")
	assert.Equal(t, 2, emitter.count("flow:completed"))
}

func TestFlowUpdateProgressScopedEvents(t *testing.T) {
	repo := newStubFlowRepo()
	emitter := &recordingEmitter{}
	svc := newTestFlowService(repo, emitter)
	ctx := context.Background()
	seeded := seedFlow(t, repo)
	flow := flowRoom(seeded.FlowID)

	_, err := svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "child-1",
		Status: model.JobStateCompleted,
	})
	require.NoError(t, err)

	// The scoped names reach the flow room only; the user room gets the
	// unscoped ones.
	assert.Equal(t, []string{flow}, emitter.rooms("flow:progress"))
	assert.Equal(t, []string{flow}, emitter.rooms("flow:job:progress"))
	assert.ElementsMatch(t,
		[]string{flow, userRoom(42)},
		emitter.rooms("flow:updated"),
	)
	assert.Equal(t, 0, emitter.count("flow:finished"), "flow still running")

	_, err = svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "root-1",
		Status: model.JobStateCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{flow}, emitter.rooms("flow:finished"))

	// Completion fires the scoped event once; later reports stay quiet.
	_, err = svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "child-1",
		Status: model.JobStateActive,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, emitter.count("flow:finished"))
}

func TestFlowUpdateProgressRootFailure(t *testing.T) {
	repo := newStubFlowRepo()
	emitter := &recordingEmitter{}
	svc := newTestFlowService(repo, emitter)
	ctx := context.Background()
	seeded := seedFlow(t, repo)

	f, err := svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "root-1",
		Status: model.JobStateFailed,
		Error:  "render crashed",
	})
	require.NoError(t, err)
	assert.Equal(t, model.FlowStatusFailed, f.Status)
	assert.Equal(t, "render crashed", f.Error)
	assert.Equal(t, 0, emitter.count("flow:completed"))
}

func TestFlowUpdateProgressChildErrorNotMirrored(t *testing.T) {
	repo := newStubFlowRepo()
	svc := newTestFlowService(repo, &recordingEmitter{})
	ctx := context.Background()
	seeded := seedFlow(t, repo)

	f, err := svc.UpdateProgress(ctx, seeded.FlowID, &model.FlowJobUpdate{
		JobID:  "child-1",
		Status: model.JobStateFailed,
		Error:  "child blew up",
	})
	require.NoError(t, err)
	assert.Equal(t, model.FlowStatusFailed, f.Status)
	assert.Empty(t, f.Error, "only the root's error reaches the flow row")
}

func TestFlowUpdateProgressValidation(t *testing.T) {
	repo := newStubFlowRepo()
	svc := newTestFlowService(repo, &recordingEmitter{})
	ctx := context.Background()

	_, err := svc.UpdateProgress(ctx, "flow_x", &model.FlowJobUpdate{Status: model.JobStateActive})
	assert.True(t, apperrors.IsValidation(err), "missing jobId")

	_, err = svc.UpdateProgress(ctx, "flow_x", &model.FlowJobUpdate{JobID: "j1", Status: "sideways"})
	assert.True(t, apperrors.IsValidation(err), "unknown status")

	_, err = svc.UpdateProgress(ctx, "flow_missing", &model.FlowJobUpdate{JobID: "j1", Status: model.JobStateActive})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFlowUpdateProgressConcurrent(t *testing.T) {
	repo := newStubFlowRepo()
	svc := newTestFlowService(repo, &recordingEmitter{})
	ctx := context.Background()

	root := "root-1"
	const children = 20
	_, err := repo.Create(ctx, &model.Flow{
		FlowID:    "flow_concurrent",
		Flowname:  "wide",
		Name:      "root",
		QueueName: "jobQueue",
		UserID:    1,
		RootJobID: &root,
		Status:    model.FlowStatusRunning,
		Progress: model.FlowProgress{
			Jobs:    map[string]model.JobProgress{},
			Summary: model.ProgressSummary{Total: children + 1, Waiting: children + 1},
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < children; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, uerr := svc.UpdateProgress(ctx, "flow_concurrent", &model.FlowJobUpdate{
				JobID:  "child-" + formatUint(uint64(n)),
				Status: model.JobStateCompleted,
			})
			assert.NoError(t, uerr)
		}(i)
	}
	wg.Wait()

	f, err := repo.GetByID(ctx, "flow_concurrent")
	require.NoError(t, err)
	assert.Equal(t, children, f.Progress.Summary.Completed, "no update is lost")
	assert.Equal(t, 1, f.Progress.Summary.Waiting)
	assert.Len(t, f.Progress.Jobs, children)
}

func TestMintFlowID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id, err := mintFlowID(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^flow_1700000000000_[0-9a-f]{9}$`), id)

	other, err := mintFlowID(now)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestKeyedMutex(t *testing.T) {
	var km keyedMutex
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("same-key")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	km.mu.Lock()
	assert.Empty(t, km.locks, "entries are dropped once unused")
	km.mu.Unlock()
}
