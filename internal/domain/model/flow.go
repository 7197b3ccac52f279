package model

import (
	"errors"
	"strings"
	"time"
)

// MaxFlowDepth bounds recursion when walking flow trees. Flows are trees by
// construction; the bound guards against pathological inputs.
const MaxFlowDepth = 32

// FlowStatus represents the aggregate status of a flow.
type FlowStatus string

const (
	// FlowStatusPending indicates a flow row exists but the root job has not
	// been submitted to the broker yet.
	FlowStatusPending FlowStatus = "pending"
	// FlowStatusRunning indicates at least one job is in flight or reported.
	FlowStatusRunning FlowStatus = "running"
	// FlowStatusCompleted indicates every job in the flow completed.
	FlowStatusCompleted FlowStatus = "completed"
	// FlowStatusFailed indicates some tracked job failed or got stuck.
	FlowStatusFailed FlowStatus = "failed"
)

// Terminal returns true for sticky end states.
func (s FlowStatus) Terminal() bool {
	return s == FlowStatusCompleted || s == FlowStatusFailed
}

// FlowJobSpec is one node of a flow's job tree.
type FlowJobSpec struct {
	Name      string         `json:"name"`
	QueueName string         `json:"queueName"`
	Data      map[string]any `json:"data,omitempty"`
	Opts      map[string]any `json:"opts,omitempty"`
	Children  []FlowJobSpec  `json:"children,omitempty"`
}

// CountJobs returns the total number of jobs in the subtree rooted at the spec.
func (s *FlowJobSpec) CountJobs() int {
	total := 1
	for i := range s.Children {
		total += s.Children[i].CountJobs()
	}
	return total
}

// Depth returns the depth of the subtree rooted at the spec.
func (s *FlowJobSpec) Depth() int {
	deepest := 0
	for i := range s.Children {
		if d := s.Children[i].Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// JobStructure persists the shape of a flow as submitted.
type JobStructure struct {
	Root FlowJobSpec `json:"root"`
}

// JobProgress tracks a single reported job inside a flow.
type JobProgress struct {
	Name        string     `json:"name"`
	QueueName   string     `json:"queueName"`
	Status      JobState   `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Progress    any        `json:"progress,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ProgressSummary aggregates tracked-job counts by status plus the
// untracked-waiting count. Waiting counts jobs the flow expects but has not
// heard from; it is always derived from total minus tracked, never from
// status counts.
type ProgressSummary struct {
	Total           int `json:"total"`
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	Delayed         int `json:"delayed"`
	Active          int `json:"active"`
	Waiting         int `json:"waiting"`
	WaitingChildren int `json:"waiting-children"`
	Paused          int `json:"paused"`
	Stuck           int `json:"stuck"`
	Percentage      int `json:"percentage"`
}

// TrackedSum returns the sum of all tracked-status counters.
func (s *ProgressSummary) TrackedSum() int {
	return s.Completed + s.Failed + s.Delayed + s.Active + s.WaitingChildren + s.Paused + s.Stuck
}

// FlowProgress is the per-job progress map plus its aggregate summary.
type FlowProgress struct {
	Jobs    map[string]JobProgress `json:"jobs"`
	Summary ProgressSummary        `json:"summary"`
}

// Flow represents a composite job tree tracked as a single logical unit.
type Flow struct {
	FlowID       string       `json:"flowId"                db:"flow_id"`
	Flowname     string       `json:"flowname"              db:"flowname"`
	Name         string       `json:"name"                  db:"name"`
	QueueName    string       `json:"queueName"             db:"queue_name"`
	UserID       uint64       `json:"userId"                db:"user_id"`
	RootJobID    *string      `json:"rootJobId,omitempty"   db:"root_job_id"`
	Status       FlowStatus   `json:"status"                db:"status"`
	JobStructure JobStructure `json:"jobStructure"          db:"job_structure"`
	Progress     FlowProgress `json:"progress"              db:"progress"`
	Result       any          `json:"result,omitempty"      db:"result"`
	Error        string       `json:"error,omitempty"       db:"error"`
	CreatedAt    time.Time    `json:"createdAt"             db:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt"             db:"updated_at"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"   db:"started_at"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty" db:"completed_at"`
}

// CreateFlowRequest represents a request to create a flow. The embedded spec
// is the root job; children nest arbitrarily up to MaxFlowDepth.
type CreateFlowRequest struct {
	Flowname  string         `json:"flowname"`
	Name      string         `json:"name"`
	QueueName string         `json:"queueName"`
	Data      map[string]any `json:"data,omitempty"`
	Opts      map[string]any `json:"opts,omitempty"`
	Children  []FlowJobSpec  `json:"children,omitempty"`
}

// Root returns the request as a FlowJobSpec tree.
func (r *CreateFlowRequest) Root() FlowJobSpec {
	return FlowJobSpec{
		Name:      r.Name,
		QueueName: r.QueueName,
		Data:      r.Data,
		Opts:      r.Opts,
		Children:  r.Children,
	}
}

// Validate validates the CreateFlowRequest fields and asserts tree shape.
func (r *CreateFlowRequest) Validate() error {
	if strings.TrimSpace(r.Flowname) == "" {
		return errors.New("flowname is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("root job name is required")
	}
	if strings.TrimSpace(r.QueueName) == "" {
		return errors.New("root queueName is required")
	}
	root := r.Root()
	if root.Depth() > MaxFlowDepth {
		return errors.New("flow tree exceeds maximum depth")
	}
	return validateFlowSpec(&root)
}

func validateFlowSpec(spec *FlowJobSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return errors.New("every flow job needs a name")
	}
	if strings.TrimSpace(spec.QueueName) == "" {
		return errors.New("every flow job needs a queueName")
	}
	for i := range spec.Children {
		if err := validateFlowSpec(&spec.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// FlowJobUpdate is a per-job progress report applied to a flow.
type FlowJobUpdate struct {
	JobID     string     `json:"jobId"`
	Status    JobState   `json:"status"`
	JobName   string     `json:"jobName,omitempty"`
	QueueName string     `json:"queueName,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	Progress  any        `json:"progress,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Validate validates the FlowJobUpdate fields.
func (u *FlowJobUpdate) Validate() error {
	if strings.TrimSpace(u.JobID) == "" {
		return errors.New("jobId is required")
	}
	if !u.Status.ValidReported() {
		return errors.New("invalid job status: " + string(u.Status))
	}
	return nil
}

// FlowJobRemoval records the outcome of removing one job during flow deletion.
type FlowJobRemoval struct {
	JobID     string `json:"jobId"`
	QueueName string `json:"queueName"`
	Status    string `json:"status"` // success | not_found | failed
	Error     string `json:"error,omitempty"`
}

// FlowDeleteSummary is returned by flow deletion.
type FlowDeleteSummary struct {
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     []string         `json:"failed"`
	Details    []FlowJobRemoval `json:"details"`
}
