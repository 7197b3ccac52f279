// Package model defines the core data types and structures used throughout the conveyor job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobState represents the broker-side state of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobState string

const (
	// JobStateWaiting indicates a job is queued and waiting for a worker.
	JobStateWaiting JobState = "waiting"
	// JobStateActive indicates a job is currently being processed.
	JobStateActive JobState = "active"
	// JobStateCompleted indicates a job has finished successfully.
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates a job has failed.
	JobStateFailed JobState = "failed"
	// JobStateDelayed indicates a job is scheduled for a later time.
	JobStateDelayed JobState = "delayed"
	// JobStateWaitingChildren indicates a parent job waiting for its children.
	JobStateWaitingChildren JobState = "waiting-children"
	// JobStatePaused indicates a job sits in a paused queue.
	JobStatePaused JobState = "paused"
	// JobStateStuck is a reported-only state: the broker never enumerates it,
	// only explicit flow progress reports can mark a job stuck.
	JobStateStuck JobState = "stuck"
)

// BrokerStates returns the states the broker can enumerate. Stuck is
// deliberately excluded; it exists only in flow progress reports.
func BrokerStates() []JobState {
	return []JobState{
		JobStateWaiting,
		JobStateActive,
		JobStateCompleted,
		JobStateFailed,
		JobStateDelayed,
		JobStateWaitingChildren,
		JobStatePaused,
	}
}

// Valid returns true if the state is a broker-enumerable state.
func (s JobState) Valid() bool {
	for _, st := range BrokerStates() {
		if s == st {
			return true
		}
	}
	return false
}

// ValidReported returns true if the state may appear in a flow progress report.
func (s JobState) ValidReported() bool {
	return s.Valid() || s == JobStateStuck
}

// UnmarshalText implements encoding.TextUnmarshaler for JobState.
func (s *JobState) UnmarshalText(text []byte) error {
	v := JobState(strings.TrimSpace(string(text)))
	if !v.ValidReported() {
		return fmt.Errorf("invalid JobState: %q", v)
	}
	*s = v
	return nil
}

// RetentionOpts controls how many finished jobs the broker retains.
type RetentionOpts struct {
	Count int `json:"count"`
}

// JobOpts carries submission options. Known fields are typed; everything else
// the caller sends is retained in Extra and passed through to the broker.
type JobOpts struct {
	Attempts         int            `json:"attempts,omitempty"`
	Delay            time.Duration  `json:"-"`
	DelayMs          int64          `json:"delay,omitempty"`
	Priority         int            `json:"priority,omitempty"`
	RemoveOnComplete *RetentionOpts `json:"removeOnComplete,omitempty"`
	RemoveOnFail     *RetentionOpts `json:"removeOnFail,omitempty"`

	// Extra holds unrecognized option fields as an opaque bag.
	Extra map[string]any `json:"-"`
}

// DefaultJobOpts returns the retention defaults applied when a submission
// carries no usable options.
func DefaultJobOpts() *JobOpts {
	return &JobOpts{
		RemoveOnComplete: &RetentionOpts{Count: 3},
		RemoveOnFail:     &RetentionOpts{Count: 5},
	}
}

// knownOptKeys lists the JSON keys decoded into typed JobOpts fields.
var knownOptKeys = map[string]struct{}{
	"attempts":         {},
	"delay":            {},
	"priority":         {},
	"removeOnComplete": {},
	"removeOnFail":     {},
}

// UnmarshalJSON decodes known fields and stashes the rest in Extra.
func (o *JobOpts) UnmarshalJSON(data []byte) error {
	type alias JobOpts
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if _, known := knownOptKeys[key]; known {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		a.Extra[key] = v
	}

	*o = JobOpts(a)
	o.Delay = time.Duration(o.DelayMs) * time.Millisecond
	return nil
}

// MarshalJSON re-merges Extra with the typed fields.
func (o JobOpts) MarshalJSON() ([]byte, error) {
	o.DelayMs = int64(o.Delay / time.Millisecond)

	type alias JobOpts
	base, err := json.Marshal(alias(o))
	if err != nil {
		return nil, err
	}
	if len(o.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]any, len(o.Extra)+4)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range o.Extra {
		if _, known := knownOptKeys[key]; known {
			continue
		}
		merged[key] = value
	}
	return json.Marshal(merged)
}

// JobTimestamps groups the lifecycle timestamps of a job, in Unix milliseconds.
type JobTimestamps struct {
	Created  int64  `json:"created"`
	Started  *int64 `json:"started,omitempty"`
	Finished *int64 `json:"finished,omitempty"`
}

// JobView is the API projection of a broker job.
type JobView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	State        JobState      `json:"state"`
	Progress     any           `json:"progress,omitempty"`
	Result       any           `json:"result,omitempty"`
	FailedReason string        `json:"failedReason,omitempty"`
	Timestamp    JobTimestamps `json:"timestamp"`
}

// SubmitJobRequest represents a request to submit a job to a queue.
type SubmitJobRequest struct {
	Name string          `json:"name"`
	Data map[string]any  `json:"data"`
	Opts json.RawMessage `json:"opts,omitempty"`
}

// Validate validates the SubmitJobRequest fields.
func (r *SubmitJobRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("job name is required")
	}
	return nil
}

// Pagination describes a paginated list response.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// JobList is a page of jobs owned by the caller.
type JobList struct {
	Jobs       []JobView  `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}
