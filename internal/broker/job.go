package broker

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// Job is a broker-owned job record, hydrated from its Redis hash.
type Job struct {
	ID           string
	Name         string
	QueueName    string
	Data         map[string]any
	Opts         model.JobOpts
	State        model.JobState
	Progress     any
	ReturnValue  any
	FailedReason string
	AttemptsMade int
	Timestamp    int64 // created, Unix ms
	ProcessedOn  int64 // started, Unix ms; zero when never started
	FinishedOn   int64 // finished, Unix ms; zero while unfinished

	// Parent links a flow child to its parent job.
	ParentQueue string
	ParentID    string
	// Children lists direct flow children as "queue\x00id" refs.
	Children []JobRef
}

// JobRef identifies a job across queues.
type JobRef struct {
	Queue string `json:"queue"`
	ID    string `json:"id"`
}

// UserID extracts the owning user id injected into the job's data.
// Returns false when the job carries no owner.
func (j *Job) UserID() (uint64, bool) {
	raw, ok := j.Data["userId"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return uint64(v), true
	case int64:
		return uint64(v), true
	case uint64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return uint64(n), true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// View projects the job into its API shape.
func (j *Job) View() model.JobView {
	view := model.JobView{
		ID:           j.ID,
		Name:         j.Name,
		State:        j.State,
		Progress:     j.Progress,
		Result:       j.ReturnValue,
		FailedReason: j.FailedReason,
		Timestamp:    model.JobTimestamps{Created: j.Timestamp},
	}
	if j.ProcessedOn > 0 {
		started := j.ProcessedOn
		view.Timestamp.Started = &started
	}
	if j.FinishedOn > 0 {
		finished := j.FinishedOn
		view.Timestamp.Finished = &finished
	}
	return view
}

// toHash serializes the job into Redis hash fields.
func (j *Job) toHash() (map[string]any, error) {
	data, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	opts, err := json.Marshal(j.Opts)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"name":         j.Name,
		"data":         string(data),
		"opts":         string(opts),
		"state":        string(j.State),
		"attemptsMade": j.AttemptsMade,
		"timestamp":    j.Timestamp,
	}
	if j.Progress != nil {
		progress, merr := json.Marshal(j.Progress)
		if merr != nil {
			return nil, merr
		}
		fields["progress"] = string(progress)
	}
	if j.ReturnValue != nil {
		rv, merr := json.Marshal(j.ReturnValue)
		if merr != nil {
			return nil, merr
		}
		fields["returnvalue"] = string(rv)
	}
	if j.FailedReason != "" {
		fields["failedReason"] = j.FailedReason
	}
	if j.ProcessedOn > 0 {
		fields["processedOn"] = j.ProcessedOn
	}
	if j.FinishedOn > 0 {
		fields["finishedOn"] = j.FinishedOn
	}
	if j.ParentID != "" {
		fields["parentQueue"] = j.ParentQueue
		fields["parentId"] = j.ParentID
	}
	if len(j.Children) > 0 {
		children, merr := json.Marshal(j.Children)
		if merr != nil {
			return nil, merr
		}
		fields["children"] = string(children)
	}
	return fields, nil
}

// jobFromHash hydrates a job from its Redis hash fields.
func jobFromHash(queue, id string, fields map[string]string) (*Job, error) {
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	job := &Job{
		ID:           id,
		QueueName:    queue,
		Name:         fields["name"],
		State:        model.JobState(fields["state"]),
		FailedReason: fields["failedReason"],
	}

	if raw := fields["data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Data); err != nil {
			return nil, err
		}
	}
	if raw := fields["opts"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Opts); err != nil {
			return nil, err
		}
	}
	if raw := fields["progress"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Progress); err != nil {
			return nil, err
		}
	}
	if raw := fields["returnvalue"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.ReturnValue); err != nil {
			return nil, err
		}
	}
	if raw := fields["children"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Children); err != nil {
			return nil, err
		}
	}

	job.AttemptsMade = parseIntField(fields["attemptsMade"])
	job.Timestamp = parseInt64Field(fields["timestamp"])
	job.ProcessedOn = parseInt64Field(fields["processedOn"])
	job.FinishedOn = parseInt64Field(fields["finishedOn"])
	job.ParentQueue = fields["parentQueue"]
	job.ParentID = fields["parentId"]
	return job, nil
}

func parseIntField(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func parseInt64Field(raw string) int64 {
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

// Duration converts the processed/finished pair into a runtime, when both exist.
func (j *Job) Duration() (time.Duration, bool) {
	if j.ProcessedOn == 0 || j.FinishedOn == 0 {
		return 0, false
	}
	return time.Duration(j.FinishedOn-j.ProcessedOn) * time.Millisecond, true
}
