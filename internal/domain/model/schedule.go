package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RepeatOpts describes how a scheduler repeats: either a cron pattern or a
// fixed interval, with optional bounds.
type RepeatOpts struct {
	Pattern   string        `json:"pattern,omitempty"`
	Every     time.Duration `json:"-"`
	EveryMs   int64         `json:"every,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	StartDate *time.Time    `json:"startDate,omitempty"`
	EndDate   *time.Time    `json:"endDate,omitempty"`
	TZ        string        `json:"tz,omitempty"`
}

// Normalize keeps Every and EveryMs consistent for serialization.
func (r *RepeatOpts) Normalize() {
	if r.Every > 0 {
		r.EveryMs = int64(r.Every / time.Millisecond)
	} else if r.EveryMs > 0 {
		r.Every = time.Duration(r.EveryMs) * time.Millisecond
	}
}

// Validate validates the RepeatOpts fields.
func (r *RepeatOpts) Validate() error {
	r.Normalize()
	if r.Pattern == "" && r.Every <= 0 {
		return errors.New("schedule needs a cron pattern or an every interval")
	}
	if r.Pattern != "" && r.Every > 0 {
		return errors.New("schedule cannot combine a cron pattern with an every interval")
	}
	if r.Limit < 0 {
		return errors.New("limit must be >= 0")
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return errors.New("endDate must not precede startDate")
	}
	return nil
}

// ScheduleSpec is the schedule portion of a job submission.
type ScheduleSpec struct {
	Cron   string      `json:"cron,omitempty"`
	TZ     string      `json:"tz,omitempty"`
	Repeat *RepeatOpts `json:"repeat,omitempty"`

	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// ToRepeatOpts builds broker repeat options from the submission schedule.
// Cron takes precedence over interval repetition.
func (s *ScheduleSpec) ToRepeatOpts() (RepeatOpts, error) {
	var opts RepeatOpts
	switch {
	case s.Cron != "":
		opts.Pattern = s.Cron
		opts.TZ = s.TZ
	case s.Repeat != nil && (s.Repeat.Every > 0 || s.Repeat.EveryMs > 0):
		opts.Every = s.Repeat.Every
		opts.EveryMs = s.Repeat.EveryMs
		opts.Limit = s.Repeat.Limit
	default:
		return opts, errors.New("schedule needs a cron pattern or repeat.every")
	}
	opts.StartDate = s.StartDate
	opts.EndDate = s.EndDate
	opts.Normalize()
	return opts, opts.Validate()
}

// ScheduleSubmission represents a request to create or update a schedule.
type ScheduleSubmission struct {
	Name     string         `json:"name"`
	Data     map[string]any `json:"data,omitempty"`
	Opts     map[string]any `json:"opts,omitempty"`
	Schedule ScheduleSpec   `json:"schedule"`
}

// Validate validates the ScheduleSubmission fields.
func (r *ScheduleSubmission) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("job name is required")
	}
	_, err := r.Schedule.ToRepeatOpts()
	return err
}

// JobTemplate is the job a scheduler instantiates on each occurrence.
type JobTemplate struct {
	Data map[string]any `json:"data,omitempty"`
	Opts map[string]any `json:"opts,omitempty"`
}

// Schedule represents a recurring-job scheduler. The key is structured
// "{userId}-{jobName}-{createdMs}" so ownership is decidable from the key
// alone.
type Schedule struct {
	Key            string      `json:"key"`
	QueueName      string      `json:"queueName"`
	JobName        string      `json:"jobName"`
	Template       JobTemplate `json:"template"`
	Repeat         RepeatOpts  `json:"repeat"`
	Next           *time.Time  `json:"next,omitempty"`
	IterationCount int         `json:"iterationCount"`
}

// ScheduleKey builds the composite scheduler key.
func ScheduleKey(userID uint64, jobName string, created time.Time) string {
	return fmt.Sprintf("%d-%s-%d", userID, jobName, created.UnixMilli())
}

// ScheduleKeyOwner extracts the owning user id from a scheduler key.
// Returns false when the key does not carry a numeric owner prefix.
func ScheduleKeyOwner(key string) (uint64, bool) {
	idx := strings.Index(key, "-")
	if idx <= 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(key[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ScheduleOwnedBy reports whether the scheduler key belongs to the user.
func ScheduleOwnedBy(key string, userID uint64) bool {
	return strings.HasPrefix(key, strconv.FormatUint(userID, 10)+"-")
}
