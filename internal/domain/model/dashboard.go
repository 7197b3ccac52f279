package model

import "time"

// QueueStats is the per-queue block of the dashboard, counting only the
// caller's jobs.
type QueueStats struct {
	Queue  string           `json:"queue"`
	Counts map[JobState]int `json:"counts"`
	Total  int              `json:"total"`
}

// RecentJob is one entry of the dashboard's recent-jobs list. Duration is in
// milliseconds and present only for finished jobs.
type RecentJob struct {
	JobView
	QueueName string `json:"queueName"`
	Duration  *int64 `json:"duration,omitempty"`
}

// ScheduleStats summarizes the caller's recurring schedules.
type ScheduleStats struct {
	TotalSchedules   int        `json:"totalSchedules"`
	ActiveSchedules  int        `json:"activeSchedules"`
	NextScheduledJob *time.Time `json:"nextScheduledJob,omitempty"`
}

// WebhookStats summarizes the caller's webhooks. The delivery figures stay
// null until a delivery ledger exists; clients must treat null as "unknown",
// not zero.
type WebhookStats struct {
	TotalWebhooks    int      `json:"totalWebhooks"`
	ActiveWebhooks   int      `json:"activeWebhooks"`
	DeliveryRate     *float64 `json:"deliveryRate"`
	TotalDeliveries  *int64   `json:"totalDeliveries"`
	FailedDeliveries *int64   `json:"failedDeliveries"`
}

// DashboardStats is the aggregate dashboard response, scoped to the caller.
type DashboardStats struct {
	Queues     []QueueStats     `json:"queues"`
	Totals     map[JobState]int `json:"totals"`
	RecentJobs []RecentJob      `json:"recentJobs"`
	Schedules  ScheduleStats    `json:"schedules"`
	Webhooks   WebhookStats     `json:"webhooks"`
}
