package config

import (
	"errors"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeEventDemux runs the queue event demultiplexer.
	ServiceModeEventDemux ServiceMode = "event-demux"
	// ServiceModeWebhookWorker runs the webhook delivery worker.
	ServiceModeWebhookWorker ServiceMode = "webhook-worker"
	// ServiceModeScheduler runs the recurring-job scheduler loop.
	ServiceModeScheduler ServiceMode = "scheduler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeEventDemux,
		ServiceModeWebhookWorker,
		ServiceModeScheduler,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}

		mode := ServiceMode(name)
		switch mode {
		case ServiceModeHTTP, ServiceModeEventDemux, ServiceModeWebhookWorker, ServiceModeScheduler:
			services[mode] = true
		default:
			return nil, errors.New("unknown service mode: " + name)
		}
	}

	if len(services) == 0 {
		return services, errors.New("at least one service must be specified")
	}

	return services, nil
}

// GetEnabledServices parses the Services field and returns the enabled service modes.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// Well-known queue names. The allow-list defaults to exactly these; deployments
// may extend it via QUEUE_NAMES.
const (
	// QueueJobs is the primary work queue.
	QueueJobs = "jobQueue"
	// QueueWebhooks carries webhook delivery jobs.
	QueueWebhooks = "webhooks"
	// QueueScheduled hosts recurring-job schedulers.
	QueueScheduled = "schedQueue"
)

// QueueConfig contains the queue allow-list and worker tuning.
type QueueConfig struct {
	// Names is the immutable allow-list of queue names.
	Names []string `env:"QUEUE_NAMES" envSeparator:"," envDefault:"jobQueue,webhooks,schedQueue"`

	// SchedulerTick is the poll interval of the recurring-job scheduler loop.
	SchedulerTick time.Duration `env:"SCHEDULER_TICK" envDefault:"1s"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if len(q.Names) == 0 {
		q.Names = []string{QueueJobs, QueueWebhooks, QueueScheduled}
	}
	if q.SchedulerTick <= 0 {
		q.SchedulerTick = time.Second
	}
}

// WebhookDeliveryConfig tunes the webhook delivery worker.
type WebhookDeliveryConfig struct {
	// Timeout bounds each outbound POST attempt.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// MaxAttempts bounds delivery attempts per target (including the first).
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`

	// RatePerSecond bounds outbound POSTs across all targets. Zero disables limiting.
	RatePerSecond float64 `env:"RATE_PER_SECOND" envDefault:"0"`
}

// Sanitize applies guardrails to webhook delivery configuration values.
func (w *WebhookDeliveryConfig) Sanitize() {
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 3
	}
	if w.RatePerSecond < 0 {
		w.RatePerSecond = 0
	}
}
