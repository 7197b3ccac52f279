package broker

import (
	"fmt"
	"sync"

	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// Registry vends shared queue and scheduler handles for a fixed set of
// allowed queue names. Handles are created lazily and reused, so every
// caller observes the same queue.
type Registry struct {
	client  *Client
	allowed map[string]struct{}

	mu         sync.Mutex
	queues     map[string]*Queue
	schedulers map[string]*JobScheduler
}

// NewRegistry builds a registry over the broker client restricted to the
// given queue names.
func NewRegistry(client *Client, names []string) *Registry {
	allowed := make(map[string]struct{}, len(names))
	for _, name := range names {
		allowed[name] = struct{}{}
	}
	return &Registry{
		client:     client,
		allowed:    allowed,
		queues:     make(map[string]*Queue, len(names)),
		schedulers: make(map[string]*JobScheduler, len(names)),
	}
}

// Allowed reports whether the queue name is in the allow list.
func (r *Registry) Allowed(name string) bool {
	_, ok := r.allowed[name]
	return ok
}

// Names returns the allowed queue names, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.allowed))
	for name := range r.allowed {
		names = append(names, name)
	}
	return names
}

// Queue returns the shared handle for an allowed queue name. Unknown names
// are a validation error, never an implicit queue creation.
func (r *Registry) Queue(name string) (*Queue, error) {
	if !r.Allowed(name) {
		return nil, apperrors.ValidationField("queueName", fmt.Sprintf("unknown queue %q", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	queue, ok := r.queues[name]
	if !ok {
		queue = r.client.Queue(name)
		r.queues[name] = queue
	}
	return queue, nil
}

// Scheduler returns the shared job-scheduler handle for an allowed queue name.
func (r *Registry) Scheduler(name string) (*JobScheduler, error) {
	if !r.Allowed(name) {
		return nil, apperrors.ValidationField("queueName", fmt.Sprintf("unknown queue %q", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	scheduler, ok := r.schedulers[name]
	if !ok {
		scheduler = r.client.JobScheduler(name)
		r.schedulers[name] = scheduler
	}
	return scheduler, nil
}
