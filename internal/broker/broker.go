// Package broker binds the conveyor core to a Redis-compatible queue runtime.
// It exposes the queue primitives the services consume: queues with atomic
// list/hash job records, blocking worker pops, pub/sub queue events, a
// repeating job-scheduler primitive, and parent/child flows.
package broker

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every broker key.
const keyPrefix = "cq"

// Client wraps a shared Redis connection and vends queue handles.
type Client struct {
	rdb redis.UniversalClient
}

// NewClient creates a broker client over an established Redis connection.
// The connection is shared by every queue handle; its pool bounds concurrency.
func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Redis returns the underlying connection, for health checks.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// keys computes the key layout for one queue.
type keys struct {
	queue string
}

func keysFor(queue string) keys { return keys{queue: queue} }

func (k keys) base() string            { return fmt.Sprintf("%s:%s", keyPrefix, k.queue) }
func (k keys) id() string              { return k.base() + ":id" }
func (k keys) job(id string) string    { return k.base() + ":job:" + id }
func (k keys) wait() string            { return k.base() + ":wait" }
func (k keys) active() string          { return k.base() + ":active" }
func (k keys) paused() string          { return k.base() + ":paused" }
func (k keys) completed() string       { return k.base() + ":completed" }
func (k keys) failed() string          { return k.base() + ":failed" }
func (k keys) delayed() string         { return k.base() + ":delayed" }
func (k keys) waitingChildren() string { return k.base() + ":waiting-children" }
func (k keys) deps(id string) string   { return k.base() + ":job:" + id + ":deps" }
func (k keys) events() string          { return k.base() + ":events" }
func (k keys) scheduler(key string) string {
	return k.base() + ":scheduler:" + key
}
func (k keys) schedulerIndex() string { return k.base() + ":schedulers" }
func (k keys) schedulerDue() string   { return k.base() + ":scheduler-due" }

// nowMs returns the wall clock in Unix milliseconds, the broker's native
// timestamp unit.
func nowMs(t time.Time) int64 { return t.UnixMilli() }
