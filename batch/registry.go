package batch

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// terminalTTL keeps a finished task queryable long enough for late
// subscribers to fetch the final event before the janitor reaps it.
const terminalTTL = 5 * time.Minute

// Registry holds live and recently finished tasks by id.
type Registry struct {
	tasks *gocache.Cache
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: gocache.New(gocache.NoExpiration, time.Minute)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry shared by the admin endpoints.
func Default() *Registry { return defaultRegistry }

// Create registers a running task for total items. Running tasks never
// expire; callers arm the TTL with Expire once the task reaches a terminal
// state.
func (r *Registry) Create(total int) *Task {
	task := newTask(total)
	r.tasks.Set(task.ID, task, gocache.NoExpiration)
	return task
}

// Get returns the task by id, or nil when unknown or already reaped.
func (r *Registry) Get(id string) *Task {
	if v, ok := r.tasks.Get(id); ok {
		return v.(*Task)
	}
	return nil
}

// Expire rearms the task to be reaped after the terminal grace period.
func (r *Registry) Expire(id string) {
	if v, ok := r.tasks.Get(id); ok {
		r.tasks.Set(id, v, terminalTTL)
	}
}

// Delete drops the task immediately.
func (r *Registry) Delete(id string) {
	r.tasks.Delete(id)
}
