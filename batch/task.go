// Package batch tracks long-running administrative jobs. A Task carries
// progress counters and an event bus for SSE subscribers, the Registry keeps
// tasks addressable until a grace period after they finish, and Run fans a
// worker across items with bounded concurrency and cooperative cancellation.
package batch

import (
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types published on a task bus.
const (
	EventSnapshot  = "snapshot"
	EventProgress  = "progress"
	EventDone      = "done"
	EventError     = "error"
	EventCancelled = "cancelled"
	EventPing      = "ping"
)

// Task statuses.
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// subscriberBuffer bounds each subscriber queue. A stalled consumer loses
// intermediate progress events instead of blocking the producers; the
// terminal event is also stored on the task for replay.
const subscriberBuffer = 200

// Event is one message on a task bus. Progress events carry the counters at
// the moment of the update; terminal events additionally carry the aggregate
// result or error of the whole run.
type Event struct {
	Type      string `json:"type"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status,omitempty"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Ok        int    `json:"ok"`
	Fail      int    `json:"fail"`
	Item      string `json:"item,omitempty"`
	Detail    any    `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventDone, EventError, EventCancelled:
		return true
	}
	return false
}

// Snapshot is the point-in-time state of a task, served to new subscribers
// and by the status endpoint.
type Snapshot struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Ok        int    `json:"ok"`
	Fail      int    `json:"fail"`
	Warning   string `json:"warning,omitempty"`
}

// Task is one tracked batch job. Counter updates and subscriber management
// share a mutex; the cancellation flag is atomic so workers can poll it
// between items without contending with progress recording.
type Task struct {
	ID        string
	Total     int
	CreatedAt time.Time

	cancelled atomic.Bool

	mu        sync.Mutex
	status    string
	processed int
	ok        int
	fail      int
	warning   string
	final     *Event
	subs      []chan Event
}

func newTask(total int) *Task {
	id := uuid.New()
	return &Task{
		ID:        hex.EncodeToString(id[:]),
		Total:     total,
		CreatedAt: time.Now(),
		status:    StatusRunning,
	}
}

// Snapshot returns the current counters.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		TaskID:    t.ID,
		Status:    t.status,
		Total:     t.Total,
		Processed: t.processed,
		Ok:        t.ok,
		Fail:      t.fail,
		Warning:   t.warning,
	}
}

// SnapshotEvent frames the current counters as a bus event, the first thing a
// new SSE subscriber receives.
func (t *Task) SnapshotEvent() Event {
	snap := t.Snapshot()
	return Event{
		Type:      EventSnapshot,
		TaskID:    snap.TaskID,
		Status:    snap.Status,
		Total:     snap.Total,
		Processed: snap.Processed,
		Ok:        snap.Ok,
		Fail:      snap.Fail,
		Warning:   snap.Warning,
	}
}

// Attach registers a new subscriber queue. Events published while the queue
// is full are dropped for that subscriber only.
func (t *Task) Attach() chan Event {
	ch := make(chan Event, subscriberBuffer)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Detach removes a subscriber queue.
func (t *Task) Detach(ch chan Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, sub := range t.subs {
		if sub == ch {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}

// publish fans an event to every subscriber without blocking. Callers hold mu.
func (t *Task) publish(ev Event) {
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Record counts one finished item and publishes a progress event. item and
// detail are optional display hints; errMsg names the failure when ok is
// false.
func (t *Task) Record(ok bool, item string, detail any, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
	if ok {
		t.ok++
	} else {
		t.fail++
	}
	t.publish(Event{
		Type:      EventProgress,
		TaskID:    t.ID,
		Total:     t.Total,
		Processed: t.processed,
		Ok:        t.ok,
		Fail:      t.fail,
		Item:      item,
		Detail:    detail,
		Error:     errMsg,
	})
}

// Finish marks the task done, stores the aggregate result, and publishes the
// terminal event. The first terminal transition wins.
func (t *Task) Finish(result any, warning string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return
	}
	t.status = StatusDone
	t.warning = warning
	ev := t.terminalEvent(EventDone)
	ev.Warning = warning
	ev.Result = result
	t.final = &ev
	t.publish(ev)
}

// Fail marks the task failed and publishes the terminal event.
func (t *Task) Fail(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return
	}
	t.status = StatusError
	ev := t.terminalEvent(EventError)
	ev.Error = errMsg
	t.final = &ev
	t.publish(ev)
}

// Cancel requests cooperative cancellation. The runner stops dispatching new
// chunks and marks the remaining items cancelled.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// FinishCancelled marks the task cancelled once the runner has drained and
// publishes the terminal event.
func (t *Task) FinishCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return
	}
	t.status = StatusCancelled
	ev := t.terminalEvent(EventCancelled)
	t.final = &ev
	t.publish(ev)
}

// terminalEvent builds the counter portion of a terminal event. Callers hold mu.
func (t *Task) terminalEvent(typ string) Event {
	return Event{
		Type:      typ,
		TaskID:    t.ID,
		Total:     t.Total,
		Processed: t.processed,
		Ok:        t.ok,
		Fail:      t.fail,
	}
}

// FinalEvent returns a copy of the stored terminal event, or nil while the
// task is still running.
func (t *Task) FinalEvent() *Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final == nil {
		return nil
	}
	ev := *t.final
	return &ev
}
