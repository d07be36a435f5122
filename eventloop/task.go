// Package eventloop implements the engine's cooperative task scheduler:
// macrotask, microtask, render, and idle queues drained on one logical
// thread, with the ordering guarantees asynchronous script execution relies
// on.
package eventloop

import "time"

// TaskType identifies which queue owns a task.
type TaskType int

const (
	Macrotask TaskType = iota
	Microtask
	RenderCallback
	IdleCallback
)

var taskTypeNames = map[TaskType]string{
	Macrotask:      "macrotask",
	Microtask:      "microtask",
	RenderCallback: "render",
	IdleCallback:   "idle",
}

func (t TaskType) String() string {
	if name, ok := taskTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Task is one deferred callback. A task is owned by exactly one queue at a
// time; cancellation is a soft delete (the flag is set and the entry swept
// lazily wherever it is next encountered).
type Task struct {
	ID        uint64
	Type      TaskType
	Priority  int
	Callback  func()
	Scheduled time.Time
	Due       time.Time
	Interval  time.Duration
	Recurring bool
	Cancelled bool
}

// Cancel soft-deletes the task.
func (t *Task) Cancel() { t.Cancelled = true }

// Ready reports whether the task is due at the given instant.
func (t *Task) Ready(now time.Time) bool {
	return !t.Due.After(now)
}

// ---------------------------------------------------------------------------
// Macrotask priority queue
// ---------------------------------------------------------------------------

// taskQueue orders macrotasks by priority (lower wins), then due time, then
// scheduling order. It implements container/heap.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	if !q[i].Due.Equal(q[j].Due) {
		return q[i].Due.Before(q[j].Due)
	}
	return q[i].ID < q[j].ID
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x interface{}) {
	*q = append(*q, x.(*Task))
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return task
}
