package eventloop

import (
	"container/heap"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("petrel.eventloop")

// Options tunes a loop. Zero values fall back to the defaults below.
type Options struct {
	FrameInterval         time.Duration
	MaxMicrotasksPerCycle int
	LongTaskThreshold     time.Duration
	IdleBudget            time.Duration

	// Now overrides the clock, for deterministic tests.
	Now func() time.Time
}

// Stats counts loop activity. Advisory only.
type Stats struct {
	MacrotasksRun      uint64
	MicrotasksRun      uint64
	RenderCallbacksRun uint64
	IdleCallbacksRun   uint64
	LongTasks          uint64
	MicrotaskOverflows uint64
}

// Loop drives the four task queues. It is single-threaded and cooperative:
// callers drain it from the one goroutine that owns the engine, and a
// running task is never preempted.
type Loop struct {
	now func() time.Time

	macrotasks taskQueue
	microtasks []*Task
	renders    []*Task
	idles      []*Task
	tasks      map[uint64]*Task

	nextID        uint64
	frameInterval time.Duration
	maxMicrotasks int
	longThreshold time.Duration
	idleBudget    time.Duration
	lastRender    time.Time

	stats Stats
}

// NewLoop creates a loop with the given options.
func NewLoop(opts Options) *Loop {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	if opts.MaxMicrotasksPerCycle <= 0 {
		opts.MaxMicrotasksPerCycle = 1000
	}
	if opts.LongTaskThreshold <= 0 {
		opts.LongTaskThreshold = 50 * time.Millisecond
	}
	if opts.IdleBudget <= 0 {
		opts.IdleBudget = 4 * time.Millisecond
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	l := &Loop{
		now:           nowFn,
		tasks:         make(map[uint64]*Task),
		nextID:        1,
		frameInterval: opts.FrameInterval,
		maxMicrotasks: opts.MaxMicrotasksPerCycle,
		longThreshold: opts.LongTaskThreshold,
		idleBudget:    opts.IdleBudget,
	}
	l.lastRender = nowFn()
	heap.Init(&l.macrotasks)
	return l
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats { return l.stats }

// PendingTasks returns the number of live (uncancelled) tasks across all
// queues.
func (l *Loop) PendingTasks() int {
	n := 0
	for _, t := range l.tasks {
		if !t.Cancelled {
			n++
		}
	}
	return n
}

// newTask registers a task in its queue.
func (l *Loop) newTask(typ TaskType, priority int, cb func(), delay, interval time.Duration, recurring bool) *Task {
	now := l.now()
	t := &Task{
		ID:        l.nextID,
		Type:      typ,
		Priority:  priority,
		Callback:  cb,
		Scheduled: now,
		Due:       now.Add(delay),
		Interval:  interval,
		Recurring: recurring,
	}
	l.nextID++
	l.tasks[t.ID] = t
	switch typ {
	case Macrotask:
		heap.Push(&l.macrotasks, t)
	case Microtask:
		l.microtasks = append(l.microtasks, t)
	case RenderCallback:
		l.renders = append(l.renders, t)
	case IdleCallback:
		l.idles = append(l.idles, t)
	}
	return t
}

// ---------------------------------------------------------------------------
// Scheduler API
// ---------------------------------------------------------------------------

// ScheduleTimeout schedules a one-shot macrotask after delay.
func (l *Loop) ScheduleTimeout(cb func(), delay time.Duration) uint64 {
	return l.newTask(Macrotask, 0, cb, delay, 0, false).ID
}

// ScheduleInterval schedules a recurring macrotask. A non-positive interval
// clamps to one millisecond; a zero-interval task would be due again the
// instant it reschedules and a synchronous drain would never finish.
func (l *Loop) ScheduleInterval(cb func(), interval time.Duration) uint64 {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return l.newTask(Macrotask, 0, cb, interval, interval, true).ID
}

// ScheduleMacrotask schedules an immediately-ready macrotask with an
// explicit priority (lower runs first).
func (l *Loop) ScheduleMacrotask(cb func(), priority int) uint64 {
	return l.newTask(Macrotask, priority, cb, 0, 0, false).ID
}

// ScheduleMicrotask queues a microtask.
func (l *Loop) ScheduleMicrotask(cb func()) uint64 {
	return l.newTask(Microtask, 0, cb, 0, 0, false).ID
}

// ScheduleAnimationFrame queues a render callback for the next frame pass.
func (l *Loop) ScheduleAnimationFrame(cb func()) uint64 {
	return l.newTask(RenderCallback, 0, cb, 0, 0, false).ID
}

// ScheduleIdleCallback queues an idle callback.
func (l *Loop) ScheduleIdleCallback(cb func()) uint64 {
	return l.newTask(IdleCallback, 0, cb, 0, 0, false).ID
}

// cancel soft-deletes a task of the expected type.
func (l *Loop) cancel(id uint64, typ TaskType) bool {
	t, ok := l.tasks[id]
	if !ok || t.Type != typ || t.Cancelled {
		return false
	}
	t.Cancel()
	delete(l.tasks, id)
	return true
}

// CancelTimeout cancels a pending timeout.
func (l *Loop) CancelTimeout(id uint64) bool { return l.cancel(id, Macrotask) }

// CancelInterval cancels a recurring macrotask.
func (l *Loop) CancelInterval(id uint64) bool { return l.cancel(id, Macrotask) }

// CancelMicrotask cancels a queued microtask.
func (l *Loop) CancelMicrotask(id uint64) bool { return l.cancel(id, Microtask) }

// CancelAnimationFrame cancels a queued render callback.
func (l *Loop) CancelAnimationFrame(id uint64) bool { return l.cancel(id, RenderCallback) }

// CancelIdleCallback cancels a queued idle callback.
func (l *Loop) CancelIdleCallback(id uint64) bool { return l.cancel(id, IdleCallback) }

// ---------------------------------------------------------------------------
// Draining
// ---------------------------------------------------------------------------

// runTask invokes one callback, catching panics and flagging long tasks
// after the fact. Task failures never halt the loop.
func (l *Loop) runTask(t *Task) {
	start := l.now()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s task %d panicked: %v", t.Type, t.ID, r)
		}
		if elapsed := l.now().Sub(start); elapsed > l.longThreshold {
			l.stats.LongTasks++
			log.Warningf("long %s task %d: %s (threshold %s)",
				t.Type, t.ID, elapsed, l.longThreshold)
		}
	}()
	t.Callback()
}

// popReadyMacrotask removes and returns the best (priority, due, id) ready
// macrotask, or nil if none is due. Selection is among ready tasks only; a
// pending timer never shadows a due task with a higher priority number.
// Cancelled entries are swept on every call.
func (l *Loop) popReadyMacrotask(now time.Time) *Task {
	live := l.macrotasks[:0]
	swept := false
	for _, t := range l.macrotasks {
		if t.Cancelled {
			swept = true
			continue
		}
		live = append(live, t)
	}
	if swept {
		l.macrotasks = live
		heap.Init(&l.macrotasks)
	}

	best := -1
	for idx, t := range l.macrotasks {
		if !t.Ready(now) {
			continue
		}
		if best < 0 || l.macrotasks.Less(idx, best) {
			best = idx
		}
	}
	if best < 0 {
		return nil
	}
	return heap.Remove(&l.macrotasks, best).(*Task)
}

// runMacrotask runs one macrotask and reschedules it if recurring.
func (l *Loop) runMacrotask(t *Task) {
	l.runTask(t)
	l.stats.MacrotasksRun++
	if t.Recurring && !t.Cancelled {
		t.Due = l.now().Add(t.Interval)
		heap.Push(&l.macrotasks, t)
	} else {
		delete(l.tasks, t.ID)
	}
}

// DrainMicrotasks runs the entire microtask queue, including microtasks
// enqueued by microtasks, bounded by the per-cycle cap.
func (l *Loop) DrainMicrotasks() {
	run := 0
	for len(l.microtasks) > 0 {
		if run >= l.maxMicrotasks {
			l.stats.MicrotaskOverflows++
			log.Warningf("microtask cap %d hit; deferring %d microtasks to next cycle",
				l.maxMicrotasks, len(l.microtasks))
			return
		}
		t := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		if t.Cancelled {
			continue
		}
		delete(l.tasks, t.ID)
		l.runTask(t)
		l.stats.MicrotasksRun++
		run++
	}
}

// runRenderCallbacks runs and clears the render queue.
func (l *Loop) runRenderCallbacks() {
	pending := l.renders
	l.renders = nil
	for _, t := range pending {
		if t.Cancelled {
			continue
		}
		delete(l.tasks, t.ID)
		l.runTask(t)
		l.stats.RenderCallbacksRun++
	}
	l.lastRender = l.now()
}

// RunIteration performs one loop turn: at most one ready macrotask, a full
// microtask drain, a render pass when the frame interval has elapsed, and
// idle callbacks in whatever budget remains before the next frame boundary.
func (l *Loop) RunIteration() {
	now := l.now()

	if t := l.popReadyMacrotask(now); t != nil {
		l.runMacrotask(t)
	}

	l.DrainMicrotasks()

	if l.now().Sub(l.lastRender) >= l.frameInterval {
		l.runRenderCallbacks()
	}

	// Idle work runs in the gap before the next frame boundary, capped by
	// the configured idle budget.
	deadline := l.lastRender.Add(l.frameInterval)
	if d := l.now().Add(l.idleBudget); d.Before(deadline) {
		deadline = d
	}
	for len(l.idles) > 0 {
		if !l.now().Before(deadline) {
			break
		}
		t := l.idles[0]
		l.idles = l.idles[1:]
		if t.Cancelled {
			continue
		}
		delete(l.tasks, t.ID)
		l.runTask(t)
		l.stats.IdleCallbacksRun++
	}
}

// ProcessPendingTasks drains synchronously: microtasks queued by the task
// that just finished run first, then ready macrotasks alternate with full
// microtask drains until no macrotask is immediately ready, and finally any
// remaining microtasks and render callbacks flush once.
func (l *Loop) ProcessPendingTasks() {
	l.DrainMicrotasks()
	for {
		t := l.popReadyMacrotask(l.now())
		if t == nil {
			break
		}
		l.runMacrotask(t)
		l.DrainMicrotasks()
	}
	l.DrainMicrotasks()
	l.runRenderCallbacks()
}
