package reactor

import (
	"container/heap"
	"time"

	"github.com/benbjohnson/clock"
)

type taskState uint8

const (
	taskIdle taskState = iota
	taskScheduled
	taskFiring
)

// Task is a one-shot callback that can be re-armed after it fires.
type Task struct {
	queue    *TimerQueue
	fn       func()
	deadline time.Time
	index    int
	state    taskState
}

// Reset arms the task to fire after d, replacing any earlier deadline.
func (t *Task) Reset(d time.Duration) {
	t.deadline = t.queue.clock.Now().Add(d)
	if t.state == taskScheduled {
		heap.Fix(&t.queue.tasks, t.index)
		return
	}
	t.state = taskScheduled
	heap.Push(&t.queue.tasks, t)
}

// Stop cancels the task. It reports whether a pending expiry was cancelled.
func (t *Task) Stop() bool {
	switch t.state {
	case taskScheduled:
		heap.Remove(&t.queue.tasks, t.index)
	case taskFiring:
	default:
		return false
	}
	t.state = taskIdle
	return true
}

func (t *Task) Active() bool {
	return t.state != taskIdle
}

func (t *Task) Deadline() time.Time {
	return t.deadline
}

// TimerQueue orders tasks by deadline. It belongs to the reactor thread.
type TimerQueue struct {
	clock clock.Clock
	tasks taskHeap
	batch []*Task
}

func NewTimerQueue(c clock.Clock) *TimerQueue {
	if c == nil {
		c = clock.New()
	}
	return &TimerQueue{clock: c}
}

func (q *TimerQueue) Clock() clock.Clock {
	return q.clock
}

// NewTask returns an unarmed task.
func (q *TimerQueue) NewTask(fn func()) *Task {
	return &Task{queue: q, fn: fn, index: -1}
}

func (q *TimerQueue) AfterFunc(d time.Duration, fn func()) *Task {
	task := q.NewTask(fn)
	task.Reset(d)
	return task
}

func (q *TimerQueue) NextDeadline() (time.Time, bool) {
	if len(q.tasks) == 0 {
		return time.Time{}, false
	}
	return q.tasks[0].deadline, true
}

// Remaining returns the time until the next deadline, zero if it already
// passed, or -1 when nothing is scheduled.
func (q *TimerQueue) Remaining() time.Duration {
	deadline, loaded := q.NextDeadline()
	if !loaded {
		return -1
	}
	remaining := deadline.Sub(q.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (q *TimerQueue) Waiting() bool {
	return len(q.tasks) > 0
}

// FireDue runs every task whose deadline has passed and returns how many ran.
// Tasks re-armed by a callback wait for the next call.
func (q *TimerQueue) FireDue() int {
	now := q.clock.Now()
	q.batch = q.batch[:0]
	for len(q.tasks) > 0 && !q.tasks[0].deadline.After(now) {
		task := heap.Pop(&q.tasks).(*Task)
		task.state = taskFiring
		q.batch = append(q.batch, task)
	}
	var fired int
	for index, task := range q.batch {
		q.batch[index] = nil
		if task.state != taskFiring {
			continue
		}
		task.state = taskIdle
		fired++
		task.fn()
	}
	return fired
}

type taskHeap []*Task

func (h taskHeap) Len() int {
	return len(h)
}

func (h taskHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}
