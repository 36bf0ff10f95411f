package scheduler

import (
	"sync"
	"time"
)

// Scheduler runs a function once after a delay.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) *Task
}

type taskState int

const (
	taskScheduled taskState = iota
	taskFired
	taskCancelled
)

// Task is a handle to a scheduled function. Cancel and firing are mutually
// exclusive: whichever happens first wins, the other becomes a no-op.
type Task struct {
	mu    sync.Mutex
	state taskState
	stop  func() bool
}

// Cancel reports whether this call prevented the function from running.
// It is safe to call on a nil task, and more than once.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != taskScheduled {
		return false
	}
	t.state = taskCancelled
	if t.stop != nil {
		t.stop()
	}
	return true
}

func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskCancelled
}

func (t *Task) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskFired
}

func (t *Task) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != taskScheduled {
		return false
	}
	t.state = taskFired
	return true
}

// Wall schedules on real timers.
type Wall struct{}

func (Wall) Schedule(delay time.Duration, fn func()) *Task {
	t := &Task{}
	t.mu.Lock()
	defer t.mu.Unlock()

	timer := time.AfterFunc(delay, func() {
		if t.claim() {
			fn()
		}
	})
	t.stop = timer.Stop
	return t
}
