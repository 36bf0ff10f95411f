package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual clock for tests: tasks only run from Advance.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending []*manualTask
	seq     int
}

type manualTask struct {
	task *Task
	due  time.Time
	seq  int
	fn   func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(delay time.Duration, fn func()) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &Task{}
	m.pending = append(m.pending, &manualTask{
		task: t,
		due:  m.now.Add(delay),
		seq:  m.seq,
		fn:   fn,
	})
	return t
}

// Advance moves the clock forward and runs every task that became due, in
// due order. Functions run on the calling goroutine without the lock held.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.SliceStable(m.pending, func(i, j int) bool {
			if m.pending[i].due.Equal(m.pending[j].due) {
				return m.pending[i].seq < m.pending[j].seq
			}
			return m.pending[i].due.Before(m.pending[j].due)
		})
		if len(m.pending) == 0 || m.pending[0].due.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.now = next.due
		m.mu.Unlock()

		if next.task.claim() {
			next.fn()
		}
	}
}

// Pending counts tasks that are neither fired nor cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, p := range m.pending {
		if !p.task.Cancelled() {
			n++
		}
	}
	return n
}
