// Package scheduler runs delayed one-shot tasks behind interfaces.Scheduler
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
)

// Timer schedules tasks on the runtime timer. Tasks run on their own goroutine.
type Timer struct{}

var _ interfaces.Scheduler = Timer{}

func NewTimer() Timer {
	return Timer{}
}

func (Timer) ScheduleAfter(d time.Duration, task func()) interfaces.CancelFunc {
	t := time.AfterFunc(d, task)
	return func() { t.Stop() }
}

type manualTask struct {
	seq       int
	due       time.Duration
	task      func()
	cancelled bool
}

// Manual is a scheduler driven by Advance, for deterministic tests. Due tasks
// run synchronously on the goroutine calling Advance, in due time order.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

var _ interfaces.Scheduler = (*Manual)(nil)

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) ScheduleAfter(d time.Duration, task func()) interfaces.CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTask{seq: m.seq, due: m.now + d, task: task}
	m.tasks = append(m.tasks, t)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
		m.remove(t)
	}
}

// Advance moves the clock forward by d and runs every task that became due.
// Tasks scheduled by a running task are run too if they fall due within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		m.remove(next)
		m.mu.Unlock()

		next.task()
	}
}

// Pending returns the number of scheduled tasks not yet run or cancelled
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Elapsed returns how far the clock was advanced
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) nextDue(target time.Duration) *manualTask {
	due := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.cancelled && t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

func (m *Manual) remove(t *manualTask) {
	for i, candidate := range m.tasks {
		if candidate == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}
