package interfaces

import "time"

// CancelFunc cancels a scheduled task. It is safe to call more than once and
// after the task already ran.
type CancelFunc func()

// Scheduler runs a task once after a delay
type Scheduler interface {
	ScheduleAfter(d time.Duration, task func()) CancelFunc
}
