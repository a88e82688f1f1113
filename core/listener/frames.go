package listener

import (
	"sync"
	"time"
)

// FrameScheduler runs fn at the next frame boundary.
type FrameScheduler interface {
	Schedule(fn func())
}

type timerFrames struct {
	delay time.Duration
}

// NewTimerFrames schedules callbacks on a timer, one frame period later.
func NewTimerFrames(delay time.Duration) FrameScheduler {
	return timerFrames{delay: delay}
}

func (f timerFrames) Schedule(fn func()) {
	time.AfterFunc(f.delay, fn)
}

// ManualFrames queues callbacks until Flush is called.
type ManualFrames struct {
	mu    sync.Mutex
	queue []func()
}

func (f *ManualFrames) Schedule(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fn)
}

// Pending returns the number of queued callbacks.
func (f *ManualFrames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Flush runs every queued callback and returns how many ran.
func (f *ManualFrames) Flush() int {
	f.mu.Lock()
	queue := f.queue
	f.queue = nil
	f.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}
