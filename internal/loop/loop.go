// Package loop runs every engine task on one goroutine. Timers post their
// callbacks back into the same queue, so components never need locks around
// classification state.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Timer cancels a pending After or Every callback.
type Timer interface {
	Stop()
}

// Scheduler is what components depend on. Loop and Manual implement it.
type Scheduler interface {
	// Post queues fn to run after the current task.
	Post(fn func())
	// After runs fn on the loop once d has elapsed.
	After(d time.Duration, fn func()) Timer
	// Every runs fn on the loop every d until stopped.
	Every(d time.Duration, fn func()) Timer
	// Now is the scheduler clock.
	Now() time.Time
}

// Caller runs fn on the scheduler and returns once it has completed.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// Loop is the real-time Scheduler. Tasks sit in an unbounded queue so that
// posting, from the loop itself or from timers, never blocks.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New returns a Loop. queue is the initial task capacity (default 1024);
// the queue grows past it as needed.
func New(queue int) *Loop {
	if queue <= 0 {
		queue = 1024
	}
	return &Loop{
		tasks: make([]func(), 0, queue),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Run executes queued tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return fn, true
}

// Post queues fn without blocking. Tasks posted after the loop stopped are
// dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call posts fn and waits for it to run.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	ran := make(chan struct{})
	l.Post(func() { fn(); close(ran) })
	select {
	case <-ran:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now returns wall-clock time.
func (l *Loop) Now() time.Time { return time.Now() }

type realTimer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

func (r *realTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.t != nil {
		r.t.Stop()
	}
}

func (r *realTimer) live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.stopped
}

// After schedules fn on the loop. A timer stopped before its task runs
// never fires, even if the task was already queued.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	rt := &realTimer{}
	rt.mu.Lock()
	rt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if rt.live() {
				fn()
			}
		})
	})
	rt.mu.Unlock()
	return rt
}

// Every schedules fn repeatedly. The next tick is armed only after the
// previous one ran, so a slow task never piles up ticks.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	rt := &realTimer{}
	var arm func()
	arm = func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.stopped {
			return
		}
		rt.t = time.AfterFunc(d, func() {
			l.Post(func() {
				if !rt.live() {
					return
				}
				fn()
				arm()
			})
		})
	}
	arm()
	return rt
}
