package loop

import (
	"context"
	"sort"
	"time"
)

// Manual is a deterministic Scheduler with a virtual clock. Nothing runs
// until RunPending or Advance is called. Used by tests and one-shot scans.
type Manual struct {
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	every   time.Duration
	fn      func()
	seq     int
	stopped bool
}

func (t *manualTimer) Stop() { t.stopped = true }

// NewManual starts the virtual clock at a fixed instant.
func NewManual() *Manual {
	return &Manual{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time { return m.now }

// Post queues fn.
func (m *Manual) Post(fn func()) { m.queue = append(m.queue, fn) }

// After registers fn at now+d.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

// Every registers fn at now+d and re-arms it after each run.
func (m *Manual) Every(d time.Duration, fn func()) Timer {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, every time.Duration, fn func()) *manualTimer {
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), every: every, fn: fn, seq: m.seq}
	m.timers = append(m.timers, t)
	return t
}

// Call runs fn and drains the queue.
func (m *Manual) Call(_ context.Context, fn func()) error {
	fn()
	m.RunPending()
	return nil
}

// RunPending runs queued tasks, including ones queued while draining.
func (m *Manual) RunPending() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Pending is the number of live timers.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in time order
// and draining the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.RunPending()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		if t.at.After(m.now) {
			m.now = t.at
		}
		if t.every > 0 {
			t.at = t.at.Add(t.every)
		} else {
			t.stopped = true
		}
		t.fn()
		m.RunPending()
	}
	m.now = target
	m.compact()
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.stopped && !t.at.After(target) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	return live[0]
}

func (m *Manual) compact() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			kept = append(kept, t)
		}
	}
	m.timers = kept
}
