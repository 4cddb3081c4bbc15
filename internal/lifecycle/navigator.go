package lifecycle

import (
	"time"

	"feedguard/internal/dom"
	"feedguard/internal/loop"
)

// ChangeFunc is told the new location. Force is set for full document loads,
// which need a rebind even when the address did not change.
type ChangeFunc func(location string, force bool)

// Navigator reports logical location changes.
type Navigator interface {
	Start(onChange ChangeFunc)
	Stop()
}

// Poller samples the tree location on a fixed interval.
type Poller struct {
	Tree     *dom.Tree
	Sched    loop.Scheduler
	Interval time.Duration

	last  string
	timer loop.Timer
}

// Start begins polling. The current location is the baseline.
func (p *Poller) Start(onChange ChangeFunc) {
	p.Stop()
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	p.last = p.Tree.Location()
	p.timer = p.Sched.Every(p.Interval, func() {
		loc := p.Tree.Location()
		if loc == p.last {
			return
		}
		p.last = loc
		onChange(loc, false)
	})
}

// Stop cancels polling.
func (p *Poller) Stop() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// HookNavigator listens to the tree's history hooks and reports each change
// after Delay.
type HookNavigator struct {
	Tree  *dom.Tree
	Sched loop.Scheduler
	Delay time.Duration

	cancel  func()
	pending []loop.Timer
}

// Start subscribes to history changes.
func (h *HookNavigator) Start(onChange ChangeFunc) {
	h.Stop()
	if h.Delay <= 0 {
		h.Delay = 100 * time.Millisecond
	}
	h.cancel = h.Tree.OnNavigate(func(ev dom.NavEvent) {
		var t loop.Timer
		t = h.Sched.After(h.Delay, func() {
			h.drop(t)
			onChange(ev.Location, ev.Kind == dom.NavLoad)
		})
		h.pending = append(h.pending, t)
	})
}

func (h *HookNavigator) drop(t loop.Timer) {
	for i, p := range h.pending {
		if p == t {
			h.pending = append(h.pending[:i], h.pending[i+1:]...)
			return
		}
	}
}

// Stop unsubscribes and drops pending notifications.
func (h *HookNavigator) Stop() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	for _, t := range h.pending {
		t.Stop()
	}
	h.pending = nil
}
