package processor

import (
	"time"

	"feedguard/internal/classifier"
	"feedguard/internal/loop"
)

type readyState int

const (
	stateWaiting readyState = iota
	stateReady
	stateFailed
)

func (s readyState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	}
	return "waiting"
}

// readiness polls a classifier.Source through the scheduler until the
// registry shows up or the attempt budget runs out. It never blocks.
type readiness struct {
	source   classifier.Source
	sched    loop.Scheduler
	attempts int
	interval time.Duration

	state readyState
	tries int
	timer loop.Timer
}

// wait calls onReady once the registry is available, or onFail after
// attempts polls. An available registry is delivered synchronously.
func (r *readiness) wait(onReady func(*classifier.Registry), onFail func()) {
	r.cancel()
	r.state = stateWaiting
	r.tries = 0
	r.poll(onReady, onFail)
}

func (r *readiness) poll(onReady func(*classifier.Registry), onFail func()) {
	r.timer = nil
	r.tries++
	if reg, ok := r.source.Registry(); ok {
		r.state = stateReady
		onReady(reg)
		return
	}
	if r.tries >= r.attempts {
		r.state = stateFailed
		onFail()
		return
	}
	r.timer = r.sched.After(r.interval, func() { r.poll(onReady, onFail) })
}

func (r *readiness) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
