// Package observer turns raw tree mutations into processor triggers.
package observer

import (
	"log/slog"
	"slices"
	"time"

	"golang.org/x/net/html"

	"feedguard/internal/dom"
	"feedguard/internal/loop"
)

// AttributeFilter is the allow-list of attribute changes worth a batch.
var AttributeFilter = []string{"class", "style", "aria-label", "data-testid", "role"}

const itemSelector = `[role="article"]`

// Config tunes the scroll and visibility triggers.
type Config struct {
	// NudgeDebounce is the quiet time Nudge waits for. Default: 100ms.
	NudgeDebounce time.Duration
	// VisibleDelay is how long Visible waits before triggering. Default: 500ms.
	VisibleDelay time.Duration
}

func (c *Config) defaults() {
	if c.NudgeDebounce <= 0 {
		c.NudgeDebounce = 100 * time.Millisecond
	}
	if c.VisibleDelay <= 0 {
		c.VisibleDelay = 500 * time.Millisecond
	}
}

// Recorder counts observed batches.
type Recorder interface {
	MutationBatch(meaningful bool)
}

// Coalescer observes one root at a time and calls trigger for meaningful
// batches. The trigger is expected to throttle itself.
type Coalescer struct {
	tree    *dom.Tree
	sched   loop.Scheduler
	trigger func() bool
	cfg     Config
	log     *slog.Logger
	rec     Recorder

	obs          *dom.Observation
	nudgeTimer   loop.Timer
	visibleTimer loop.Timer
}

// New returns an unbound Coalescer.
func New(tree *dom.Tree, sched loop.Scheduler, trigger func() bool, cfg Config, log *slog.Logger, rec Recorder) *Coalescer {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Coalescer{tree: tree, sched: sched, trigger: trigger, cfg: cfg, log: log, rec: rec}
}

// Bind starts observing root, releasing any previous observation first.
func (c *Coalescer) Bind(root *html.Node) *dom.Observation {
	c.Unbind()
	c.obs = c.tree.Observe(root, dom.ObserveOptions{
		ChildList:       true,
		Subtree:         true,
		AttributeFilter: AttributeFilter,
	}, c.handle)
	return c.obs
}

// Unbind disconnects the observation and cancels pending triggers.
func (c *Coalescer) Unbind() {
	if c.obs != nil {
		c.obs.Disconnect()
		c.obs = nil
	}
	stop(&c.nudgeTimer)
	stop(&c.visibleTimer)
}

// Bound reports whether an observation is live.
func (c *Coalescer) Bound() bool { return c.obs.Connected() }

func (c *Coalescer) handle(b dom.Batch) {
	ok := Meaningful(b)
	if c.rec != nil {
		c.rec.MutationBatch(ok)
	}
	if !ok {
		return
	}
	c.log.Debug("observer: meaningful batch", "batch", b.ID, "records", len(b.Records))
	c.trigger()
}

// Nudge triggers a batch once scrolling has been quiet for NudgeDebounce.
func (c *Coalescer) Nudge() {
	if !c.Bound() {
		return
	}
	stop(&c.nudgeTimer)
	c.nudgeTimer = c.sched.After(c.cfg.NudgeDebounce, func() {
		c.nudgeTimer = nil
		c.trigger()
	})
}

// Visible triggers a batch VisibleDelay after the page became visible.
func (c *Coalescer) Visible() {
	if !c.Bound() {
		return
	}
	stop(&c.visibleTimer)
	c.visibleTimer = c.sched.After(c.cfg.VisibleDelay, func() {
		c.visibleTimer = nil
		c.trigger()
	})
}

// Meaningful reports whether b added something that is or holds a feed item,
// or changed an allow-listed attribute. Internal records, such as the style
// Hide writes, never count.
func Meaningful(b dom.Batch) bool {
	for _, r := range b.Records {
		switch r.Type {
		case dom.ChildList:
			for _, n := range r.Added {
				if n.Type == html.ElementNode && dom.MatchesOrContains(n, itemSelector) {
					return true
				}
			}
		case dom.Attributes:
			if !r.Internal && slices.Contains(AttributeFilter, r.AttributeName) {
				return true
			}
		}
	}
	return false
}

func stop(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
