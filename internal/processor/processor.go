// Package processor runs throttled classification batches over the feed
// items that appeared since the previous batch.
package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"feedguard/internal/cache"
	"feedguard/internal/classifier"
	"feedguard/internal/container"
	"feedguard/internal/dom"
	"feedguard/internal/loop"
	"feedguard/internal/models"
	"feedguard/internal/sponsored"
)

// ErrRegistryUnavailable is logged when the registry never showed up within
// the readiness budget.
var ErrRegistryUnavailable = errors.New("processor: classifier registry unavailable")

// ItemSelector matches feed-item-shaped nodes.
const ItemSelector = `div[role="article"], div[role="feed"] > div`

// QuickReason is reported for items hidden by the pre-check.
const QuickReason = "Sponsored Content (Quick Detection)"

// RuleQuick labels pre-check hides in metrics and hide events.
const RuleQuick = "preCheck"

// Recorder receives batch metrics. The metrics package implements it.
type Recorder interface {
	BatchRun(nodes int, took time.Duration)
	BatchDropped()
	Hidden(rule string)
	RegistryWait(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) BatchRun(int, time.Duration) {}
func (nopRecorder) BatchDropped()               {}
func (nopRecorder) Hidden(string)               {}
func (nopRecorder) RegistryWait(bool)           {}

// HideEvent is emitted for every container the processor hid.
type HideEvent struct {
	Node   *html.Node
	Rule   string
	Reason string
}

// Options configure a Processor. Zero values take defaults.
type Options struct {
	Throttle      time.Duration
	ReadyAttempts int
	ReadyInterval time.Duration
	Logger        *slog.Logger
	Recorder      Recorder
}

func (o *Options) applyDefaults() {
	if o.Throttle <= 0 {
		o.Throttle = 200 * time.Millisecond
	}
	if o.ReadyAttempts <= 0 {
		o.ReadyAttempts = 15
	}
	if o.ReadyInterval <= 0 {
		o.ReadyInterval = 300 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
}

// Deps are the collaborators a Processor is wired to.
type Deps struct {
	Tree      *dom.Tree
	Scheduler loop.Scheduler
	Registry  classifier.Source
	Settings  func() *models.Settings
	Arena     *cache.Arena
	Sponsored *sponsored.Classifier
	PreCheck  *sponsored.PreChecker
	Resolver  *container.Resolver
}

// Processor owns markers, counters and the classification cache. All
// methods must run on the scheduler goroutine.
type Processor struct {
	deps    Deps
	opts    Options
	limiter *rate.Limiter
	results *cache.Lifetime[verdict]
	ready   *readiness

	root     *html.Node
	inFlight bool
	epoch    uint64
	stats    models.Stats
	onHide   []func(HideEvent)
}

// New wires a Processor.
func New(d Deps, opts Options) *Processor {
	opts.applyDefaults()
	if d.Resolver == nil {
		d.Resolver = container.New(opts.Logger)
	}
	return &Processor{
		deps:    d,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Throttle), 1),
		results: cache.NewLifetime[verdict](d.Arena),
		ready: &readiness{
			source:   d.Registry,
			sched:    d.Scheduler,
			attempts: opts.ReadyAttempts,
			interval: opts.ReadyInterval,
		},
	}
}

// SetRoot scopes batches to root. A nil root scopes them to the document.
func (p *Processor) SetRoot(root *html.Node) { p.root = root }

// OnHide registers fn for every hidden container.
func (p *Processor) OnHide(fn func(HideEvent)) { p.onHide = append(p.onHide, fn) }

// ProcessBatch runs a batch unless one is in flight or the previous one
// started less than the throttle interval ago. Dropped calls are not
// queued. It reports whether a batch started.
func (p *Processor) ProcessBatch() bool {
	if p.inFlight {
		p.opts.Recorder.BatchDropped()
		return false
	}
	if !p.limiter.AllowN(p.deps.Scheduler.Now(), 1) {
		p.opts.Recorder.BatchDropped()
		return false
	}
	return p.run()
}

// ProcessNow runs a batch regardless of the throttle. The in-flight guard
// still applies.
func (p *Processor) ProcessNow() bool {
	if p.inFlight {
		return false
	}
	return p.run()
}

func (p *Processor) scope() *html.Node {
	if p.root != nil {
		return p.root
	}
	return p.deps.Tree.Document()
}

func (p *Processor) pending() []*html.Node {
	var out []*html.Node
	for _, n := range dom.Select(p.scope(), ItemSelector) {
		if !dom.IsMarked(n) {
			out = append(out, n)
		}
	}
	return out
}

func (p *Processor) run() bool {
	start := time.Now()
	p.inFlight = true
	epoch := p.epoch
	nodes := p.pending()
	if len(nodes) == 0 {
		p.inFlight = false
		return true
	}

	// Mark everything before any classification runs.
	for _, n := range nodes {
		p.deps.Tree.Mark(n)
	}
	p.stats.Processed += len(nodes)

	var regular []*html.Node
	if p.settings().BlockSponsored {
		for _, n := range nodes {
			if p.preCheck(n) {
				p.suppress(n, RuleQuick, QuickReason)
				continue
			}
			regular = append(regular, n)
		}
	} else {
		regular = nodes
	}

	if len(regular) == 0 {
		p.finish(epoch, len(nodes), start)
		return true
	}

	p.ready.wait(func(reg *classifier.Registry) {
		if epoch != p.epoch {
			return
		}
		p.opts.Recorder.RegistryWait(true)
		for _, n := range regular {
			p.classifyAndHide(reg, n)
		}
		p.finish(epoch, len(nodes), start)
	}, func() {
		if epoch != p.epoch {
			return
		}
		p.opts.Recorder.RegistryWait(false)
		// Unmark so the next batch picks these nodes up again.
		for _, n := range regular {
			p.deps.Tree.Unmark(n)
		}
		p.stats.Processed -= len(regular)
		p.opts.Logger.Warn("processor: regular items left for next batch",
			"err", fmt.Errorf("%w after %d attempts", ErrRegistryUnavailable, p.opts.ReadyAttempts),
			"items", len(regular))
		p.finish(epoch, len(nodes)-len(regular), start)
	})
	return true
}

func (p *Processor) finish(epoch uint64, n int, start time.Time) {
	if epoch != p.epoch {
		return
	}
	p.inFlight = false
	p.opts.Recorder.BatchRun(n, time.Since(start))
	p.opts.Logger.Debug("processor: batch done", "items", n, "hidden", p.stats.Hidden)
}

func (p *Processor) settings() *models.Settings {
	if p.deps.Settings == nil {
		s := models.DefaultSettings()
		return &s
	}
	return p.deps.Settings()
}

func (p *Processor) preCheck(n *html.Node) (hit bool) {
	defer p.contain("pre-check", n, func() { hit = false })
	return p.deps.PreCheck.Check(n)
}

func (p *Processor) classifyAndHide(reg *classifier.Registry, n *html.Node) {
	defer p.contain("classify", n, nil)
	rule, res := p.classifyWith(reg, n)
	if res.Matched {
		p.suppress(n, rule, res.Reason)
	}
}

// Classify returns the cached result for n, classifying it on first call.
// Without a registry the node is reported unmatched and nothing is cached.
func (p *Processor) Classify(n *html.Node) models.ClassificationResult {
	if v, ok := p.results.Get(n); ok {
		return v.result
	}
	reg, ok := p.deps.Registry.Registry()
	if !ok {
		return models.ClassificationResult{}
	}
	_, res := p.classifyWith(reg, n)
	return res
}

func (p *Processor) classifyWith(reg *classifier.Registry, n *html.Node) (string, models.ClassificationResult) {
	if v, ok := p.results.Get(n); ok {
		return v.rule, v.result
	}
	rule, reason := reg.Match(n, p.settings())
	res := models.ClassificationResult{Matched: reason != "", Reason: reason}
	p.results.Set(n, verdict{rule: rule, result: res})
	return rule, res
}

func (p *Processor) suppress(n *html.Node, rule, reason string) {
	if rule == RuleQuick {
		p.results.Set(n, verdict{rule: rule, result: models.ClassificationResult{Matched: true, Reason: reason}})
	}
	if rule == RuleQuick || rule == models.RuleSponsored {
		p.stats.Sponsored++
	}
	target := p.deps.Resolver.Resolve(n)
	if !p.deps.Tree.Hide(target, reason) {
		return
	}
	p.stats.Hidden++
	p.opts.Recorder.Hidden(rule)
	if p.settings().Verbose() {
		p.opts.Logger.Debug("processor: hid item", "rule", rule, "reason", reason, "node", dom.Snippet(target, 120))
	}
	ev := HideEvent{Node: target, Rule: rule, Reason: reason}
	for _, fn := range p.onHide {
		fn(ev)
	}
}

// contain recovers a panic in one node's step so the batch carries on.
func (p *Processor) contain(step string, n *html.Node, fallback func()) {
	r := recover()
	if r == nil {
		return
	}
	if fallback != nil {
		fallback()
	}
	if p.settings().Verbose() {
		p.opts.Logger.Debug("processor: item failed", "step", step, "err", r, "node", dom.Snippet(n, 120))
		return
	}
	p.opts.Logger.Debug("processor: item failed", "step", step, "err", r)
}

// verdict is a cached result plus the rule that produced it.
type verdict struct {
	rule   string
	result models.ClassificationResult
}

// Stats returns the counters. CacheSize is the number of cached results.
func (p *Processor) Stats() models.Stats {
	s := p.stats
	s.CacheSize = p.results.Len()
	return s
}

// ClearCache drops every node id and cached result, including the
// sponsored and pre-check caches bound to the same arena.
func (p *Processor) ClearCache() {
	p.deps.Arena.Clear()
	if p.deps.PreCheck != nil {
		p.deps.PreCheck.Clear()
	}
}

// Reset abandons any in-flight batch, zeroes the counters and clears the
// caches.
func (p *Processor) Reset() {
	p.epoch++
	p.ready.cancel()
	p.inFlight = false
	p.stats = models.Stats{}
	p.limiter = rate.NewLimiter(rate.Every(p.opts.Throttle), 1)
	p.ClearCache()
}

// Waiting reports whether a batch is parked on the registry.
func (p *Processor) Waiting() bool {
	return p.inFlight && p.ready.state == stateWaiting && p.ready.timer != nil
}
