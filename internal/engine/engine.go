// Package engine wires the classification pipeline together and is the
// surface hosts talk to.
//
// Every method except Start, Stop, Do and Mutate touches loop-confined state
// and must run on the scheduler goroutine; from elsewhere wrap the call in
// Do.
package engine

import (
	"context"
	"log/slog"

	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/classifier"
	"feedguard/internal/config"
	"feedguard/internal/container"
	"feedguard/internal/dom"
	"feedguard/internal/lifecycle"
	"feedguard/internal/loop"
	"feedguard/internal/metrics"
	"feedguard/internal/models"
	"feedguard/internal/observer"
	"feedguard/internal/processor"
	"feedguard/internal/sponsored"
	"feedguard/internal/sweeper"
)

// Scheduler is what the engine runs on: loop.Loop or loop.Manual.
type Scheduler interface {
	loop.Scheduler
	loop.Caller
}

// Options configure an Engine.
type Options struct {
	Settings models.Settings
	Engine   config.EngineConfig
	Logger   *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Engine owns one content tree and the pipeline watching it.
type Engine struct {
	opts  Options
	log   *slog.Logger
	sched Scheduler
	tree  *dom.Tree

	arena     *cache.Arena
	handle    *classifier.Handle
	registry  *classifier.Registry
	sponsored *sponsored.Classifier
	pre       *sponsored.PreChecker
	proc      *processor.Processor
	coalescer *observer.Coalescer
	manager   *lifecycle.Manager
	sweeper   *sweeper.Sweeper

	hidden   []models.HiddenItem
	onHidden []func(models.HiddenItem)
}

// New builds an engine over doc. Nothing runs until Start.
func New(doc *html.Node, location string, sched Scheduler, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := config.Config{Settings: opts.Settings, Engine: opts.Engine}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts.Settings, opts.Engine = cfg.Settings, cfg.Engine

	e := &Engine{
		opts:   opts,
		log:    opts.Logger,
		sched:  sched,
		arena:  cache.NewArena(),
		handle: &classifier.Handle{},
	}
	e.tree = dom.New(doc, location, dom.WithDispatcher(sched.Post))

	ec := opts.Engine
	e.sponsored = sponsored.New(e.arena, sponsored.Options{
		FallbackSpanLimit:  ec.FallbackSpanLimit,
		FallbackSpanMaxLen: ec.FallbackSpanMaxLen,
		DetectionLogCap:    ec.DetectionLogCap,
		SuspectedCap:       ec.SuspectedCap,
		Verbose:            opts.Settings.Verbose(),
		Logger:             e.log,
		Now:                sched.Now,
		Location:           e.tree.Location,
	})
	e.pre = sponsored.NewPreChecker(e.arena)

	e.registry = classifier.NewRegistry(e.log)
	if err := classifier.RegisterDefaults(e.registry, classifier.Defaults{
		Sponsored: e.sponsored,
		Location:  e.tree.Location,
	}); err != nil {
		return nil, err
	}

	resolver := container.New(e.log)
	resolver.MaxDepth = ec.MaxDepth
	procOpts := processor.Options{
		Throttle:      ec.Throttle,
		ReadyAttempts: ec.ReadyAttempts,
		ReadyInterval: ec.ReadyInterval,
		Logger:        e.log,
	}
	var obsRec observer.Recorder
	var lifeRec lifecycle.Recorder
	var sweepRec sweeper.Recorder
	if opts.Metrics != nil {
		procOpts.Recorder = opts.Metrics
		obsRec, lifeRec, sweepRec = opts.Metrics, opts.Metrics, opts.Metrics
	}
	e.proc = processor.New(processor.Deps{
		Tree:      e.tree,
		Scheduler: sched,
		Registry:  e.handle,
		Settings:  e.Settings,
		Arena:     e.arena,
		Sponsored: e.sponsored,
		PreCheck:  e.pre,
		Resolver:  resolver,
	}, procOpts)
	e.proc.OnHide(e.recordHide)

	e.coalescer = observer.New(e.tree, sched, e.proc.ProcessBatch, observer.Config{
		NudgeDebounce: ec.NudgeDebounce,
		VisibleDelay:  ec.VisibleDelay,
	}, e.log, obsRec)

	e.manager = lifecycle.New(e.tree, sched, e.coalescer, lifecycle.Hooks{
		OnBind:   e.bound,
		OnUnbind: e.unbound,
	}, lifecycle.Config{
		RootRetry:    ec.RootRetry,
		RootRetryMax: ec.RootRetryMax,
		RootAttempts: ec.RootAttempts,
		SettleDelay:  ec.SettleDelay,
	}, e.log, lifeRec, e.navigators(ec)...)

	e.sweeper = &sweeper.Sweeper{
		Tree:       e.tree,
		Sched:      sched,
		Arena:      e.arena,
		Sponsored:  e.sponsored,
		PreCheck:   e.pre,
		Interval:   ec.SweepInterval,
		Logger:     e.log,
		Recorder:   sweepRec,
		AfterSweep: e.manager.Verify,
	}
	return e, nil
}

func (e *Engine) navigators(ec config.EngineConfig) []lifecycle.Navigator {
	var navs []lifecycle.Navigator
	if ec.Navigation == config.NavPoll || ec.Navigation == config.NavBoth {
		navs = append(navs, &lifecycle.Poller{Tree: e.tree, Sched: e.sched, Interval: ec.NavPoll})
	}
	if ec.Navigation == config.NavHooks || ec.Navigation == config.NavBoth {
		navs = append(navs, &lifecycle.HookNavigator{Tree: e.tree, Sched: e.sched, Delay: ec.HookDelay})
	}
	return navs
}

// Start publishes the default registry and binds to the feed root. Both
// happen on the scheduler.
func (e *Engine) Start() {
	e.sched.Post(func() {
		e.handle.Publish(e.registry)
		e.manager.Start()
		e.sweeper.Start()
	})
}

// Stop tears the engine down. It cannot be restarted.
func (e *Engine) Stop() {
	e.sched.Post(func() {
		e.sweeper.Stop()
		e.manager.Destroy()
	})
}

// Do runs fn on the scheduler and waits for it.
func (e *Engine) Do(ctx context.Context, fn func()) error {
	return e.sched.Call(ctx, fn)
}

// Mutate runs fn against the tree on the scheduler. Observers see the
// changes once fn returns.
func (e *Engine) Mutate(ctx context.Context, fn func(t *dom.Tree)) error {
	return e.sched.Call(ctx, func() { fn(e.tree) })
}

func (e *Engine) bound(b Binding) {
	e.log.Info("engine: bound", "binding", b.ID, "location", b.Location)
	e.proc.SetRoot(b.Root)
	e.proc.ProcessNow()
}

func (e *Engine) unbound() {
	e.proc.SetRoot(nil)
	e.proc.Reset()
	e.sponsored.Reset()
	e.hidden = nil
}

func (e *Engine) recordHide(ev processor.HideEvent) {
	item := models.HiddenItem{
		Location: e.tree.Location(),
		Rule:     ev.Rule,
		Reason:   ev.Reason,
		Snippet:  dom.Snippet(ev.Node, 160),
	}
	e.hidden = append(e.hidden, item)
	for _, fn := range e.onHidden {
		fn(item)
	}
}

// OnHidden registers fn for every item hidden from now on. fn runs on the
// scheduler.
func (e *Engine) OnHidden(fn func(models.HiddenItem)) {
	e.onHidden = append(e.onHidden, fn)
}

// Binding is the live lifecycle binding.
type Binding = lifecycle.Binding

// Tree is the engine's content tree.
func (e *Engine) Tree() *dom.Tree { return e.tree }

// Settings returns the live settings. Rules read them on every batch.
func (e *Engine) Settings() *models.Settings { return &e.opts.Settings }

// UpdateSettings replaces the settings. Already processed items are not
// revisited.
func (e *Engine) UpdateSettings(s models.Settings) error {
	cfg := config.Config{Settings: s, Engine: e.opts.Engine}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.opts.Settings = cfg.Settings
	return nil
}

// Register adds or replaces a rule. It is enabled through Settings.Rules
// unless it shares a name with a built-in rule.
func (e *Engine) Register(name string, p classifier.Predicate) error {
	return e.registry.Register(name, p)
}

// Rules lists the registered rule names in evaluation order.
func (e *Engine) Rules() []string { return e.registry.List() }

// ProcessNow runs a batch immediately, bypassing the throttle.
func (e *Engine) ProcessNow() bool { return e.proc.ProcessNow() }

// Classify returns the cached or fresh classification of n.
func (e *Engine) Classify(n *html.Node) models.ClassificationResult { return e.proc.Classify(n) }

// Stats returns the counters of the current binding.
func (e *Engine) Stats() models.Stats { return e.proc.Stats() }

// Hidden lists what was hidden since the last binding.
func (e *Engine) Hidden() []models.HiddenItem {
	out := make([]models.HiddenItem, len(e.hidden))
	copy(out, e.hidden)
	return out
}

// Diagnostics returns the sponsored detection and suspect logs.
func (e *Engine) Diagnostics() sponsored.Diagnostics { return e.sponsored.Diagnostics() }

// ClearCache drops every cached verdict. Marked items stay marked.
func (e *Engine) ClearCache() { e.proc.ClearCache() }

// Reset discards session state and rebinds.
func (e *Engine) Reset() { e.manager.Reset() }

// Bound reports whether a feed root is observed.
func (e *Engine) Bound() bool { return e.manager.State() == lifecycle.Bound }

// Nudge asks for a batch after a scroll.
func (e *Engine) Nudge() { e.coalescer.Nudge() }

// Visible asks for a batch after the page became visible again.
func (e *Engine) Visible() { e.coalescer.Visible() }

// Sweep runs a maintenance pass now.
func (e *Engine) Sweep() sweeper.Report {
	r := e.sweeper.Sweep()
	e.manager.Verify()
	return r
}

// Waiting reports whether a batch is parked on the rule registry.
func (e *Engine) Waiting() bool { return e.proc.Waiting() }
