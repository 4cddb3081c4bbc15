// Package lifecycle locates the feed root, keeps exactly one observation
// bound to it and rebinds from scratch after navigation.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"feedguard/internal/dom"
	"feedguard/internal/loop"
)

// ErrRootNotFound is logged once every locator failed for the whole retry
// budget.
var ErrRootNotFound = errors.New("lifecycle: feed root not found")

// Locators are tried in order; the first hit becomes the root.
var Locators = []string{
	`div[role="feed"]`,
	`div[role="main"]`,
	`[data-pagelet="Feed"]`,
	`[data-testid="Newsfeed"]`,
	`.x1lliihq`,
	`.x6s0dn4`,
	`.x78zum5`,
}

// State of the manager.
type State int

const (
	Unbound State = iota
	Bound
	TornDown
)

func (s State) String() string {
	switch s {
	case Bound:
		return "bound"
	case TornDown:
		return "torn-down"
	}
	return "unbound"
}

// Binding is the live root plus its observation.
type Binding struct {
	ID          uuid.UUID
	Root        *html.Node
	Location    string
	Observation *dom.Observation
	At          time.Time
}

// Binder is the observing side, normally an observer.Coalescer.
type Binder interface {
	Bind(root *html.Node) *dom.Observation
	Unbind()
}

// Hooks let the engine react to binding changes.
type Hooks struct {
	// OnBind runs after a new binding is live.
	OnBind func(Binding)
	// OnUnbind runs after the observation was released; it resets session
	// state (caches, counters).
	OnUnbind func()
}

// Recorder counts lifecycle events.
type Recorder interface {
	Rebind()
	RootMissing()
}

// Config tunes retries and the settle delay. Zero values take defaults.
type Config struct {
	RootRetry    time.Duration
	RootRetryMax time.Duration
	RootAttempts int
	SettleDelay  time.Duration
}

func (c *Config) defaults() {
	if c.RootRetry <= 0 {
		c.RootRetry = 1500 * time.Millisecond
	}
	if c.RootRetryMax <= 0 {
		c.RootRetryMax = 15 * time.Second
	}
	if c.RootAttempts <= 0 {
		c.RootAttempts = 20
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 800 * time.Millisecond
	}
}

// Manager drives the unbound/bound/torn-down state machine. All methods run
// on the scheduler goroutine.
type Manager struct {
	tree   *dom.Tree
	sched  loop.Scheduler
	binder Binder
	hooks  Hooks
	cfg    Config
	log    *slog.Logger
	rec    Recorder
	navs   []Navigator

	state    State
	binding  *Binding
	location string
	attempts int
	timer    loop.Timer
}

// New returns an unbound Manager. Navigators are started by Start.
func New(tree *dom.Tree, sched loop.Scheduler, binder Binder, hooks Hooks, cfg Config, log *slog.Logger, rec Recorder, navs ...Navigator) *Manager {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		tree:   tree,
		sched:  sched,
		binder: binder,
		hooks:  hooks,
		cfg:    cfg,
		log:    log,
		rec:    rec,
		navs:   navs,
	}
}

// Start locates the root and begins watching navigation.
func (m *Manager) Start() {
	if m.state == TornDown {
		return
	}
	m.location = m.tree.Location()
	for _, n := range m.navs {
		n.Start(m.Navigated)
	}
	m.locate()
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Binding returns the live binding, or nil.
func (m *Manager) Binding() *Binding { return m.binding }

// Navigated handles a location report. Unchanged locations are ignored
// unless force is set.
func (m *Manager) Navigated(location string, force bool) {
	if m.state == TornDown {
		return
	}
	if !force && location == m.location {
		return
	}
	m.log.Info("lifecycle: navigation", "from", m.location, "to", location, "force", force)
	m.location = location
	m.unbind()
	m.timer = m.sched.After(m.cfg.SettleDelay, func() {
		m.timer = nil
		m.locate()
	})
}

// Reset unbinds and rebinds right away.
func (m *Manager) Reset() {
	if m.state == TornDown {
		return
	}
	m.unbind()
	m.locate()
}

// Verify rebinds when the bound root has been detached from the tree.
func (m *Manager) Verify() {
	if m.state != Bound || m.tree.Contains(m.binding.Root) {
		return
	}
	m.log.Info("lifecycle: root detached, rebinding", "binding", m.binding.ID)
	m.Reset()
}

// Destroy tears everything down for good.
func (m *Manager) Destroy() {
	if m.state == TornDown {
		return
	}
	for _, n := range m.navs {
		n.Stop()
	}
	m.unbind()
	m.state = TornDown
}

func (m *Manager) unbind() {
	m.cancelTimer()
	m.attempts = 0
	if m.binding != nil {
		m.binder.Unbind()
		m.binding = nil
	}
	m.state = Unbound
	if m.hooks.OnUnbind != nil {
		m.hooks.OnUnbind()
	}
}

func (m *Manager) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// FindRoot returns the first locator hit.
func FindRoot(tree *dom.Tree) (*html.Node, string) {
	for _, sel := range Locators {
		if nodes := tree.Find(sel); len(nodes) > 0 {
			return nodes[0], sel
		}
	}
	return nil, ""
}

func (m *Manager) locate() {
	if m.state != Unbound {
		return
	}
	root, sel := FindRoot(m.tree)
	if root == nil {
		m.retry()
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	b := &Binding{ID: id, Root: root, Location: m.tree.Location(), At: m.sched.Now()}
	b.Observation = m.binder.Bind(root)
	m.binding = b
	m.attempts = 0
	m.state = Bound
	if m.rec != nil {
		m.rec.Rebind()
	}
	m.log.Info("lifecycle: bound", "binding", b.ID, "locator", sel, "location", b.Location)
	if m.hooks.OnBind != nil {
		m.hooks.OnBind(*b)
	}
}

// backoff is RootRetry doubled per failed attempt, capped at RootRetryMax.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.RootRetry
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.RootRetryMax {
			return m.cfg.RootRetryMax
		}
	}
	return min(d, m.cfg.RootRetryMax)
}

func (m *Manager) retry() {
	m.attempts++
	if m.rec != nil {
		m.rec.RootMissing()
	}
	if m.attempts >= m.cfg.RootAttempts {
		m.log.Error("lifecycle: giving up", "err", fmt.Errorf("%w after %d attempts", ErrRootNotFound, m.attempts), "location", m.location)
		return
	}
	d := m.backoff(m.attempts)
	m.log.Debug("lifecycle: root not found, retrying", "attempt", m.attempts, "in", d)
	m.timer = m.sched.After(d, func() {
		m.timer = nil
		m.locate()
	})
}
