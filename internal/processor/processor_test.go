package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/classifier"
	"feedguard/internal/dom"
	"feedguard/internal/loop"
	"feedguard/internal/models"
	"feedguard/internal/sponsored"
	"feedguard/pkg/logger"
)

const feed = `<html><body><div role="feed">
<div role="article" id="quick"><a aria-label="Sponsored" href="#">·</a><p>Buy our shoes</p></div>
<div role="article" id="text"><h4>Được tài trợ</h4><p>Resort deals</p></div>
<div role="article" id="clean"><p>Lunch with friends</p></div>
</div></body></html>`

type harness struct {
	tree     *dom.Tree
	sched    *loop.Manual
	handle   *classifier.Handle
	registry *classifier.Registry
	settings models.Settings
	proc     *Processor
	hides    []HideEvent
}

func newHarness(t *testing.T, markup string, publish bool) *harness {
	t.Helper()
	doc, err := dom.ParseString(markup)
	require.NoError(t, err)
	h := &harness{sched: loop.NewManual(), handle: &classifier.Handle{}, settings: models.DefaultSettings()}
	h.tree = dom.New(doc, "https://www.facebook.com/", dom.WithDispatcher(h.sched.Post))
	arena := cache.NewArena()
	log := logger.Discard()
	sp := sponsored.New(arena, sponsored.Options{Logger: log})
	h.registry = classifier.NewRegistry(log)
	require.NoError(t, classifier.RegisterDefaults(h.registry, classifier.Defaults{Sponsored: sp}))
	if publish {
		h.handle.Publish(h.registry)
	}
	h.proc = New(Deps{
		Tree:      h.tree,
		Scheduler: h.sched,
		Registry:  h.handle,
		Settings:  func() *models.Settings { return &h.settings },
		Arena:     arena,
		Sponsored: sp,
		PreCheck:  sponsored.NewPreChecker(arena),
	}, Options{Logger: log})
	h.proc.OnHide(func(ev HideEvent) { h.hides = append(h.hides, ev) })
	return h
}

func (h *harness) byID(id string) *html.Node {
	return dom.SelectFirst(h.tree.Document(), "#"+id)
}

// spy registers an always-on rule counting its invocations.
func (h *harness) spy(t *testing.T, name, reason string) *int {
	t.Helper()
	calls := 0
	require.NoError(t, h.registry.Register(name, func(*html.Node, *models.Settings) (string, error) {
		calls++
		return reason, nil
	}))
	if h.settings.Rules == nil {
		h.settings.Rules = map[string]bool{}
	}
	h.settings.Rules[name] = true
	return &calls
}

func TestBatchSplitsAndHides(t *testing.T) {
	h := newHarness(t, feed, true)
	require.True(t, h.proc.ProcessNow())

	assert.Equal(t, QuickReason, dom.HiddenReason(h.byID("quick")))
	assert.Equal(t, classifier.SponsoredReason, dom.HiddenReason(h.byID("text")))
	assert.False(t, dom.IsHidden(h.byID("clean")))

	st := h.proc.Stats()
	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, 2, st.Hidden)
	assert.Equal(t, 2, st.Sponsored)
	assert.Equal(t, 3, st.CacheSize)

	require.Len(t, h.hides, 2)
	assert.Equal(t, RuleQuick, h.hides[0].Rule)
	assert.Equal(t, models.RuleSponsored, h.hides[1].Rule)
	for _, id := range []string{"quick", "text", "clean"} {
		assert.True(t, dom.IsMarked(h.byID(id)), id)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	h := newHarness(t, feed, true)
	h.settings.BlockSponsored = false
	calls := h.spy(t, "custom", "Custom")

	n := h.byID("clean")
	first := h.proc.Classify(n)
	second := h.proc.Classify(n)
	assert.Equal(t, models.ClassificationResult{Matched: true, Reason: "Custom"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, *calls)
}

func TestMarkedNodesAreNeverResubmitted(t *testing.T) {
	h := newHarness(t, feed, true)
	h.settings.BlockSponsored = false
	calls := h.spy(t, "custom", "")

	h.proc.ProcessNow()
	h.proc.ClearCache()
	h.proc.ProcessNow()
	assert.Equal(t, 3, *calls)

	_, err := h.tree.AppendHTML(dom.SelectFirst(h.tree.Document(), `[role="feed"]`), `<div role="article" id="late"><p>new</p></div>`)
	require.NoError(t, err)
	h.proc.ProcessNow()
	assert.Equal(t, 4, *calls)
	assert.Equal(t, 4, h.proc.Stats().Processed)
}

func TestThrottleDropsCallsInsideWindow(t *testing.T) {
	h := newHarness(t, feed, true)
	runs := 0
	for i := 0; i < 5; i++ {
		if h.proc.ProcessBatch() {
			runs++
		}
	}
	assert.Equal(t, 1, runs)

	runs = 0
	for i := 0; i < 3; i++ {
		h.sched.Advance(250 * time.Millisecond)
		if h.proc.ProcessBatch() {
			runs++
		}
	}
	assert.Equal(t, 3, runs)
}

func TestRegistryWaitThenClassify(t *testing.T) {
	h := newHarness(t, feed, false)
	require.True(t, h.proc.ProcessNow())

	// The pre-check does not wait for the registry.
	assert.True(t, dom.IsHidden(h.byID("quick")))
	assert.False(t, dom.IsHidden(h.byID("text")))
	assert.True(t, h.proc.Waiting())
	assert.False(t, h.proc.ProcessNow(), "batch in flight")

	h.sched.Advance(600 * time.Millisecond)
	h.handle.Publish(h.registry)
	h.sched.Advance(300 * time.Millisecond)

	assert.False(t, h.proc.Waiting())
	assert.True(t, dom.IsHidden(h.byID("text")))
	assert.Equal(t, 2, h.proc.Stats().Hidden)
}

func TestRegistryWaitFailureRetriesNextBatch(t *testing.T) {
	h := newHarness(t, feed, false)
	h.proc.ProcessNow()
	h.sched.Advance(15 * 300 * time.Millisecond)

	assert.False(t, h.proc.Waiting())
	assert.False(t, dom.IsMarked(h.byID("text")))
	assert.False(t, dom.IsMarked(h.byID("clean")))
	assert.True(t, dom.IsMarked(h.byID("quick")))
	assert.Equal(t, 1, h.proc.Stats().Processed)

	h.handle.Publish(h.registry)
	h.proc.ProcessNow()
	assert.True(t, dom.IsHidden(h.byID("text")))
	assert.Equal(t, 3, h.proc.Stats().Processed)
}

func TestResetClearsState(t *testing.T) {
	h := newHarness(t, feed, true)
	h.proc.ProcessNow()
	require.NotZero(t, h.proc.Stats().Hidden)

	h.proc.Reset()
	assert.Equal(t, models.Stats{}, h.proc.Stats())
}

func TestResetAbandonsParkedBatch(t *testing.T) {
	h := newHarness(t, feed, false)
	h.proc.ProcessNow()
	h.proc.Reset()
	h.handle.Publish(h.registry)
	h.sched.Advance(time.Second)
	assert.False(t, dom.IsHidden(h.byID("text")))
	assert.Zero(t, h.proc.Stats().Hidden)
}

func TestFailingRuleDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t, feed, true)
	h.settings.BlockSponsored = false
	require.NoError(t, h.registry.Register("broken", func(n *html.Node, _ *models.Settings) (string, error) {
		if id, _ := dom.Attr(n, "id"); id == "quick" {
			panic("unexpected shape")
		}
		return "Broken", nil
	}))
	h.settings.Rules = map[string]bool{"broken": true}

	h.proc.ProcessNow()
	assert.False(t, dom.IsHidden(h.byID("quick")))
	assert.True(t, dom.IsHidden(h.byID("text")))
	assert.True(t, dom.IsHidden(h.byID("clean")))
}

func TestClassifyBeforeBatchKeepsRule(t *testing.T) {
	h := newHarness(t, feed, true)
	res := h.proc.Classify(h.byID("text"))
	require.True(t, res.Matched)

	require.True(t, h.proc.ProcessNow())
	st := h.proc.Stats()
	assert.Equal(t, 2, st.Hidden)
	assert.Equal(t, 2, st.Sponsored)
	require.Len(t, h.hides, 2)
	assert.Equal(t, models.RuleSponsored, h.hides[1].Rule)
	assert.Equal(t, classifier.SponsoredReason, h.hides[1].Reason)
}
