package sponsored

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/dom"
	"feedguard/pkg/logger"
)

func post(t *testing.T, inner string, attrs ...string) *html.Node {
	t.Helper()
	doc, err := dom.ParseString(fmt.Sprintf(`<div id="post" %s>%s</div>`, strings.Join(attrs, " "), inner))
	require.NoError(t, err)
	n := dom.SelectFirst(doc, "#post")
	require.NotNil(t, n)
	return n
}

func newClassifier(opts Options) (*Classifier, *[]int) {
	opts.Logger = logger.Discard()
	c := New(cache.NewArena(), opts)
	var seen []int
	c.onTier = func(level int) { seen = append(seen, level) }
	return c, &seen
}

func TestTierOneShortCircuits(t *testing.T) {
	c, seen := newClassifier(Options{})
	d := c.Detect(post(t, `<span>Sponsored</span>`, `data-sponsored="true"`))
	assert.True(t, d.Matched)
	assert.Equal(t, MethodDirect, d.Method)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, []int{1}, *seen, "tiers 2-4 must not run")
}

func TestTextOnlySponsoredMatchesLaterTier(t *testing.T) {
	c, _ := newClassifier(Options{})
	d := c.Detect(post(t, `<h4><span>Sponsored</span></h4><p>Great shoes</p>`))
	assert.True(t, d.Matched)
	assert.Less(t, d.Confidence, 0.9)
	assert.Equal(t, MethodZoned, d.Method)

	d = c.Detect(post(t, `<div><span>Được  tài-trợ</span></div>`))
	assert.True(t, d.Matched)
	assert.Equal(t, MethodFallback, d.Method)
	assert.Equal(t, 4, d.Tier)
}

func TestWhySeeingButtonIsStructural(t *testing.T) {
	c, _ := newClassifier(Options{})
	d := c.Detect(post(t, `<div role="button" aria-label="Why am I seeing this ad?"></div><p>Hello</p>`))
	assert.True(t, d.Matched)
	assert.Equal(t, MethodStructural, d.Method)
	assert.Equal(t, 1, d.Tier)
}

func TestLabelledAttributeTier(t *testing.T) {
	c, _ := newClassifier(Options{})
	d := c.Detect(post(t, `<a aria-label="Paid-Partnership with Brand"></a>`))
	assert.Equal(t, Detection{Matched: true, Confidence: 0.85, Method: MethodLabelled, Tier: 2}, d)
}

func TestDetectIsCached(t *testing.T) {
	c, seen := newClassifier(Options{})
	n := post(t, `<span>Lunch with friends</span>`)
	first := c.Detect(n)
	assert.False(t, first.Matched)
	assert.Equal(t, []int{1, 2, 3, 4}, *seen)

	*seen = nil
	assert.Equal(t, first, c.Detect(n))
	assert.Empty(t, *seen)
	assert.Equal(t, 1, c.CacheLen())
}

func TestTierPanicIsContained(t *testing.T) {
	c, _ := newClassifier(Options{})
	c.tiers[0].run = func(*html.Node) (string, bool) { panic("malformed node") }
	d := c.Detect(post(t, `<h3>Sponsored</h3>`, `data-sponsored="true"`))
	assert.True(t, d.Matched)
	assert.Equal(t, MethodZoned, d.Method)
	assert.False(t, c.Detect(nil).Matched)
}

func TestFallbackSpanLimitIsTunable(t *testing.T) {
	inner := strings.Repeat(`<span>x</span>`, 25) + `<span>Sponsored</span>`

	narrow, _ := newClassifier(Options{FallbackSpanLimit: 20})
	assert.False(t, narrow.Detect(post(t, inner)).Matched)

	wide, _ := newClassifier(Options{FallbackSpanLimit: 30})
	assert.True(t, wide.Detect(post(t, inner)).Matched)

	long := `<span>` + strings.Repeat("word ", 12) + `sponsored</span>`
	short, _ := newClassifier(Options{FallbackSpanMaxLen: 50})
	assert.False(t, short.Detect(post(t, long)).Matched)
}

func TestSuspectReportAndPrune(t *testing.T) {
	c, _ := newClassifier(Options{DetectionLogCap: 2})
	c.Detect(post(t, `<p>Shop now, limited time</p><a href="https://x.test/?utm_source=fb">go</a>`))
	diag := c.Diagnostics()
	require.Len(t, diag.Suspected, 1)
	assert.Equal(t, []string{IndicatorPromo, IndicatorTracking}, diag.Suspected[0].Indicators)

	for i := 0; i < 3; i++ {
		c.Detect(post(t, `<span>Sponsored</span>`))
	}
	assert.Len(t, c.Diagnostics().Detections, 2)

	removed := c.PruneLogs(func(cache.NodeID) bool { return false })
	assert.Equal(t, 3, removed)
	assert.Empty(t, c.Diagnostics().Detections)
	assert.Empty(t, c.Diagnostics().Suspected)
}

func TestPreCheck(t *testing.T) {
	arena := cache.NewArena()
	p := NewPreChecker(arena)

	ad := post(t, `<a aria-label="Sponsored"></a>`)
	assert.True(t, p.Check(ad))
	assert.Equal(t, 1, p.KeyedLen())

	// A re-rendered copy without the marker is caught by key.
	copyNode := post(t, `<span>plain</span>`)
	assert.True(t, p.Check(copyNode))

	plain := post(t, `<span>Sponsored</span>`, `data-testid="other"`)
	plain.Attr = []html.Attribute{{Key: "data-testid", Val: "other"}}
	assert.False(t, p.Check(plain), "text alone is not a trusted marker")

	assert.Equal(t, 1, p.PruneKeyed(func(string) bool { return false }))
	assert.Zero(t, p.KeyedLen())

	arena.Sweep(func(*html.Node) bool { return false })
	assert.Zero(t, p.Len())
}

func TestMatchText(t *testing.T) {
	assert.True(t, MatchText("Quảng   cáo"))
	assert.True(t, MatchText("PROMOTED"))
	assert.False(t, MatchText("Read more and add comment"))
	assert.False(t, MatchText("   "))
}
