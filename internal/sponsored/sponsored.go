// Package sponsored detects promoted feed items with a tiered cascade of
// heuristics, cheapest and most reliable first.
package sponsored

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/dom"
)

// Detection methods.
const (
	MethodDirect     = "direct-marker"
	MethodStructural = "structural-indicator"
	MethodLabelled   = "labelled-attribute"
	MethodZoned      = "zoned-text"
	MethodFallback   = "fallback-span"
)

// Detection is the outcome for one node. Confidence is informational only:
// any match suppresses the node.
type Detection struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence,omitempty"`
	Method     string  `json:"method,omitempty"`
	Tier       int     `json:"tier,omitempty"`
}

// Options tune the cascade and the diagnostic lists.
type Options struct {
	// FallbackSpanLimit is how many spans tier 4 looks at.
	FallbackSpanLimit int
	// FallbackSpanMaxLen is the exclusive upper bound, in runes, on the text
	// of a span tier 4 tests.
	FallbackSpanMaxLen int
	DetectionLogCap    int
	SuspectedCap       int
	Verbose            bool
	Logger             *slog.Logger
	Now                func() time.Time
	// Location feeds the page address into suspicion reports.
	Location func() string
}

func (o *Options) applyDefaults() {
	if o.FallbackSpanLimit <= 0 {
		o.FallbackSpanLimit = 20
	}
	if o.FallbackSpanMaxLen <= 0 {
		o.FallbackSpanMaxLen = 50
	}
	if o.DetectionLogCap <= 0 {
		o.DetectionLogCap = 100
	}
	if o.SuspectedCap <= 0 {
		o.SuspectedCap = 50
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = func() string { return "" }
	}
}

type tier struct {
	level      int
	confidence float64
	run        func(n *html.Node) (method string, ok bool)
}

// Classifier runs the cascade and memoizes results per node.
type Classifier struct {
	opts  Options
	arena *cache.Arena
	cache *cache.Lifetime[Detection]
	tiers []tier

	detections []LogEntry
	suspected  []SuspectReport

	// onTier, when set, sees every tier before it runs.
	onTier func(level int)
}

// New builds a Classifier whose cache is bound to arena.
func New(arena *cache.Arena, opts Options) *Classifier {
	opts.applyDefaults()
	c := &Classifier{
		opts:  opts,
		arena: arena,
		cache: cache.NewLifetime[Detection](arena),
	}
	c.tiers = []tier{
		{1, 0.9, c.direct},
		{2, 0.85, c.labelled},
		{3, 0.75, c.zoned},
		{4, 0.6, c.fallback},
	}
	return c
}

// IsSponsored reports whether Detect matched.
func (c *Classifier) IsSponsored(n *html.Node) bool {
	return c.Detect(n).Matched
}

// Detect runs the cascade, first match wins. Cached results are returned
// without running any tier.
func (c *Classifier) Detect(n *html.Node) Detection {
	if n == nil {
		return Detection{}
	}
	if d, ok := c.cache.Get(n); ok {
		return d
	}
	var det Detection
	for _, t := range c.tiers {
		if c.onTier != nil {
			c.onTier(t.level)
		}
		if method, ok := c.runTier(t, n); ok {
			det = Detection{Matched: true, Confidence: t.confidence, Method: method, Tier: t.level}
			break
		}
	}
	c.cache.Set(n, det)
	if det.Matched {
		c.logDetection(n, det)
	} else {
		c.Report(n)
	}
	return det
}

// CacheLen is the number of memoized detections.
func (c *Classifier) CacheLen() int { return c.cache.Len() }

func (c *Classifier) runTier(t tier, n *html.Node) (method string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			c.opts.Logger.Debug("sponsored: tier failed", "tier", t.level, "err", fmt.Sprint(p))
			method, ok = "", false
		}
	}()
	return t.run(n)
}

func (c *Classifier) direct(n *html.Node) (string, bool) {
	buttons := dom.Select(n, `[role="button"]`)
	if dom.Matches(n, `[role="button"]`) {
		buttons = append([]*html.Node{n}, buttons...)
	}
	for _, b := range buttons {
		if label, ok := dom.Attr(b, "aria-label"); ok && structuralRe.MatchString(label) {
			return MethodStructural, true
		}
	}
	if dom.MatchesOrContains(n, directSelector) {
		return MethodDirect, true
	}
	return "", false
}

func (c *Classifier) labelled(n *html.Node) (string, bool) {
	els := dom.Select(n, "[aria-label]")
	if dom.HasAttr(n, "aria-label") {
		els = append([]*html.Node{n}, els...)
	}
	for _, el := range els {
		label, _ := dom.Attr(el, "aria-label")
		if MatchText(label) {
			return MethodLabelled, true
		}
	}
	return "", false
}

func (c *Classifier) zoned(n *html.Node) (string, bool) {
	for _, sel := range zoneSelectors {
		for _, zone := range dom.Select(n, sel) {
			if MatchText(dom.Text(zone)) {
				return MethodZoned, true
			}
		}
	}
	return "", false
}

func (c *Classifier) fallback(n *html.Node) (string, bool) {
	for i, span := range dom.Select(n, "span") {
		if i >= c.opts.FallbackSpanLimit {
			break
		}
		text := strings.TrimSpace(dom.Text(span))
		l := utf8.RuneCountInString(text)
		if l == 0 || l >= c.opts.FallbackSpanMaxLen {
			continue
		}
		if MatchText(text) {
			return MethodFallback, true
		}
	}
	return "", false
}

// Reset drops every memoized detection and diagnostic entry.
func (c *Classifier) Reset() {
	c.cache.Clear()
	c.detections = nil
	c.suspected = nil
}
