package sponsored

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/dom"
)

// LogEntry is one positive detection kept for diagnostics.
type LogEntry struct {
	Node       cache.NodeID `json:"node"`
	Tier       int          `json:"tier"`
	Method     string       `json:"method"`
	Confidence float64      `json:"confidence"`
	Snippet    string       `json:"snippet"`
	At         time.Time    `json:"at"`
}

// SuspectReport describes an undetected node with several weak promotional
// indicators.
type SuspectReport struct {
	Node       cache.NodeID `json:"node"`
	Location   string       `json:"location,omitempty"`
	Indicators []string     `json:"indicators"`
	Sample     string       `json:"sample"`
	Images     int          `json:"images"`
	Videos     int          `json:"videos"`
	Links      int          `json:"links"`
	TestIDs    []string     `json:"testIds,omitempty"`
	Labels     []string     `json:"labels,omitempty"`
	At         time.Time    `json:"at"`
}

// Diagnostics is a snapshot of both lists.
type Diagnostics struct {
	Detections []LogEntry      `json:"detections"`
	Suspected  []SuspectReport `json:"suspected"`
}

// Suspicion indicators.
const (
	IndicatorPromo     = "promotional-language"
	IndicatorTracking  = "tracking-links"
	IndicatorBusiness  = "business-link"
	IndicatorWhySeeing = "why-seeing-button"
)

const (
	suspicionThreshold  = 2
	snippetLen          = 160
	suspectSampleLen    = 300
	suspectLabelSamples = 5
)

var whySeeingRe = regexp.MustCompile(`(?i)why.*seeing|tại sao.*thấy|hide.*ad|ẩn.*quảng cáo`)

var promoPhrases = []string{
	"shop now", "buy", "order", "download", "sign up", "subscribe",
	"learn more", "get started", "claim", "limited time",
}

// Suspicious lists the weak indicators present in n.
func Suspicious(n *html.Node) []string {
	var out []string
	text := strings.ToLower(dom.Text(n))
	if slices.ContainsFunc(promoPhrases, func(p string) bool { return strings.Contains(text, p) }) {
		out = append(out, IndicatorPromo)
	}
	if dom.SelectFirst(n, `a[href*="utm_"], a[href*="fbclid"], a[href*="gclid"]`) != nil {
		out = append(out, IndicatorTracking)
	}
	if dom.SelectFirst(n, `a[href*="/business/"], a[href*="/shop/"], a[href*="/store/"]`) != nil {
		out = append(out, IndicatorBusiness)
	}
	for _, b := range dom.Select(n, `[role="button"]`) {
		label, _ := dom.Attr(b, "aria-label")
		if whySeeingRe.MatchString(label) {
			out = append(out, IndicatorWhySeeing)
			break
		}
	}
	return out
}

// Report records a SuspectReport for n when enough indicators are present
// and returns whether it did.
func (c *Classifier) Report(n *html.Node) bool {
	indicators := Suspicious(n)
	if len(indicators) < suspicionThreshold {
		return false
	}
	r := SuspectReport{
		Node:       c.arena.ID(n),
		Location:   c.opts.Location(),
		Indicators: indicators,
		Sample:     dom.Snippet(n, suspectSampleLen),
		Images:     len(dom.Select(n, "img")),
		Videos:     len(dom.Select(n, "video")),
		Links:      len(dom.Select(n, "a")),
		At:         c.opts.Now(),
	}
	for _, el := range dom.Select(n, "[data-testid]") {
		v, _ := dom.Attr(el, "data-testid")
		r.TestIDs = append(r.TestIDs, v)
	}
	for _, el := range dom.Select(n, "[aria-label]") {
		if len(r.Labels) == suspectLabelSamples {
			break
		}
		v, _ := dom.Attr(el, "aria-label")
		r.Labels = append(r.Labels, v)
	}
	c.suspected = capTail(append(c.suspected, r), c.opts.SuspectedCap)
	if c.opts.Verbose {
		c.opts.Logger.Debug("sponsored: suspected item", "indicators", strings.Join(indicators, ","), "node", r.Sample)
	}
	return true
}

func (c *Classifier) logDetection(n *html.Node, d Detection) {
	e := LogEntry{
		Node:       c.arena.ID(n),
		Tier:       d.Tier,
		Method:     d.Method,
		Confidence: d.Confidence,
		Snippet:    dom.Snippet(n, snippetLen),
		At:         c.opts.Now(),
	}
	c.detections = capTail(append(c.detections, e), c.opts.DetectionLogCap)
	if c.opts.Verbose {
		c.opts.Logger.Debug("sponsored: detected", "tier", d.Tier, "method", d.Method, "confidence", d.Confidence, "node", e.Snippet)
	}
}

// Diagnostics returns copies of the detection log and suspect reports.
func (c *Classifier) Diagnostics() Diagnostics {
	return Diagnostics{
		Detections: slices.Clone(c.detections),
		Suspected:  slices.Clone(c.suspected),
	}
}

// PruneLogs drops entries whose node id is no longer live and caps both
// lists. It returns how many entries were removed.
func (c *Classifier) PruneLogs(live func(cache.NodeID) bool) int {
	before := len(c.detections) + len(c.suspected)
	c.detections = slices.DeleteFunc(c.detections, func(e LogEntry) bool { return !live(e.Node) })
	c.suspected = slices.DeleteFunc(c.suspected, func(r SuspectReport) bool { return !live(r.Node) })
	c.detections = capTail(c.detections, c.opts.DetectionLogCap)
	c.suspected = capTail(c.suspected, c.opts.SuspectedCap)
	return before - len(c.detections) - len(c.suspected)
}

// capTail keeps the most recent max entries.
func capTail[T any](s []T, max int) []T {
	if len(s) <= max {
		return s
	}
	return slices.Clone(s[len(s)-max:])
}
