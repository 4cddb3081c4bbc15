package classifier

import (
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"feedguard/internal/dom"
	"feedguard/internal/models"
	"feedguard/internal/textnorm"
)

// SponsoredReason is reported by the sponsored rule.
const SponsoredReason = "Sponsored Content"

// Detector is the sponsored-content check the default rule delegates to.
type Detector interface {
	IsSponsored(n *html.Node) bool
}

// Defaults carries the collaborators the built-in rules need.
type Defaults struct {
	Sponsored Detector
	// Location returns the current page address; the reels rule is stricter
	// on profile and page timelines.
	Location func() string
}

// RegisterDefaults registers the built-in rules in their fixed order.
func RegisterDefaults(r *Registry, d Defaults) error {
	loc := d.Location
	if loc == nil {
		loc = func() string { return "" }
	}
	kw := &keywordRule{}
	rules := []Rule{
		{models.RuleSponsored, sponsoredRule(d.Sponsored)},
		{models.RuleSuggested, suggestedRule},
		{models.RuleReels, reelsRule(loc)},
		{models.RuleGIFs, gifRule},
		{models.RuleKeywords, kw.match},
	}
	for _, ru := range rules {
		if err := r.Register(ru.Name, ru.Predicate); err != nil {
			return err
		}
	}
	return nil
}

func sponsoredRule(d Detector) Predicate {
	if d == nil {
		return nil
	}
	return func(n *html.Node, _ *models.Settings) (string, error) {
		if d.IsSponsored(n) {
			return SponsoredReason, nil
		}
		return "", nil
	}
}

var suggestedRe = regexp.MustCompile(`(?i)gợi ý cho bạn|suggested for you`)

func suggestedRule(n *html.Node, _ *models.Settings) (string, error) {
	for _, span := range dom.Select(n, "span") {
		if suggestedRe.MatchString(dom.Text(span)) {
			return "Suggested", nil
		}
	}
	return "", nil
}

func gifRule(n *html.Node, _ *models.Settings) (string, error) {
	if dom.SelectFirst(n, `img[src*=".gif"]`) != nil {
		return "GIF", nil
	}
	return "", nil
}

var (
	reelURLRe     = regexp.MustCompile(`(?i)/reels?/`)
	reelTextRe    = regexp.MustCompile(`(?i)\breels?\b`)
	profileURLRe  = regexp.MustCompile(`(?i)facebook\.com/profile`)
	pageURLRe     = regexp.MustCompile(`(?i)facebook\.com/[^/]+$`)
	reelLinkSel   = `a[href*="/reel/"], a[href*="/reels/"]`
	reelTextSel   = `span, div[role="button"], [aria-label*="Reel"]`
	reelAnchorSel = `[role="article"], [data-pagelet]`
)

func reelsRule(location func() string) Predicate {
	return func(n *html.Node, _ *models.Settings) (string, error) {
		if dom.SelectFirst(n, reelLinkSel) != nil {
			return "Reels", nil
		}
		hasVideo := dom.SelectFirst(n, "video") != nil || dom.SelectFirst(n, "[data-video-id]") != nil
		if !hasVideo {
			return "", nil
		}
		if reelURLRe.MatchString(dom.OuterHTML(n)) {
			return "Reels", nil
		}
		loc := location()
		onProfile := profileURLRe.MatchString(loc) || pageURLRe.MatchString(loc)
		for _, el := range dom.Select(n, reelTextSel) {
			text := dom.Text(el)
			if text == "" {
				text, _ = dom.Attr(el, "aria-label")
			}
			if !reelTextRe.MatchString(text) {
				continue
			}
			if !onProfile || hasAncestor(el, n, reelAnchorSel) {
				return "Reels", nil
			}
		}
		return "", nil
	}
}

// hasAncestor reports whether some element between el and stop (inclusive)
// matches selector.
func hasAncestor(el, stop *html.Node, selector string) bool {
	for p := el; p != nil; p = p.Parent {
		if dom.Matches(p, selector) {
			return true
		}
		if p == stop {
			break
		}
	}
	return false
}

// keywordRule caches one matcher per distinct keyword list.
type keywordRule struct {
	mu  sync.Mutex
	key string
	m   *textnorm.Matcher
}

func (k *keywordRule) matcher(words []string) *textnorm.Matcher {
	key := strings.Join(words, "\x00")
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.m == nil || k.key != key {
		k.key = key
		k.m = textnorm.NewMatcher(words...)
	}
	return k.m
}

func (k *keywordRule) match(n *html.Node, s *models.Settings) (string, error) {
	if s == nil || len(s.BlockedKeywords) == 0 {
		return "", nil
	}
	if word, ok := k.matcher(s.BlockedKeywords).Match(dom.Text(n)); ok {
		return "Keyword: " + strings.ToLower(strings.TrimSpace(word)), nil
	}
	return "", nil
}
