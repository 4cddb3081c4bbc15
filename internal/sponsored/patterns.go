package sponsored

import (
	"regexp"
	"strings"

	"feedguard/internal/textnorm"
)

// Keyword lists are matched after normalization, so spacing and case
// variants collapse to one entry.
var (
	vietnameseKeywords = []string{"được tài trợ", "tài trợ", "quảng cáo", "sponsored"}
	// The bare "ad" keyword is left out: normalized text glues words
	// together and "ad" would hit "read", "add", "download" and so on.
	englishKeywords = []string{"sponsored", "paid partnership", "advertisement", "promoted", "commercial", "marketing"}

	keywordRegexps = []*regexp.Regexp{
		regexp.MustCompile(`sponsored`),
		regexp.MustCompile(`tài\s*trợ`),
		regexp.MustCompile(`quảng\s*cáo`),
		regexp.MustCompile(`được\s*tài\s*trợ`),
		regexp.MustCompile(`paid\s*partnership`),
	}

	keywords = textnorm.NewMatcher(append(append([]string{}, vietnameseKeywords...), englishKeywords...)...)
)

// directSelector is the tier 1 attribute set.
var directSelector = strings.Join([]string{
	`[aria-label*="Sponsored"]`,
	`[aria-label*="Được tài trợ"]`,
	`[aria-label*="quảng cáo"]`,
	`[aria-label*="Why am I seeing this ad"]`,
	`[aria-label*="Tại sao tôi thấy quảng cáo này"]`,
	`[data-testid*="sponsored"]`,
	`[data-sponsored="true"]`,
	`[data-ad-preview="message"]`,
	`[data-ad-comet-preview="message"]`,
}, ", ")

// structuralRe matches the ad-menu button labels.
var structuralRe = regexp.MustCompile(`(?i)why.*seeing.*ad|tại sao.*thấy.*quảng cáo|hide.*\bad\b|ẩn.*quảng cáo`)

// zoneSelectors are the priority zones of tier 3, in scan order.
var zoneSelectors = []string{
	`[id][aria-labelledby]`,
	`[data-testid*="story-header"]`,
	`[data-testid*="post-header"]`,
	`h3, h4, h5`,
	`[role="link"][tabindex="0"]`,
	`[role="button"][aria-label*="More"]`,
}

// preCheckSelector is the short list of markers trusted without the full
// cascade.
var preCheckSelector = strings.Join([]string{
	`[aria-label*="Sponsored"]`,
	`[aria-label*="Được tài trợ"]`,
	`[aria-label*="quảng cáo"]`,
	`[data-sponsored="true"]`,
}, ", ")

// MatchText reports whether text carries a sponsorship keyword: normalized
// keyword hit first, then the regex list on the lowercased original.
func MatchText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if _, ok := keywords.Match(text); ok {
		return true
	}
	lower := strings.ToLower(text)
	for _, re := range keywordRegexps {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
