// Package textnorm canonicalizes free text so that keyword tests survive
// casing, spacing, punctuation and composed/decomposed diacritics.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// isSeparator covers whitespace, no-break space, the U+2000..U+200B block
// (including zero-width space), line/paragraph separators and the BOM.
func isSeparator(r rune) bool {
	switch {
	case unicode.IsSpace(r):
		return true
	case r == '\u00a0', r == '\u2028', r == '\u2029', r == '\ufeff':
		return true
	case r >= '\u2000' && r <= '\u200b':
		return true
	}
	return false
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Normalize lowercases s, drops separators and then every remaining
// non-word rune. Combining marks are folded into their base letter first
// (NFC) so "được" typed either way yields the same key.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isSeparator(r) {
			continue
		}
		r = unicode.ToLower(r)
		if !isWord(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Contains normalizes both sides and reports a substring hit. An empty
// needle never matches.
func Contains(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// Matcher holds pre-normalized needles so a hot loop normalizes the
// haystack once.
type Matcher struct {
	needles []string
	raw     []string
}

// NewMatcher normalizes every needle up front, skipping those that
// normalize to nothing.
func NewMatcher(needles ...string) *Matcher {
	m := &Matcher{}
	for _, n := range needles {
		key := Normalize(n)
		if key == "" {
			continue
		}
		m.needles = append(m.needles, key)
		m.raw = append(m.raw, n)
	}
	return m
}

// Match returns the first needle (as given) found in text.
func (m *Matcher) Match(text string) (string, bool) {
	if m == nil || len(m.needles) == 0 {
		return "", false
	}
	hay := Normalize(text)
	if hay == "" {
		return "", false
	}
	for i, n := range m.needles {
		if strings.Contains(hay, n) {
			return m.raw[i], true
		}
	}
	return "", false
}

// Len is the number of usable needles.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.needles)
}
