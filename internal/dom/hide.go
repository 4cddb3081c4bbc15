package dom

import (
	"strings"

	"golang.org/x/net/html"
)

const hiddenStyle = "display: none !important"

// Hide suppresses n and records reason in HiddenAttr. Its records are
// Internal. It returns false when n was already hidden or is not an element.
func (t *Tree) Hide(n *html.Node, reason string) bool {
	if n == nil || n.Type != html.ElementNode || IsHidden(n) {
		return false
	}
	if reason == "" {
		reason = "hidden"
	}
	t.setAttr(n, HiddenAttr, reason, true)
	style, _ := Attr(n, "style")
	style = strings.TrimSpace(style)
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	if style != "" {
		style += " "
	}
	t.setAttr(n, "style", style+hiddenStyle, true)
	return true
}

// IsHidden reports whether Hide already ran on n.
func IsHidden(n *html.Node) bool {
	return HasAttr(n, HiddenAttr)
}

// HiddenReason returns the reason recorded by Hide.
func HiddenReason(n *html.Node) string {
	r, _ := Attr(n, HiddenAttr)
	return r
}

// Mark sets the processed marker. It reports false if n was already marked.
func (t *Tree) Mark(n *html.Node) bool {
	if IsMarked(n) {
		return false
	}
	t.setAttr(n, ProcessedAttr, "true", true)
	return true
}

// Unmark clears the processed marker.
func (t *Tree) Unmark(n *html.Node) {
	t.removeAttr(n, ProcessedAttr, true)
}

// IsMarked reports whether n carries the processed marker.
func IsMarked(n *html.Node) bool {
	return HasAttr(n, ProcessedAttr)
}
